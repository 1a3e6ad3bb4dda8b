package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cybertec-postgresql/delta_notifier/internal/db"
	"github.com/cybertec-postgresql/delta_notifier/internal/query"
)

func setupPostgreSQLContainer(ctx context.Context, t *testing.T) (db.PgxPoolIface, testcontainers.Container) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.NewWithRetry(ctx, pgConnStr)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		CREATE TABLE items (
			id bigint PRIMARY KEY,
			name text NOT NULL,
			updated_at timestamp NOT NULL
		);
		INSERT INTO items VALUES
			(1, 'old', '2012-05-20 10:00:00'),
			(2, 'changed', '2012-05-22 10:00:00'),
			(3, 'changed too', '2012-05-23 10:00:00');
	`)
	require.NoError(t, err)

	return pool, pgContainer
}

func TestDeltaQueryAgainstPostgreSQL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pool, pgContainer := setupPostgreSQLContainer(ctx, t)
	defer func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}()

	require.NoError(t, db.ApplyMigrations(ctx, pool))

	spec := query.EntitySpec{
		Name:       "item",
		Collection: "items",
		DeltaQuery: "updated_at > '${dih.item.last_index_time}' ORDER BY id",
	}
	tokens := query.TokensFromMarker("item", "2012-05-21 20:56:40", "2012-05-21 20:56:40")
	c, err := query.New(spec, query.DeltaDump, NewPostgres(pool), tokens)
	require.NoError(t, err)
	defer c.Close()

	var ids []int64
	for {
		rec, ok, err := c.DeltaChanged(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		ids = append(ids, rec["id"].(int64))
	}
	assert.Equal(t, []int64{2, 3}, ids)
	assert.Contains(t, c.Query(), "2012-05-21T20:56:40Z")

	require.NoError(t, db.InsertNotification(ctx, pool, db.Notification{
		Timestamp:  time.Now(),
		Target:     "core1",
		URL:        "http://localhost:8080/solr/core1/dataimport",
		StatusCode: 200,
	}))
	recent, err := db.RecentNotifications(ctx, pool, "core1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 200, recent[0].StatusCode)
}

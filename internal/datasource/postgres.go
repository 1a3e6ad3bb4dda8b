// Package datasource runs entity queries against PostgreSQL.
package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/delta_notifier/internal/db"
	"github.com/cybertec-postgresql/delta_notifier/internal/query"
)

// Postgres is a query.DataSource backed by a pgx pool. The collection is a
// table name, optionally schema-qualified.
type Postgres struct {
	pool db.PgxIface
}

// NewPostgres wraps pool
func NewPostgres(pool db.PgxIface) *Postgres {
	return &Postgres{pool: pool}
}

// Statement turns an entity query into SQL. A query starting with SELECT or
// WITH runs as is, anything else is a predicate on the collection table.
func Statement(q, collection string) string {
	q = strings.TrimSpace(q)
	if fields := strings.Fields(q); len(fields) > 0 {
		switch strings.ToUpper(fields[0]) {
		case "SELECT", "WITH":
			return q
		}
	}
	table := pgx.Identifier(strings.Split(collection, ".")).Sanitize()
	if q == "" {
		return "SELECT * FROM " + table
	}
	return "SELECT * FROM " + table + " WHERE " + q
}

// GetData implements query.DataSource
func (p *Postgres) GetData(ctx context.Context, q, collection string) (query.RecordIterator, error) {
	sql := Statement(q, collection)
	logrus.WithFields(logrus.Fields{
		"component":  "datasource",
		"collection": collection,
		"sql":        sql,
	}).Debug("Executing query")
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return &rowIterator{rows: rows}, nil
}

type rowIterator struct {
	rows pgx.Rows
}

func (it *rowIterator) Next(ctx context.Context) (query.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !it.rows.Next() {
		return nil, false, it.rows.Err()
	}
	values, err := it.rows.Values()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read row: %w", err)
	}
	fields := it.rows.FieldDescriptions()
	record := make(query.Record, len(fields))
	for i, field := range fields {
		record[field.Name] = values[i]
	}
	return record, true, nil
}

func (it *rowIterator) Close() {
	it.rows.Close()
}

// Package db provides the PostgreSQL connection pool and the notification audit store.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/delta_notifier/internal/migrations"
	"github.com/cybertec-postgresql/delta_notifier/internal/notify"
	"github.com/cybertec-postgresql/delta_notifier/internal/retry"
)

// PgxIface is common interface for every pgx class
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
}

// PgxPoolIface is interface representing pgx pool
type PgxPoolIface interface {
	PgxIface
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
	Ping(ctx context.Context) error
}

type ConnConfigCallback = func(*pgxpool.Config) error

// New create a new pool
func New(ctx context.Context, connStr string, callbacks ...ConnConfigCallback) (PgxPoolIface, error) {
	connConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, connConfig, callbacks...)
}

// NewWithConfig creates a new pool with a given config
func NewWithConfig(ctx context.Context, connConfig *pgxpool.Config, callbacks ...ConnConfigCallback) (PgxPoolIface, error) {
	logger := logrus.WithField("component", "db")
	if connConfig.ConnConfig.ConnectTimeout == 0 {
		connConfig.ConnConfig.ConnectTimeout = time.Second * 5
	}
	connConfig.MaxConnIdleTime = 15 * time.Second
	connConfig.ConnConfig.RuntimeParams["application_name"] = "delta_notifier"
	connConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		logger.WithField("severity", n.Severity).WithField("notice", n.Message).Info("Notice received")
	}
	for _, f := range callbacks {
		if err := f(connConfig); err != nil {
			return nil, err
		}
	}
	return pgxpool.NewWithConfig(ctx, connConfig)
}

// NewWithRetry creates a pool and pings it, retrying with backoff
func NewWithRetry(ctx context.Context, connStr string, callbacks ...ConnConfigCallback) (PgxPoolIface, error) {
	pool, err := retry.Connect(ctx, retry.PostgreSQLDefaults(), "postgres", func(ctx context.Context) (PgxPoolIface, error) {
		pool, err := New(ctx, connStr, callbacks...)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to establish PostgreSQL connection after all retries")
		return nil, err
	}
	return pool, nil
}

// ApplyMigrations checks and applies database migrations if needed
func ApplyMigrations(ctx context.Context, pool PgxPoolIface) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	needsMigration, err := migrations.NeedsUpgrade(ctx, conn.Conn())
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if !needsMigration {
		logrus.Info("Database schema is up to date")
		return nil
	}

	logrus.Info("Applying database migrations...")
	if err := migrations.Apply(ctx, conn.Conn()); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logrus.Info("Database migrations completed successfully")
	return nil
}

// Notification is one row of the delta_notifier_notifications table
type Notification struct {
	Timestamp  time.Time
	Target     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Error      *string // nil on transport success
}

// InsertNotification records a sent notification
func InsertNotification(ctx context.Context, pool PgxIface, n Notification) error {
	query := `
		INSERT INTO delta_notifier_notifications (ts, target, url, status_code, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := pool.Exec(ctx, query, n.Timestamp, n.Target, n.URL, n.StatusCode, n.Duration.Milliseconds(), n.Error)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// RecentNotifications returns the latest notifications, newest first.
// An empty target matches every target.
func RecentNotifications(ctx context.Context, pool PgxIface, target string, limit int) ([]Notification, error) {
	query := `
		SELECT ts, target, url, status_code, duration_ms, error
		FROM delta_notifier_notifications
		WHERE $1 = '' OR target = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := pool.Query(ctx, query, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var (
			n          Notification
			durationMs int64
		)
		if err := rows.Scan(&n.Timestamp, &n.Target, &n.URL, &n.StatusCode, &durationMs, &n.Error); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return result, nil
}

// Recorder persists notification results; failures are logged, never returned
type Recorder struct {
	Pool PgxIface
}

// Record stores result
func (r Recorder) Record(ctx context.Context, result notify.Result) {
	n := Notification{
		Timestamp:  result.Started,
		Target:     result.Target,
		URL:        result.URL,
		StatusCode: result.StatusCode,
		Duration:   result.Duration,
	}
	if result.Err != nil {
		msg := result.Err.Error()
		n.Error = &msg
	}
	if err := InsertNotification(ctx, r.Pool, n); err != nil {
		logrus.WithError(err).WithField("target", n.Target).Warn("Failed to record notification")
	}
}

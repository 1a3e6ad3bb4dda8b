package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/delta_notifier/internal/datasource"
	"github.com/cybertec-postgresql/delta_notifier/internal/db"
	"github.com/cybertec-postgresql/delta_notifier/internal/marker"
	"github.com/cybertec-postgresql/delta_notifier/internal/query"
)

// QueryCommand previews the records one lifecycle entry point of an entity returns
type QueryCommand struct {
	Entity string `long:"entity" description:"Properties file declaring the entity" required:"true"`
	Mode   string `long:"mode" description:"Run mode: FULL_DUMP|DELTA_DUMP" default:"DELTA_DUMP"`
	Kind   string `long:"kind" description:"Entry point: primary|delta-changed|delta-deleted|parent-delta" default:"delta-changed"`
	Target string `long:"target" description:"Target whose marker supplies the last index time tokens"`
	Limit  int    `long:"limit" description:"Maximum number of records to print, 0 for all" default:"100"`
}

// HistoryCommand lists notifications recorded in the audit store
type HistoryCommand struct {
	Target string `long:"target" description:"Only show notifications of this target"`
	Limit  int    `long:"limit" description:"Number of notifications to show" default:"20"`
}

// entryPoint selects the controller method matching kind
func entryPoint(c *query.Controller, kind query.Kind) func(context.Context) (query.Record, bool, error) {
	switch kind {
	case query.DeltaChanged:
		return c.DeltaChanged
	case query.DeltaDeleted:
		return c.DeltaDeleted
	case query.ParentDelta:
		return c.ParentDelta
	default:
		return c.Primary
	}
}

// printRecords writes up to limit records as JSON lines and returns how many were written
func printRecords(ctx context.Context, c *query.Controller, kind query.Kind, limit int, out io.Writer) (int, error) {
	next := entryPoint(c, kind)
	enc := json.NewEncoder(out)
	count := 0
	for limit <= 0 || count < limit {
		record, ok, err := next(ctx)
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}
		if err := enc.Encode(record); err != nil {
			return count, fmt.Errorf("failed to write record: %w", err)
		}
		count++
	}
	return count, nil
}

// tokensFor reads the marker of target, no tokens without a target
func tokensFor(markerDir, target string) (query.Tokens, error) {
	if target == "" {
		return query.Tokens{}, nil
	}
	m, err := marker.Load(markerDir, target)
	if err != nil {
		return nil, err
	}
	return query.TokensFromMarker(target, m.Qualified, m.Unqualified), nil
}

func runQuery(ctx context.Context, cfg *Config, out io.Writer) error {
	opts := cfg.Query
	spec, err := query.LoadEntity(opts.Entity)
	if err != nil {
		return err
	}
	kind, err := query.ParseKind(opts.Kind)
	if err != nil {
		return err
	}
	tokens, err := tokensFor(cfg.MarkerDir, opts.Target)
	if err != nil {
		return err
	}

	pool, err := db.NewWithRetry(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	c, err := query.New(spec, query.RunMode(opts.Mode), datasource.NewPostgres(pool), tokens)
	if err != nil {
		return err
	}
	defer c.Close()

	count, err := printRecords(ctx, c, kind, opts.Limit, out)
	logrus.WithFields(logrus.Fields{
		"entity":  spec.Name,
		"kind":    kind.String(),
		"query":   c.Query(),
		"records": count,
	}).Info("Query finished")
	return err
}

func runHistory(ctx context.Context, cfg *Config, out io.Writer) error {
	pool, err := db.NewWithRetry(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	notifications, err := db.RecentNotifications(ctx, pool, cfg.History.Target, cfg.History.Limit)
	if err != nil {
		return err
	}
	return printHistory(notifications, out)
}

func printHistory(notifications []db.Notification, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTARGET\tSTATUS\tDURATION\tURL\tERROR")
	for _, n := range notifications {
		errText := ""
		if n.Error != nil {
			errText = *n.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			n.Timestamp.Format(time.RFC3339), n.Target, n.StatusCode, n.Duration, n.URL, errText)
	}
	return w.Flush()
}

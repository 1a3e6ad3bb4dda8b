package query

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/delta_notifier/internal/timestamp"
)

var queryCount atomic.Int64

// QueryCount returns the number of cursors opened by all controllers.
func QueryCount() int64 {
	return queryCount.Load()
}

// Controller owns the query lifecycle of one entity for one pass. It opens at
// most one cursor, lazily, on the first pull of the entry point it gets bound
// to, and never re-queries once that cursor is exhausted.
type Controller struct {
	spec     EntitySpec
	mode     RunMode
	source   DataSource
	resolver TokenResolver
	logger   *logrus.Entry

	bound     bool
	kind      Kind
	cursor    RecordIterator
	exhausted bool
	query     string
}

// New validates spec and returns an unbound controller.
func New(spec EntitySpec, mode RunMode, source DataSource, resolver TokenResolver) (*Controller, error) {
	if spec.Collection == "" {
		return nil, &ConfigError{Entity: spec.Name, Reason: "collection must be supplied"}
	}
	if source == nil {
		return nil, &ConfigError{Entity: spec.Name, Reason: "data source must be supplied"}
	}
	if resolver == nil {
		resolver = Tokens{}
	}
	return &Controller{
		spec:     spec,
		mode:     mode,
		source:   source,
		resolver: resolver,
		logger: logrus.WithFields(logrus.Fields{
			"component": "query",
			"entity":    spec.Name,
		}),
	}, nil
}

// Query returns the text of the opened query, empty until a cursor is open.
func (c *Controller) Query() string {
	return c.query
}

// Primary pulls the next record of the query selected by the run mode:
// FULL_DUMP runs query, DELTA_DUMP runs deltaImportQuery. Primary templates
// are substituted but not normalized. An unconfigured template ends the
// sequence without a cursor.
func (c *Controller) Primary(ctx context.Context) (Record, bool, error) {
	return c.next(ctx, Primary, func() (string, bool) {
		var template string
		switch c.mode {
		case FullDump:
			template = c.spec.Query
		case DeltaDump:
			template = c.spec.DeltaImportQuery
		}
		if template == "" {
			return "", false
		}
		return c.resolver.ReplaceTokens(template), true
	})
}

// DeltaChanged pulls the next key of a modified record.
func (c *Controller) DeltaChanged(ctx context.Context) (Record, bool, error) {
	return c.next(ctx, DeltaChanged, c.normalized(c.spec.DeltaQuery))
}

// DeltaDeleted pulls the next key of a deleted record.
func (c *Controller) DeltaDeleted(ctx context.Context) (Record, bool, error) {
	return c.next(ctx, DeltaDeleted, c.normalized(c.spec.DeletedPkQuery))
}

// ParentDelta pulls the next key of a modified parent record.
func (c *Controller) ParentDelta(ctx context.Context) (Record, bool, error) {
	return c.next(ctx, ParentDelta, func() (string, bool) {
		if c.spec.ParentDeltaQuery == "" {
			return "", false
		}
		c.logger.Info("Running parentDeltaQuery for entity")
		return c.resolver.ReplaceTokens(c.spec.ParentDeltaQuery), true
	})
}

// Close releases the live cursor, if any.
func (c *Controller) Close() {
	if c.cursor != nil {
		c.cursor.Close()
		c.cursor = nil
	}
	c.exhausted = true
}

func (c *Controller) normalized(template string) func() (string, bool) {
	return func() (string, bool) {
		if template == "" {
			return "", false
		}
		return timestamp.Normalize(c.resolver.ReplaceTokens(template)), true
	}
}

// next binds the controller to kind on first use and pulls one record.
// build returns false when kind has no query configured.
func (c *Controller) next(ctx context.Context, kind Kind, build func() (string, bool)) (Record, bool, error) {
	if c.bound && c.kind != kind {
		return nil, false, ErrAlreadyBound
	}
	if c.exhausted {
		return nil, false, nil
	}
	if !c.bound {
		c.bound = true
		c.kind = kind
		q, ok := build()
		if !ok {
			c.exhausted = true
			return nil, false, nil
		}
		if err := c.open(ctx, kind, q); err != nil {
			c.exhausted = true
			return nil, false, err
		}
	}

	record, ok, err := c.cursor.Next(ctx)
	if err != nil {
		c.Close()
		return nil, false, &QueryError{Query: c.query, Kind: kind, Err: err}
	}
	if !ok {
		c.Close()
		return nil, false, nil
	}
	return record, true, nil
}

func (c *Controller) open(ctx context.Context, kind Kind, q string) error {
	queryCount.Add(1)
	cursor, err := c.source.GetData(ctx, q, c.spec.Collection)
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			return err
		}
		c.logger.WithError(err).WithField("query", q).Error("The query failed")
		return &QueryError{Query: q, Kind: kind, Err: err}
	}
	c.cursor = cursor
	c.query = q
	c.logger.WithFields(logrus.Fields{
		"kind":       kind.String(),
		"collection": c.spec.Collection,
	}).Debug("Opened query cursor")
	return nil
}

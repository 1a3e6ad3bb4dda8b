// Package query drives the query lifecycle of one import entity: which query
// runs for a synchronization pass, how its tokens are rewritten, and how its
// records are pulled one at a time.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/magiconair/properties"
)

// Entity attribute names.
const (
	AttrName             = "name"
	AttrCollection       = "collection"
	AttrQuery            = "query"
	AttrDeltaQuery       = "deltaQuery"
	AttrDeltaImportQuery = "deltaImportQuery"
	AttrDeletedPkQuery   = "deletedPkQuery"
	AttrParentDeltaQuery = "parentDeltaQuery"
)

// EntitySpec is the read-only declaration of one import entity.
// Empty query templates mean "not configured".
type EntitySpec struct {
	Name             string
	Collection       string
	Query            string
	DeltaQuery       string
	DeltaImportQuery string
	DeletedPkQuery   string
	ParentDeltaQuery string
}

// EntityFromAttributes builds an EntitySpec from string-keyed entity attributes.
func EntityFromAttributes(attrs map[string]string) EntitySpec {
	return EntitySpec{
		Name:             attrs[AttrName],
		Collection:       attrs[AttrCollection],
		Query:            attrs[AttrQuery],
		DeltaQuery:       attrs[AttrDeltaQuery],
		DeltaImportQuery: attrs[AttrDeltaImportQuery],
		DeletedPkQuery:   attrs[AttrDeletedPkQuery],
		ParentDeltaQuery: attrs[AttrParentDeltaQuery],
	}
}

// LoadEntity reads entity attributes from a properties file.
func LoadEntity(path string) (EntitySpec, error) {
	// ${...} tokens belong to the query templates, not to the properties file
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(path)
	if err != nil {
		return EntitySpec{}, fmt.Errorf("failed to load entity %s: %w", path, err)
	}
	return EntityFromAttributes(p.Map()), nil
}

// RunMode selects the primary query of a pass.
type RunMode string

const (
	FullDump  RunMode = "FULL_DUMP"
	DeltaDump RunMode = "DELTA_DUMP"
)

// Kind identifies a lifecycle entry point.
type Kind int

const (
	Primary Kind = iota
	DeltaChanged
	DeltaDeleted
	ParentDelta
)

func (k Kind) String() string {
	switch k {
	case Primary:
		return "primary"
	case DeltaChanged:
		return "delta-changed"
	case DeltaDeleted:
		return "delta-deleted"
	case ParentDelta:
		return "parent-delta"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Primary, DeltaChanged, DeltaDeleted, ParentDelta} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown query kind %q", s)
}

// Record is one row returned by a data source.
type Record = map[string]any

// RecordIterator is a lazy cursor over query results.
type RecordIterator interface {
	// Next returns false once the cursor is exhausted.
	Next(ctx context.Context) (Record, bool, error)
	Close()
}

// DataSource executes a query against a named collection.
type DataSource interface {
	GetData(ctx context.Context, query, collection string) (RecordIterator, error)
}

// TokenResolver performs caller-side token substitution on query templates.
type TokenResolver interface {
	ReplaceTokens(template string) string
}

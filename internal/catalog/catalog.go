// Package catalog defines the external record-keeping interface the engine
// consumes, plus a SQLite-backed implementation used by the CLI and tests.
//
// The engine only ever sees the Catalog interface: indexed metadata lookup,
// presence checks, and differential write-back all go through Query, Insert,
// and GetSchema. Anything that can answer those three calls can serve as the
// backend.
package catalog

import (
	"context"
	"errors"
)

// ErrNoTable marks queries against a table the catalog has never seen.
// Callers that treat an absent table as an empty one check for it with
// errors.Is.
var ErrNoTable = errors.New("catalog table does not exist")

// Op is a filter comparison operator.
type Op string

const (
	OpEqual    Op = "EQUAL"
	OpContains Op = "CONTAINS"
)

// Filter narrows a catalog query to rows whose field matches value under Op.
type Filter struct {
	Field string
	Value string
	Op    Op
}

// Row is a field→value mapping.
type Row = map[string]string

// Column describes one schema column with its internal name and display
// caption (which may differ, as they do in LabKey-style catalogs).
type Column struct {
	Name    string
	Caption string
}

// InsertResult summarizes a write-back batch.
type InsertResult struct {
	Inserted int
}

// Catalog is the abstract query/insert/schema interface the engine consumes.
type Catalog interface {
	Query(ctx context.Context, schema, table string, filters []Filter) ([]Row, error)
	Insert(ctx context.Context, schema, table string, rows []Row) (InsertResult, error)
	GetSchema(ctx context.Context, schema, table string) ([]Column, error)
}

// ParseOp maps the relaxed operator spellings accepted in sync files to an Op.
func ParseOp(raw string) Op {
	switch raw {
	case "contains", "CONTAINS":
		return OpContains
	default:
		return OpEqual
	}
}

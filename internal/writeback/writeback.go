// Package writeback plans and applies catalog row updates for a synced batch.
//
// For each eligible record the output fields are rendered, a presence check
// decides whether a catalog row already exists, and the result is a diff:
// field-level changes for existing rows, a pending insert for absent ones.
// Planning is side-effect free; Apply performs the inserts. Existing rows
// are never rewritten, their differences are reported only.
package writeback

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
	"dropsync/internal/finalize"
	"dropsync/internal/logging"
	"dropsync/internal/metadata"
	"dropsync/internal/plan"
	"dropsync/internal/record"
	"dropsync/internal/services"
	"dropsync/internal/template"
)

// FieldDiff is one field compared between the rendered row and the catalog.
type FieldDiff struct {
	Field   string
	From    string
	To      string
	Changed bool
}

// RowChange is the planned catalog effect for one record.
type RowChange struct {
	Record *record.FileRecord
	Fields record.Row
	Exists bool
	Diffs  []FieldDiff
}

// WillChange reports whether applying this change would alter the catalog.
func (c *RowChange) WillChange() bool {
	if !c.Exists {
		return true
	}
	for _, d := range c.Diffs {
		if d.Changed {
			return true
		}
	}
	return false
}

// ChangeSet is the full planned write-back for a batch.
type ChangeSet struct {
	Schema  string
	Table   string
	Changes []*RowChange
}

// Inserts returns the rows for records absent from the catalog.
func (cs *ChangeSet) Inserts() []record.Row {
	var rows []record.Row
	for _, c := range cs.Changes {
		if !c.Exists {
			rows = append(rows, c.Fields)
		}
	}
	return rows
}

// Planner renders output fields and diffs them against the target table.
type Planner struct {
	spec     *config.SyncSpec
	cat      catalog.Catalog
	resolver *metadata.Resolver
	schema   string
	logger   *slog.Logger
	now      func() time.Time
}

// NewPlanner builds a write-back planner. defaultSchema is used when the
// sync spec's write_to block does not name one.
func NewPlanner(spec *config.SyncSpec, cat catalog.Catalog, resolver *metadata.Resolver, defaultSchema string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	schema := spec.WriteTo.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return &Planner{
		spec:     spec,
		cat:      cat,
		resolver: resolver,
		schema:   schema,
		logger:   logger.With(logging.String(logging.FieldComponent, "writeback")),
		now:      time.Now,
	}
}

// Plan computes the change set without touching the catalog's contents.
// Records already marked to skip the transfer are excluded. Presence results
// are recorded on each record as a side effect.
func (p *Planner) Plan(ctx context.Context, batch *plan.Batch) (*ChangeSet, error) {
	cs := &ChangeSet{Schema: p.schema, Table: p.spec.WriteTo.Table}
	if cs.Table == "" || len(p.spec.OutputFields) == 0 {
		return cs, nil
	}
	logger := logging.WithContext(ctx, p.logger)

	for _, rec := range batch.Records {
		if rec.SkipReason(p.spec.MetadataRequired) != "" {
			continue
		}
		fields := p.renderFields(rec)
		change := &RowChange{Record: rec, Fields: fields}

		if err := p.checkPresence(ctx, logger, rec, fields); err != nil {
			return nil, err
		}
		if rec.Presence.ExistsInCatalog {
			change.Exists = true
			change.Diffs = diffFields(rec.Presence.ExistingRow, fields)
		}
		cs.Changes = append(cs.Changes, change)
		logger.Debug("planned row change",
			logging.String("file", rec.RelPath),
			logging.Bool("exists", change.Exists),
			logging.Bool("will_change", change.WillChange()),
		)
	}
	return cs, nil
}

// Apply inserts the rows planned for absent records. Rows whose record did
// not verify during transfer are withheld.
func (p *Planner) Apply(ctx context.Context, cs *ChangeSet) (catalog.InsertResult, error) {
	var rows []record.Row
	for _, c := range cs.Changes {
		if c.Exists {
			continue
		}
		if c.Record.Outcome != nil && !c.Record.Outcome.Verified {
			continue
		}
		rows = append(rows, c.Fields)
	}
	if len(rows) == 0 {
		return catalog.InsertResult{}, nil
	}
	result, err := p.cat.Insert(ctx, cs.Schema, cs.Table, rows)
	if err != nil {
		return result, services.Wrap(services.ErrCatalog, "writing back", "insert", "Failed to insert catalog rows", err)
	}
	return result, nil
}

// renderFields renders every output field for a record and applies the
// field-scoped replacement rules.
func (p *Planner) renderFields(rec *record.FileRecord) record.Row {
	modTime := rec.ModTime
	providers := []template.Provider{
		template.Vars(rec.Vars.Map()),
		p.resolver.MetaProvider(rec),
		template.Builtins(p.spec.DateFormat, p.now, func() (time.Time, error) { return modTime, nil }),
	}
	fields := make(record.Row, len(p.spec.OutputFields))
	for _, of := range p.spec.OutputFields {
		value := template.Render(of.Template, providers...)
		fields[of.Field] = finalize.ReplaceField(p.spec.ReplaceRules, of.Field, value)
	}
	return fields
}

// checkPresence queries the target table for an existing row matching the
// configured presence field. More than one match is ambiguous and fatal, the
// same way metadata matching treats it. A failed query marks the record
// unresolved so the rest of the batch still gets planned.
func (p *Planner) checkPresence(ctx context.Context, logger *slog.Logger, rec *record.FileRecord, fields record.Row) error {
	field := p.spec.Presence.Field
	if field == "" {
		return nil
	}
	value := fields[field]
	rec.Presence = record.Presence{MatchField: field, MatchValue: value}
	if value == "" || strings.Contains(value, "<") {
		rec.Presence.Unresolved = true
		return nil
	}

	op := catalog.OpEqual
	if p.spec.Presence.Mode == config.ModeContains {
		op = catalog.OpContains
	}
	rows, err := p.cat.Query(ctx, p.schema, p.spec.WriteTo.Table, []catalog.Filter{
		{Field: field, Value: value, Op: op},
	})
	if errors.Is(err, catalog.ErrNoTable) {
		// First run against a fresh catalog: the insert creates the table.
		return nil
	}
	if err != nil {
		rec.Presence.Unresolved = true
		logger.Warn("presence query failed, leaving record unresolved",
			logging.String("file", rec.RelPath),
			logging.String("field", field),
			logging.Error(err),
		)
		return nil
	}
	switch len(rows) {
	case 0:
	case 1:
		rec.Presence.ExistsInCatalog = true
		rec.Presence.ExistingRow = rows[0]
	default:
		return services.Wrap(services.ErrAmbiguousMatch, "writing back", "presence",
			"Presence check matched more than one catalog row for "+field+"="+value, nil)
	}
	return nil
}

// diffFields compares the rendered fields against the existing row. Fields
// absent from the rendered set are not reported.
func diffFields(existing, rendered record.Row) []FieldDiff {
	names := make([]string, 0, len(rendered))
	for name := range rendered {
		names = append(names, name)
	}
	sort.Strings(names)

	diffs := make([]FieldDiff, 0, len(names))
	for _, name := range names {
		from := existing[name]
		to := rendered[name]
		diffs = append(diffs, FieldDiff{Field: name, From: from, To: to, Changed: from != to})
	}
	return diffs
}

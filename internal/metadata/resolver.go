package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"dropsync/internal/config"
	"dropsync/internal/logging"
	"dropsync/internal/record"
	"dropsync/internal/services"
	"dropsync/internal/template"
)

// Resolver matches file records against the loaded metadata sources. It owns
// the per-source indices and schema caches, is instantiated once per run, and
// is passed by reference to every stage that needs field lookups.
type Resolver struct {
	sources map[string]*Source
	ordered []*Source
	logger  *slog.Logger
}

// NewResolver builds a resolver over the loaded sources.
func NewResolver(sources []*Source, logger *slog.Logger) *Resolver {
	byName := make(map[string]*Source, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{sources: byName, ordered: sources, logger: logger.With(logging.String(logging.FieldComponent, "metadata"))}
}

// Sources returns the loaded sources in configuration order.
func (r *Resolver) Sources() []*Source { return r.ordered }

// Source returns the named source, if loaded.
func (r *Resolver) Source(name string) (*Source, bool) {
	src, ok := r.sources[name]
	return src, ok
}

// Match evaluates the ordered rule list for one record. The first rule whose
// rendered key matches exactly one row becomes the primary match; further
// rules are not evaluated. More than one exactly-matching row aborts the run.
func (r *Resolver) Match(ctx context.Context, rec *record.FileRecord, rules []config.MatchRule) error {
	logger := logging.WithContext(ctx, r.logger)
	for _, rule := range rules {
		src, ok := r.sources[rule.Source]
		if !ok || src.Err != nil {
			continue
		}
		key := template.Render(rule.Key, template.Vars(rec.Vars.Map()))
		matches := src.RowsMatching(rule.Field, key)
		switch len(matches) {
		case 0:
			continue
		case 1:
			row := src.Rows[matches[0]]
			rec.MetaRows[src.Name] = row
			if rec.PrimaryMatch == nil {
				rec.PrimaryMatch = &record.Match{Source: src.Name, Row: row}
				logger.Debug("metadata matched",
					logging.String("record", rec.RelPath),
					logging.String("source", src.Name),
					logging.String("field", rule.Field),
					logging.String("key", key),
				)
				return nil
			}
		default:
			return ambiguityError(src, rule, key, matches)
		}
	}
	if rec.PrimaryMatch == nil {
		logger.Debug("no metadata match", logging.String("record", rec.RelPath))
	}
	return nil
}

// MetaProvider returns a template provider resolving `<source.field>`
// placeholders from the record's matched rows. Every dotted name is claimed;
// unresolved fields render as the empty string.
func (r *Resolver) MetaProvider(rec *record.FileRecord) template.Provider {
	return template.ProviderFunc(func(name string) (string, bool) {
		if !template.IsMetaName(name) {
			return "", false
		}
		sourceName, field := template.SplitMetaName(name)
		src, ok := r.sources[sourceName]
		if !ok {
			return "", true
		}
		row, ok := rec.RowFor(sourceName)
		if !ok {
			return "", true
		}
		value, _ := src.Value(row, field)
		return value, true
	})
}

func ambiguityError(src *Source, rule config.MatchRule, key string, matches []int) error {
	candidates := make([]string, 0, len(matches))
	for _, idx := range matches {
		candidates = append(candidates, describeRow(src.Rows[idx]))
	}
	return services.Wrap(
		services.ErrAmbiguousMatch,
		"metadata",
		"match rule",
		fmt.Sprintf("key %q matches %d rows in source %q (field %q): %s",
			key, len(matches), src.Name, rule.Field, strings.Join(candidates, "; ")),
		nil,
	)
}

func describeRow(row record.Row) string {
	fields := make([]string, 0, len(row))
	for field := range row {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+"="+row[field])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

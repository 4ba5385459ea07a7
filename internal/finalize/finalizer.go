// Package finalize re-derives each record's target path once metadata is
// known.
//
// Derive rules extract secondary variables from matched metadata field
// values; replacement rules rewrite single named variables; the target
// template is then rendered a second time with metadata placeholders
// available, and the sequencing policy is re-applied against the finalized
// batch so final paths stay globally unique even when metadata changed them.
package finalize

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"dropsync/internal/config"
	"dropsync/internal/logging"
	"dropsync/internal/metadata"
	"dropsync/internal/plan"
	"dropsync/internal/record"
	"dropsync/internal/services"
	"dropsync/internal/template"
)

// Finalizer renders final target paths for a planned batch.
type Finalizer struct {
	spec     *config.SyncSpec
	repoDir  string
	resolver *metadata.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewFinalizer constructs a finalizer sharing the run's metadata resolver.
func NewFinalizer(spec *config.SyncSpec, repoDir string, resolver *metadata.Resolver, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Finalizer{
		spec:     spec,
		repoDir:  repoDir,
		resolver: resolver,
		logger:   logger.With(logging.String(logging.FieldComponent, "finalizer")),
		now:      time.Now,
	}
}

// Finalize derives secondary variables, applies variable replacements, and
// re-renders every record's target against the finalized batch.
func (f *Finalizer) Finalize(ctx context.Context, batch *plan.Batch) error {
	logger := logging.WithContext(ctx, f.logger)
	sequencer := plan.NewStrictSequencer(f.spec.Sequencing)

	for _, rec := range batch.Records {
		f.derive(rec, logger)
		f.replaceVars(rec)

		modTime := rec.ModTime
		rendered := template.Render(f.spec.Template,
			template.Vars(rec.Vars.Map()),
			f.resolver.MetaProvider(rec),
			template.Builtins(f.spec.DateFormat, f.now, func() (time.Time, error) { return modTime, nil }),
		)
		sequenced, err := sequencer.Apply(rendered, rec.Source)
		if err != nil {
			return services.Wrap(services.ErrValidation, "finalizing", "sequence target", "Failed to derive a unique final target path", err)
		}
		rec.Target = filepath.Join(f.repoDir, sequenced)
		logger.Debug("finalized target",
			logging.String("record", rec.RelPath),
			logging.String("target", rec.Target),
		)
	}
	return nil
}

// derive applies the extraction rules against matched metadata field values.
// Newly named groups merge into the variable map without overwriting
// existing names, so original captures keep precedence.
func (f *Finalizer) derive(rec *record.FileRecord, logger *slog.Logger) {
	for _, rule := range f.spec.DeriveRules {
		src, ok := f.resolver.Source(rule.Source)
		if !ok {
			continue
		}
		row, ok := rec.RowFor(rule.Source)
		if !ok {
			continue
		}
		value, ok := src.Value(row, rule.Field)
		if !ok {
			continue
		}
		re := rule.Regexp()
		match := re.FindStringSubmatch(value)
		if match == nil {
			continue
		}
		for i, name := range re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			if rec.Vars.Merge(name, match[i]) {
				logger.Debug("derived variable",
					logging.String("record", rec.RelPath),
					logging.String("name", name),
					logging.String("value", match[i]),
				)
			}
		}
	}
}

func (f *Finalizer) replaceVars(rec *record.FileRecord) {
	for _, rule := range f.spec.ReplaceRules {
		if rule.Target != config.TargetVariable {
			continue
		}
		if value, ok := rec.Vars.Get(rule.Name); ok {
			rec.Vars.Set(rule.Name, strings.ReplaceAll(value, rule.Find, rule.Replace))
		}
	}
}

// ReplaceField applies the field-scoped replacement rules to one rendered
// output field value. This is the second replacement checkpoint, run
// immediately before catalog row assembly.
func ReplaceField(rules []config.ReplaceRule, field, value string) string {
	for _, rule := range rules {
		if rule.Target != config.TargetField || rule.Name != field {
			continue
		}
		value = strings.ReplaceAll(value, rule.Find, rule.Replace)
	}
	return value
}

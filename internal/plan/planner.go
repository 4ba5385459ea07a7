// Package plan discovers candidate files in the drop folder and derives each
// record's identity.
//
// Discovery enumerates files under the glob filter, strips the drop-root
// prefix, and matches the remainder against the configured expression. Named
// capture groups become the record's variable map, substituted literally into
// the target template; the sequencing policy then resolves collisions within
// the batch. Non-matching files are skipped, counted, and reported — they are
// never an error.
package plan

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dropsync/internal/config"
	"dropsync/internal/fileutil"
	"dropsync/internal/logging"
	"dropsync/internal/record"
	"dropsync/internal/services"
	"dropsync/internal/template"
)

// Planner builds the initial batch of file records for one run.
type Planner struct {
	spec    *config.SyncSpec
	dropDir string
	repoDir string
	logger  *slog.Logger
}

// Batch is the planner's output: ordered records plus the files that did not
// match the discovery expression.
type Batch struct {
	Records []*record.FileRecord
	Skipped []string
}

// NewPlanner constructs a planner for the given spec and directories.
func NewPlanner(spec *config.SyncSpec, dropDir, repoDir string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{
		spec:    spec,
		dropDir: dropDir,
		repoDir: repoDir,
		logger:  logger.With(logging.String(logging.FieldComponent, "planner")),
	}
}

// Discover enumerates the drop folder and yields the ordered record batch.
// Files are sorted by relative path before planning so run sequencing stays
// deterministic across platforms.
func (p *Planner) Discover(ctx context.Context) (*Batch, error) {
	logger := logging.WithContext(ctx, p.logger)

	candidates, err := p.enumerate()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "planning", "enumerate drop folder", "Failed to list drop folder contents", err)
	}
	sort.Strings(candidates)

	re := p.spec.MatchRegexp()
	groupNames := re.SubexpNames()

	batch := &Batch{}
	sequencer := NewSequencer(p.spec.Sequencing)
	for _, rel := range candidates {
		match := re.FindStringSubmatch(rel)
		if match == nil {
			batch.Skipped = append(batch.Skipped, rel)
			logger.Debug("file does not match discovery expression", logging.String("file", rel))
			continue
		}

		source := filepath.Join(p.dropDir, rel)
		info, err := os.Stat(source)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "planning", "stat source", "Discovered file disappeared during planning", err)
		}
		rec := record.New(source, rel, info.ModTime())
		for i, name := range groupNames {
			if i == 0 || name == "" {
				continue
			}
			rec.Vars.Set(name, match[i])
		}

		rendered := template.Render(p.spec.Template, template.Vars(rec.Vars.Map()))
		sequenced, err := sequencer.Apply(rendered, source)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "planning", "sequence target", "Failed to derive a unique target path", err)
		}
		rec.Target = filepath.Join(p.repoDir, sequenced)

		logger.Debug("planned record",
			logging.String("record", rel),
			logging.String("target", rec.Target),
			logging.Int("vars", rec.Vars.Len()),
		)
		batch.Records = append(batch.Records, rec)
	}

	logger.Info("planning complete",
		logging.Int("matched", len(batch.Records)),
		logging.Int("skipped", len(batch.Skipped)),
	)
	return batch, nil
}

// enumerate walks the drop folder and returns drop-relative paths passing the
// glob filter. Sync rules files and checksum sidecars are never candidates.
func (p *Planner) enumerate() ([]string, error) {
	var out []string
	err := filepath.WalkDir(p.dropDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.dropDir, path)
		if err != nil {
			return err
		}
		if isInternalFile(rel) {
			return nil
		}
		if !matchGlob(p.spec.Glob, rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

func isInternalFile(rel string) bool {
	base := filepath.Base(rel)
	if base == config.SyncFileName {
		return true
	}
	switch filepath.Ext(base) {
	case fileutil.MD5SidecarExt, fileutil.Blake3SidecarExt:
		return true
	}
	return false
}

// matchGlob applies the filter to the relative path, falling back to the base
// name so a plain `*.csv` still matches files in subdirectories.
func matchGlob(glob, rel string) bool {
	if glob == "" || glob == "*" {
		return true
	}
	if ok, err := filepath.Match(glob, rel); err == nil && ok {
		return true
	}
	if !strings.ContainsRune(glob, filepath.Separator) {
		if ok, err := filepath.Match(glob, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

// Package engine orchestrates a sync run end to end: discovery, metadata
// matching, integrity prechecks, target finalization, transfer, and catalog
// write-back, in that order.
//
// A run is all-or-nothing only at the matching stage: an ambiguous metadata
// match aborts before a single byte is copied. Everything after that point
// degrades per record.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
	"dropsync/internal/finalize"
	"dropsync/internal/integrity"
	"dropsync/internal/logging"
	"dropsync/internal/metadata"
	"dropsync/internal/plan"
	"dropsync/internal/services"
	"dropsync/internal/transfer"
	"dropsync/internal/writeback"
)

// Engine runs sync passes against one configured drop folder and catalog.
type Engine struct {
	cfg    *config.Config
	cat    catalog.Catalog
	logger *slog.Logger
}

// Options selects the run mode.
type Options struct {
	// Execute performs the transfer and catalog inserts. The default is a
	// dry run: everything is planned and reported, nothing is written.
	Execute bool
	// DropDir overrides the configured drop folder.
	DropDir string
}

// Result is what a run produced (or, for a dry run, would produce).
type Result struct {
	RunID    string
	Executed bool
	RepoDir  string
	Spec     *config.SyncSpec
	Batch    *plan.Batch
	Sources  []*metadata.Source
	Changes  *writeback.ChangeSet
	Inserted int
}

func New(cfg *config.Config, cat catalog.Catalog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{cfg: cfg, cat: cat, logger: logger.With(logging.String(logging.FieldComponent, "engine"))}
}

// Run executes one sync pass. Ambiguous metadata or presence matches abort
// the run; transfer and write-back failures are recorded per record.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, e.logger)

	dropDir := opts.DropDir
	if dropDir == "" {
		dropDir = e.cfg.Paths.DropDir
	}
	if dropDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "planning", "drop dir", "No drop folder configured", nil)
	}

	unlock, err := e.acquireRunLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	spec, err := config.LoadSyncSpec(dropDir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "planning", "sync spec", "Failed to load sync spec", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "planning", "sync spec", "Invalid sync spec", err)
	}
	repoDir := spec.RepositoryFolder
	if repoDir == "" {
		repoDir = e.cfg.Paths.RepositoryDir
	}
	if repoDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "planning", "repository dir", "No repository folder configured", nil)
	}

	result := &Result{RunID: runID, Executed: opts.Execute, RepoDir: repoDir, Spec: spec}

	// Stage 1: metadata sources. Individual failures are non-fatal, the
	// source is carried with its error so rules and reports can see it.
	srcCtx := services.WithStage(ctx, "loading")
	sources := metadata.LoadSources(srcCtx, spec.Sources, dropDir, e.cat, e.logger)
	resolver := metadata.NewResolver(sources, e.logger)
	result.Sources = sources

	// Stage 2: discovery and provisional targets.
	planCtx := services.WithStage(ctx, "planning")
	planner := plan.NewPlanner(spec, dropDir, repoDir, e.logger)
	batch, err := planner.Discover(planCtx)
	if err != nil {
		return nil, err
	}
	result.Batch = batch
	logger.Info("discovered files",
		logging.Int("matched", len(batch.Records)),
		logging.Int("skipped", len(batch.Skipped)),
	)

	// Stage 3: metadata matching. Ambiguity aborts the whole run here,
	// before any file is touched.
	matchCtx := services.WithStage(ctx, "matching")
	for _, rec := range batch.Records {
		recCtx := services.WithRecord(matchCtx, rec.RelPath)
		if err := resolver.Match(recCtx, rec, spec.MatchRules); err != nil {
			return nil, err
		}
	}

	// Stage 4: integrity prechecks. Mismatches mark records, I/O errors
	// abort.
	verifier := integrity.NewVerifier(e.logger)
	if !opts.Execute {
		verifier = integrity.NewDryRunVerifier(e.logger)
	}
	verifyCtx := services.WithStage(ctx, "verifying")
	for _, rec := range batch.Records {
		recCtx := services.WithRecord(verifyCtx, rec.RelPath)
		if err := verifier.Precheck(recCtx, rec); err != nil {
			return nil, err
		}
	}

	// Stage 5: final targets.
	finCtx := services.WithStage(ctx, "finalizing")
	finalizer := finalize.NewFinalizer(spec, repoDir, resolver, e.logger)
	if err := finalizer.Finalize(finCtx, batch); err != nil {
		return nil, err
	}

	// Stage 6: catalog diff. Planned for both modes so dry runs can report
	// the pending row changes.
	wbCtx := services.WithStage(ctx, "writing back")
	wb := writeback.NewPlanner(spec, e.cat, resolver, e.cfg.Catalog.Schema, e.logger)
	changes, err := wb.Plan(wbCtx, batch)
	if err != nil {
		if services.Fatal(err) {
			return nil, err
		}
		logger.Error("catalog diff planning failed", logging.Error(err))
	}
	result.Changes = changes

	if !opts.Execute {
		return result, nil
	}

	execCtx := services.WithStage(ctx, "transferring")
	executor := transfer.NewExecutor(verifier, spec.MetadataRequired, e.logger)
	if err := executor.Execute(execCtx, batch); err != nil {
		// Recorded per record; the run continues to write-back for the
		// files that did make it across.
		logger.Error("transfer errors", logging.Error(err))
	}

	if changes != nil {
		applied, err := wb.Apply(wbCtx, changes)
		if err != nil {
			logger.Error("catalog write-back failed", logging.Error(err))
		}
		result.Inserted = applied.Inserted
	}

	logger.Info("run complete",
		logging.Int("records", len(batch.Records)),
		logging.Int("inserted", result.Inserted),
		logging.Bool("executed", opts.Execute),
	)
	return result, nil
}

// acquireRunLock serializes runs on this machine. A held lock means another
// sync is in flight; the caller gets a configuration-class error rather than
// a blocked wait.
func (e *Engine) acquireRunLock() (func(), error) {
	lockDir := e.cfg.Paths.LogDir
	if lockDir == "" {
		lockDir = filepath.Dir(e.cfg.Catalog.Path)
	}
	lock := flock.New(filepath.Join(lockDir, "dropsync.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "planning", "run lock", "Failed to acquire run lock", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrConfiguration, "planning", "run lock", "Another sync run is already in progress", nil)
	}
	return func() { _ = lock.Unlock() }, nil
}

// Check audits every file under the repository folder against its checksum
// sidecar. Nothing is written.
func (e *Engine) Check(ctx context.Context) ([]integrity.CheckStatus, error) {
	repoDir := e.cfg.Paths.RepositoryDir
	if repoDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "checking", "repository dir", "No repository folder configured", nil)
	}
	files, err := listDataFiles(repoDir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "checking", "walk", "Failed to walk repository folder", err)
	}

	logger := logging.WithContext(ctx, e.logger)
	statuses := make([]integrity.CheckStatus, 0, len(files))
	for _, path := range files {
		status, err := integrity.CheckFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "checking", "hash", fmt.Sprintf("Failed to verify %s", path), err)
		}
		if status.Checked && !status.OK {
			logger.Warn("integrity check failed",
				logging.String("file", path),
				logging.String("method", status.Method),
			)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

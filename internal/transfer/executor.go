// Package transfer copies planned files into the repository.
//
// The executor is idempotent: a target that already exists is never
// overwritten, only re-verified, so re-running after a partial failure
// copies exactly the files that are still missing.
package transfer

import (
	"context"
	"log/slog"
	"os"

	"dropsync/internal/fileutil"
	"dropsync/internal/integrity"
	"dropsync/internal/logging"
	"dropsync/internal/plan"
	"dropsync/internal/record"
	"dropsync/internal/services"
)

// Executor performs the copy step for an entire batch.
type Executor struct {
	verifier         *integrity.Verifier
	metadataRequired bool
	logger           *slog.Logger
}

func NewExecutor(verifier *integrity.Verifier, metadataRequired bool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		verifier:         verifier,
		metadataRequired: metadataRequired,
		logger:           logger.With(logging.String(logging.FieldComponent, "transfer")),
	}
}

// Execute copies every eligible record in the batch and assembles each
// record's outcome. Per-record copy failures are recorded and do not stop
// the remaining records; the first error is returned after the batch.
func (e *Executor) Execute(ctx context.Context, batch *plan.Batch) error {
	logger := logging.WithContext(ctx, e.logger)

	var firstErr error
	for _, rec := range batch.Records {
		if err := e.transfer(ctx, rec, logger); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Executor) transfer(ctx context.Context, rec *record.FileRecord, logger *slog.Logger) error {
	outcome := &record.Outcome{}
	rec.Outcome = outcome

	if reason := rec.SkipReason(e.metadataRequired); reason != "" {
		outcome.Reason = reason
		logger.Info("skipping file",
			logging.String("file", rec.RelPath),
			logging.String("reason", reason),
		)
		return nil
	}

	if _, err := os.Stat(rec.Target); err == nil {
		// Already present from an earlier run. Verify, never overwrite.
		logger.Info("target exists, skipping copy",
			logging.String("file", rec.RelPath),
			logging.String("target", rec.Target),
		)
	} else {
		if err := fileutil.CopyFile(rec.Source, rec.Target); err != nil {
			outcome.Reason = record.ReasonCopyFailed
			logger.Error("copy failed",
				logging.String("file", rec.RelPath),
				logging.String("target", rec.Target),
				logging.Error(err),
			)
			return services.Wrap(services.ErrTransient, "transferring", "copy", "Failed to copy file into the repository", err)
		}
		outcome.CopyAttempted = true
	}

	verified, err := e.verifier.PostCheck(ctx, rec)
	if err != nil {
		return err
	}
	outcome.Verified = verified
	if !verified {
		return nil
	}

	kind, ok := fileutil.CopySidecar(rec.Source, rec.Target)
	outcome.SidecarType = kind
	outcome.SidecarCopyOK = ok
	if kind != "" && !ok {
		logger.Warn("sidecar propagation failed",
			logging.String("file", rec.RelPath),
			logging.String("sidecar", kind),
		)
	}

	logger.Info("transferred",
		logging.String("file", rec.RelPath),
		logging.String("target", rec.Target),
		logging.Bool("copied", outcome.CopyAttempted),
	)
	return nil
}

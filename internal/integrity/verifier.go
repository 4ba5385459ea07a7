// Package integrity applies tiered content verification around transfers.
//
// Before a file is copied, the weak tier recomputes MD5 against an existing
// .md5 sidecar; without one, the strong tier establishes a BLAKE3 baseline
// sidecar (or checks against one left by an earlier run). A mismatch never
// aborts the run: the record is marked and the transfer executor withholds
// the copy. After a copy, the transferred bytes are compared block-wise
// against the source regardless of which tier ran.
package integrity

import (
	"context"
	"log/slog"
	"strings"

	"dropsync/internal/fileutil"
	"dropsync/internal/logging"
	"dropsync/internal/record"
	"dropsync/internal/services"
)

// Verifier runs the pre- and post-transfer integrity checks.
type Verifier struct {
	logger        *slog.Logger
	writeBaseline bool
}

func NewVerifier(logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Verifier{
		logger:        logger.With(logging.String(logging.FieldComponent, "integrity")),
		writeBaseline: true,
	}
}

// NewDryRunVerifier computes digests but never writes baseline sidecars, so
// a planning pass leaves the drop folder untouched.
func NewDryRunVerifier(logger *slog.Logger) *Verifier {
	v := NewVerifier(logger)
	v.writeBaseline = false
	return v
}

// Precheck fills rec.Integrity from whichever verification tier applies.
// Mismatches are recorded, not returned; the error covers I/O failures only.
func (v *Verifier) Precheck(ctx context.Context, rec *record.FileRecord) error {
	logger := logging.WithContext(ctx, v.logger)

	if expected, ok := fileutil.ReadMD5Sidecar(rec.Source); ok {
		computed, err := fileutil.MD5File(rec.Source)
		if err != nil {
			return services.Wrap(services.ErrTransient, "verifying", "md5", "Failed to compute MD5 checksum", err)
		}
		match := strings.EqualFold(computed, expected)
		rec.Integrity = record.Integrity{
			Method:   record.MethodWeakChecksum,
			Computed: computed,
			Expected: expected,
			OK:       &match,
		}
		if !match {
			logger.Warn("checksum mismatch",
				logging.String("file", rec.RelPath),
				logging.String("expected", expected),
				logging.String("computed", computed),
			)
		}
		return nil
	}

	if expected, ok := fileutil.ReadBlake3Sidecar(rec.Source); ok {
		computed, err := fileutil.Blake3File(rec.Source)
		if err != nil {
			return services.Wrap(services.ErrTransient, "verifying", "blake3", "Failed to compute BLAKE3 hash", err)
		}
		match := strings.EqualFold(computed, expected)
		rec.Integrity = record.Integrity{
			Method:   record.MethodStrongHash,
			Computed: computed,
			Expected: expected,
			OK:       &match,
		}
		if !match {
			logger.Warn("hash mismatch",
				logging.String("file", rec.RelPath),
				logging.String("expected", expected),
				logging.String("computed", computed),
			)
		}
		return nil
	}

	// No sidecar at all: establish a baseline for future runs. There is
	// nothing to compare against, so OK stays nil. A dry run computes the
	// digest without writing the sidecar.
	var (
		digest string
		err    error
	)
	if v.writeBaseline {
		digest, err = fileutil.WriteBlake3Sidecar(rec.Source)
	} else {
		digest, err = fileutil.Blake3File(rec.Source)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "verifying", "blake3", "Failed to establish BLAKE3 baseline", err)
	}
	rec.Integrity = record.Integrity{
		Method:   record.MethodStrongHash,
		Computed: digest,
	}
	logger.Debug("baseline sidecar written",
		logging.String("file", rec.RelPath),
		logging.String("digest", digest),
	)
	return nil
}

// PostCheck compares the transferred bytes against the source block-wise.
func (v *Verifier) PostCheck(ctx context.Context, rec *record.FileRecord) (bool, error) {
	same, err := fileutil.SameContent(rec.Source, rec.Target)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "verifying", "compare", "Failed to compare transferred file against source", err)
	}
	if !same {
		logging.WithContext(ctx, v.logger).Warn("transferred file differs from source",
			logging.String("file", rec.RelPath),
			logging.String("target", rec.Target),
		)
	}
	return same, nil
}

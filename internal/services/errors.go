package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrCatalog        = errors.New("catalog error")
	ErrAmbiguousMatch = errors.New("ambiguous metadata match")
	ErrNotFound       = errors.New("not found")
	ErrTransient      = errors.New("transient failure")
)

// Exit codes returned by the CLI. Ambiguous matches get a distinct code so
// operators can tell a data-quality abort from an ordinary failure.
const (
	ExitFailure   = 1
	ExitAmbiguous = 2
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps a run error to the process exit status the CLI should use.
func ExitCode(err error) int {
	if errors.Is(err, ErrAmbiguousMatch) {
		return ExitAmbiguous
	}
	return ExitFailure
}

// Fatal reports whether the error must abort the whole run rather than be
// recorded against a single record.
func Fatal(err error) bool {
	return errors.Is(err, ErrAmbiguousMatch) || errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package services_test

import (
	"errors"
	"strings"
	"testing"

	"dropsync/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrCatalog, "metadata", "query source", "catalog unreachable", base)
	if !errors.Is(err, services.ErrCatalog) {
		t.Fatalf("expected catalog marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"metadata", "query source", "catalog unreachable", "boom"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "transfer", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	ambiguous := services.Wrap(services.ErrAmbiguousMatch, "metadata", "match rule", "two rows share key", nil)
	if got := services.ExitCode(ambiguous); got != services.ExitAmbiguous {
		t.Fatalf("ambiguous exit code = %d", got)
	}
	if got := services.ExitCode(errors.New("other")); got != services.ExitFailure {
		t.Fatalf("generic exit code = %d", got)
	}
}

func TestFatal(t *testing.T) {
	if !services.Fatal(services.Wrap(services.ErrAmbiguousMatch, "metadata", "", "", nil)) {
		t.Fatal("ambiguous match should be fatal")
	}
	if !services.Fatal(services.Wrap(services.ErrConfiguration, "config", "", "", nil)) {
		t.Fatal("configuration error should be fatal")
	}
	if services.Fatal(services.Wrap(services.ErrCatalog, "metadata", "", "", nil)) {
		t.Fatal("catalog fault should not be fatal")
	}
}

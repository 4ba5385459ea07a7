package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"dropsync/internal/services"
)

func TestConsoleHandlerFormatsHeaderAndFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar)).With(String(FieldComponent, "planner"))

	logger.Info("planned record", String("target", "a/b.csv"), Int("sequence", 2))

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Fatalf("missing level in %q", out)
	}
	if !strings.Contains(out, "[planner]") {
		t.Fatalf("missing component in %q", out)
	}
	if !strings.Contains(out, "target: a/b.csv") {
		t.Fatalf("missing field in %q", out)
	}
	if !strings.Contains(out, "sequence: 2") {
		t.Fatalf("missing int field in %q", out)
	}
}

func TestConsoleHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("diff", slog.Group("field", String("name", "Status"), String("to", "complete")))

	out := buf.String()
	if !strings.Contains(out, "field.name: Status") {
		t.Fatalf("missing flattened group key in %q", out)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn output, got %q", buf.String())
	}
}

func TestWithContextAddsRunFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	ctx := services.WithRunID(context.Background(), "0123456789abcdef")
	ctx = services.WithStage(ctx, "transfer")
	ctx = services.WithRecord(ctx, "inbox/a.bin")

	WithContext(ctx, logger).Info("copied")

	out := buf.String()
	if !strings.Contains(out, "run 01234567") {
		t.Fatalf("missing run subject in %q", out)
	}
	if !strings.Contains(out, "(transfer)") {
		t.Fatalf("missing stage subject in %q", out)
	}
	if !strings.Contains(out, "record: inbox/a.bin") {
		t.Fatalf("missing record field in %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := parseLevel("verbose"); got != slog.LevelInfo {
		t.Fatalf("parseLevel = %v", got)
	}
	if got := parseLevel("debug"); got != slog.LevelDebug {
		t.Fatalf("parseLevel = %v", got)
	}
}

package metadata_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
	"dropsync/internal/logging"
	"dropsync/internal/metadata"
)

func TestLoadDelimitedSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.tsv")
	content := "SampleID\tStatus\nS1\tnew\nS2\tdone\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	specs := []config.SourceSpec{
		{Name: "manifest", Type: config.SourceDelimited, Path: "manifest.tsv", Delimiter: "\t"},
	}
	sources := metadata.LoadSources(context.Background(), specs, dir, nil, logging.NewNop())
	if len(sources) != 1 {
		t.Fatalf("expected one source, got %d", len(sources))
	}
	src := sources[0]
	if src.Err != nil {
		t.Fatalf("source error: %v", src.Err)
	}
	if len(src.Rows) != 2 {
		t.Fatalf("rows = %d", len(src.Rows))
	}
	if src.Rows[1]["Status"] != "done" {
		t.Fatalf("row content = %v", src.Rows[1])
	}
}

func TestLoadDelimitedRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.csv")
	if err := os.WriteFile(path, []byte("SampleID,Status\nS1\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	specs := []config.SourceSpec{{Name: "m", Type: config.SourceDelimited, Path: path}}
	sources := metadata.LoadSources(context.Background(), specs, dir, nil, logging.NewNop())
	if sources[0].Err != nil {
		t.Fatalf("source error: %v", sources[0].Err)
	}
	if sources[0].Rows[0]["Status"] != "" {
		t.Fatalf("short row should backfill empty values: %v", sources[0].Rows[0])
	}
}

func TestLoadSpreadsheetSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.xlsx")

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	cells := [][]string{
		{"SampleID", "Plate"},
		{"S1", "P1"},
		{"S2", "P2"},
	}
	for i, line := range cells {
		for j, value := range line {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := book.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	if err := book.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}

	specs := []config.SourceSpec{{Name: "manifest", Type: config.SourceSpreadsheet, Path: "manifest.xlsx"}}
	sources := metadata.LoadSources(context.Background(), specs, dir, nil, logging.NewNop())
	src := sources[0]
	if src.Err != nil {
		t.Fatalf("source error: %v", src.Err)
	}
	if len(src.Rows) != 2 {
		t.Fatalf("rows = %d", len(src.Rows))
	}
	if src.Rows[0]["Plate"] != "P1" {
		t.Fatalf("row content = %v", src.Rows[0])
	}
}

func TestLoadCatalogSource(t *testing.T) {
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Insert(ctx, "lists", "samples", []catalog.Row{
		{"SampleID": "S1", "Status": "active"},
		{"SampleID": "S2", "Status": "retired"},
	}); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	specs := []config.SourceSpec{{
		Name: "samples", Type: config.SourceCatalog, Schema: "lists", Table: "samples",
		Filters: []config.FilterSpec{{Field: "Status", Value: "active", Op: "equal"}},
	}}
	sources := metadata.LoadSources(ctx, specs, "", store, logging.NewNop())
	src := sources[0]
	if src.Err != nil {
		t.Fatalf("source error: %v", src.Err)
	}
	if len(src.Rows) != 1 || src.Rows[0]["SampleID"] != "S1" {
		t.Fatalf("filtered rows = %v", src.Rows)
	}
}

func TestLoadFailedSourceIsNonFatal(t *testing.T) {
	specs := []config.SourceSpec{
		{Name: "missing", Type: config.SourceDelimited, Path: "does-not-exist.csv"},
		{Name: "bad", Type: config.SourceCatalog, Schema: "lists", Table: "nope"},
	}
	sources := metadata.LoadSources(context.Background(), specs, t.TempDir(), nil, logging.NewNop())
	if len(sources) != 2 {
		t.Fatalf("expected two sources, got %d", len(sources))
	}
	for _, src := range sources {
		if src.Err == nil {
			t.Fatalf("source %q should carry its load error", src.Name)
		}
		if len(src.Rows) != 0 {
			t.Fatalf("failed source %q should have no rows", src.Name)
		}
	}
}

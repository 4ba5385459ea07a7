package metadata

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/xuri/excelize/v2"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
	"dropsync/internal/logging"
	"dropsync/internal/record"
)

// LoadSources loads every configured source. A source that fails to load is
// returned with Err set and zero rows rather than failing the batch; rules
// that reference it simply never match.
func LoadSources(ctx context.Context, specs []config.SourceSpec, dropDir string, cat catalog.Catalog, logger *slog.Logger) []*Source {
	log := logging.WithContext(ctx, logger)
	sources := make([]*Source, 0, len(specs))
	for _, spec := range specs {
		src := loadSource(ctx, spec, dropDir, cat)
		if src.Err != nil {
			log.Warn("metadata source failed to load",
				logging.String("source", src.Name),
				logging.String("type", src.Type),
				logging.Error(src.Err),
			)
		} else {
			log.Debug("metadata source loaded",
				logging.String("source", src.Name),
				logging.String("type", src.Type),
				logging.Int("rows", len(src.Rows)),
			)
		}
		sources = append(sources, src)
	}
	return sources
}

func loadSource(ctx context.Context, spec config.SourceSpec, dropDir string, cat catalog.Catalog) *Source {
	src := &Source{Name: spec.Name, Type: spec.Type}
	switch spec.Type {
	case config.SourceCatalog:
		src.Rows, src.columns, src.Err = loadCatalogRows(ctx, spec, cat)
	case config.SourceSpreadsheet:
		src.Rows, src.Err = loadSpreadsheetRows(config.ResolvePath(dropDir, spec.Path), spec.Sheet)
	case config.SourceDelimited:
		src.Rows, src.Err = loadDelimitedRows(config.ResolvePath(dropDir, spec.Path), spec.Delimiter)
	default:
		src.Err = fmt.Errorf("unknown source type %q", spec.Type)
	}
	return src
}

func loadCatalogRows(ctx context.Context, spec config.SourceSpec, cat catalog.Catalog) ([]record.Row, []columnInfo, error) {
	if cat == nil {
		return nil, nil, fmt.Errorf("no catalog backend configured")
	}
	filters := make([]catalog.Filter, 0, len(spec.Filters))
	for _, f := range spec.Filters {
		if f.Field == "" {
			continue
		}
		filters = append(filters, catalog.Filter{Field: f.Field, Value: f.Value, Op: catalog.ParseOp(f.Op)})
	}
	rows, err := cat.Query(ctx, spec.Schema, spec.Table, filters)
	if err != nil {
		return nil, nil, err
	}

	var columns []columnInfo
	schema, err := cat.GetSchema(ctx, spec.Schema, spec.Table)
	if err == nil {
		columns = make([]columnInfo, 0, len(schema))
		for _, col := range schema {
			columns = append(columns, columnInfo{name: col.Name, caption: col.Caption})
		}
	}
	return rows, columns, nil
}

func loadSpreadsheetRows(path, sheet string) ([]record.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	header := cells[0]
	rows := make([]record.Row, 0, len(cells)-1)
	for _, line := range cells[1:] {
		row := make(record.Row, len(header))
		for i, field := range header {
			if field == "" {
				continue
			}
			if i < len(line) {
				row[field] = line[i]
			} else {
				row[field] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func loadDelimitedRows(path, delimiter string) ([]record.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open delimited file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delimiter != "" {
		reader.Comma = []rune(delimiter)[0]
	}
	reader.FieldsPerRecord = -1

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited file %s: %w", path, err)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	header := lines[0]
	rows := make([]record.Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		row := make(record.Row, len(header))
		for i, field := range header {
			if field == "" {
				continue
			}
			if i < len(line) {
				row[field] = line[i]
			} else {
				row[field] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

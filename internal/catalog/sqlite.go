package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed Catalog. Each (schema, table) pair maps to one
// physical table; column captions live in a side table so GetSchema can
// report display names that differ from internal ones.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initMeta(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initMeta(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS catalog_columns (
        schema_name TEXT NOT NULL,
        table_name  TEXT NOT NULL,
        column_name TEXT NOT NULL,
        caption     TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (schema_name, table_name, column_name)
    )`)
	if err != nil {
		return fmt.Errorf("create catalog_columns: %w", err)
	}
	return nil
}

// Query returns all rows of schema.table matching every filter.
func (s *Store) Query(ctx context.Context, schema, table string, filters []Filter) ([]Row, error) {
	physical, err := physicalName(schema, table)
	if err != nil {
		return nil, err
	}
	exists, err := s.tableExists(ctx, physical)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s.%s: %w", schema, table, ErrNoTable)
	}

	query := fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(physical))
	var (
		clauses []string
		args    []any
	)
	for _, f := range filters {
		if f.Field == "" {
			continue
		}
		if err := checkIdent(f.Field); err != nil {
			return nil, err
		}
		switch f.Op {
		case OpContains:
			clauses = append(clauses, fmt.Sprintf(`%s LIKE '%%' || ? || '%%'`, quoteIdent(f.Field)))
		default:
			clauses = append(clauses, fmt.Sprintf(`%s = ?`, quoteIdent(f.Field)))
		}
		args = append(args, f.Value)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i].String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Insert appends rows to schema.table, creating the table (and extending its
// column set) from the union of row keys as needed.
func (s *Store) Insert(ctx context.Context, schema, table string, rows []Row) (InsertResult, error) {
	if len(rows) == 0 {
		return InsertResult{}, nil
	}
	physical, err := physicalName(schema, table)
	if err != nil {
		return InsertResult{}, err
	}
	columns := unionColumns(rows)
	if err := s.ensureTable(ctx, schema, table, physical, columns); err != nil {
		return InsertResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(physical), strings.Join(quoted, ", "), strings.Join(marks, ", "),
	))
	if err != nil {
		return InsertResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, row := range rows {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = row[col]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return InsertResult{}, fmt.Errorf("insert row into %s.%s: %w", schema, table, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return InsertResult{}, fmt.Errorf("commit insert: %w", err)
	}
	return InsertResult{Inserted: inserted}, nil
}

// GetSchema lists the columns of schema.table with their captions. Columns
// without a registered caption fall back to their internal name.
func (s *Store) GetSchema(ctx context.Context, schema, table string) ([]Column, error) {
	physical, err := physicalName(schema, table)
	if err != nil {
		return nil, err
	}
	exists, err := s.tableExists(ctx, physical)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s.%s: %w", schema, table, ErrNoTable)
	}

	captions := make(map[string]string)
	capRows, err := s.db.QueryContext(ctx,
		`SELECT column_name, caption FROM catalog_columns WHERE schema_name = ? AND table_name = ?`,
		schema, table,
	)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	defer capRows.Close()
	for capRows.Next() {
		var name, caption string
		if err := capRows.Scan(&name, &caption); err != nil {
			return nil, err
		}
		captions[name] = caption
	}
	if err := capRows.Err(); err != nil {
		return nil, err
	}

	infoRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(physical)))
	if err != nil {
		return nil, fmt.Errorf("table info %s.%s: %w", schema, table, err)
	}
	defer infoRows.Close()

	var columns []Column
	for infoRows.Next() {
		var (
			cid       int
			name      string
			colType   sql.NullString
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := infoRows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		caption := captions[name]
		if caption == "" {
			caption = name
		}
		columns = append(columns, Column{Name: name, Caption: caption})
	}
	return columns, infoRows.Err()
}

// SetCaption registers a display caption for a column.
func (s *Store) SetCaption(ctx context.Context, schema, table, column, caption string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_columns (schema_name, table_name, column_name, caption)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (schema_name, table_name, column_name) DO UPDATE SET caption = excluded.caption`,
		schema, table, column, caption,
	)
	if err != nil {
		return fmt.Errorf("set caption %s.%s.%s: %w", schema, table, column, err)
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context, schema, table, physical string, columns []string) error {
	exists, err := s.tableExists(ctx, physical)
	if err != nil {
		return err
	}
	if !exists {
		defs := make([]string, len(columns))
		for i, col := range columns {
			defs[i] = quoteIdent(col) + " TEXT"
		}
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE %s (%s)`, quoteIdent(physical), strings.Join(defs, ", "),
		))
		if err != nil {
			return fmt.Errorf("create table %s.%s: %w", schema, table, err)
		}
		for _, col := range columns {
			if err := s.SetCaption(ctx, schema, table, col, col); err != nil {
				return err
			}
		}
		return nil
	}

	existing, err := s.GetSchema(ctx, schema, table)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(existing))
	for _, col := range existing {
		known[col.Name] = struct{}{}
	}
	for _, col := range columns {
		if _, ok := known[col]; ok {
			continue
		}
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`ALTER TABLE %s ADD COLUMN %s TEXT`, quoteIdent(physical), quoteIdent(col),
		))
		if err != nil {
			return fmt.Errorf("add column %s to %s.%s: %w", col, schema, table, err)
		}
		if err := s.SetCaption(ctx, schema, table, col, col); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) tableExists(ctx context.Context, physical string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name = ?`, physical,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", physical, err)
	}
	return count > 0, nil
}

func unionColumns(rows []Row) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, row := range rows {
		for col := range row {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			columns = append(columns, col)
		}
	}
	sort.Strings(columns)
	return columns
}

func physicalName(schema, table string) (string, error) {
	if err := checkIdent(schema); err != nil {
		return "", err
	}
	if err := checkIdent(table); err != nil {
		return "", err
	}
	return schema + "__" + table, nil
}

func checkIdent(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty identifier")
	}
	if strings.ContainsAny(name, `"`) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

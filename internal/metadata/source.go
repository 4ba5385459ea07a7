package metadata

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"dropsync/internal/record"
)

// Source is one loaded metadata source: its row set plus lazily built
// lookup structures.
type Source struct {
	Name string
	Type string
	Rows []record.Row
	Err  error // non-nil when the source failed to load; Rows is empty

	// columns lists internal names with display captions when the backing
	// store distinguishes them (catalog sources); nil otherwise.
	columns []columnInfo

	fieldIndex map[string]map[string][]int
	schemaMap  map[string]string
	fieldNames []string
}

type columnInfo struct {
	name    string
	caption string
}

// NormalizeName strips non-alphanumerics and case-folds, so internal names,
// display captions, and qualified paths compare equal.
func NormalizeName(name string) string {
	folded := cases.Fold().String(name)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveField maps a configured field name to the source's actual field
// name. An exact normalized match is preferred; a suffix-normalized match is
// the fallback, which tolerates nested/qualified paths on either side.
func (s *Source) ResolveField(name string) (string, bool) {
	s.ensureSchemaMap()

	if len(s.fieldNames) == 0 {
		return "", false
	}
	if _, ok := firstRowValue(s.Rows, name); ok {
		return name, true
	}

	wanted := NormalizeName(name)
	if wanted == "" {
		return "", false
	}
	if actual, ok := s.schemaMap[wanted]; ok {
		return actual, true
	}
	for _, field := range s.fieldNames {
		normalized := NormalizeName(field)
		if strings.HasSuffix(normalized, wanted) || strings.HasSuffix(wanted, normalized) {
			return field, true
		}
	}
	for _, col := range s.columns {
		normalized := NormalizeName(col.caption)
		if strings.HasSuffix(normalized, wanted) || strings.HasSuffix(wanted, normalized) {
			return col.name, true
		}
	}
	return "", false
}

// Value resolves field against the schema and returns its value in row.
func (s *Source) Value(row record.Row, field string) (string, bool) {
	if value, ok := row[field]; ok {
		return value, true
	}
	actual, ok := s.ResolveField(field)
	if !ok {
		return "", false
	}
	value, ok := row[actual]
	return value, ok
}

// RowsMatching returns the indices of rows whose field exactly equals value.
// The per-field index is built on first use.
func (s *Source) RowsMatching(field, value string) []int {
	actual, ok := s.ResolveField(field)
	if !ok {
		return nil
	}
	if s.fieldIndex == nil {
		s.fieldIndex = make(map[string]map[string][]int)
	}
	index, ok := s.fieldIndex[actual]
	if !ok {
		index = make(map[string][]int)
		for i, row := range s.Rows {
			index[row[actual]] = append(index[row[actual]], i)
		}
		s.fieldIndex[actual] = index
	}
	return index[value]
}

func (s *Source) ensureSchemaMap() {
	if s.schemaMap != nil {
		return
	}
	s.schemaMap = make(map[string]string)

	nameSet := make(map[string]struct{})
	for _, row := range s.Rows {
		for field := range row {
			nameSet[field] = struct{}{}
		}
	}
	for _, col := range s.columns {
		nameSet[col.name] = struct{}{}
	}
	s.fieldNames = make([]string, 0, len(nameSet))
	for field := range nameSet {
		s.fieldNames = append(s.fieldNames, field)
	}
	sort.Strings(s.fieldNames)

	for _, field := range s.fieldNames {
		key := NormalizeName(field)
		if _, exists := s.schemaMap[key]; !exists {
			s.schemaMap[key] = field
		}
	}
	for _, col := range s.columns {
		key := NormalizeName(col.caption)
		if key == "" {
			continue
		}
		if _, exists := s.schemaMap[key]; !exists {
			s.schemaMap[key] = col.name
		}
	}
}

func firstRowValue(rows []record.Row, field string) (string, bool) {
	for _, row := range rows {
		if value, ok := row[field]; ok {
			return value, true
		}
	}
	return "", false
}

package metadata_test

import (
	"testing"

	"dropsync/internal/metadata"
	"dropsync/internal/record"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"SampleID", "sampleid"},
		{"Sample ID", "sampleid"},
		{"Data/Status", "datastatus"},
		{"sample_id", "sampleid"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := metadata.NormalizeName(tc.in); got != tc.want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveFieldPrefersExactNormalized(t *testing.T) {
	src := &metadata.Source{
		Name: "samples",
		Rows: []record.Row{{"SampleID": "S1", "Status": "new"}},
	}
	if field, ok := src.ResolveField("Sample ID"); !ok || field != "SampleID" {
		t.Fatalf("ResolveField = %q, %v", field, ok)
	}
	if field, ok := src.ResolveField("SampleID"); !ok || field != "SampleID" {
		t.Fatalf("direct ResolveField = %q, %v", field, ok)
	}
}

func TestResolveFieldSuffixFallback(t *testing.T) {
	src := &metadata.Source{
		Name: "samples",
		Rows: []record.Row{{"Status": "new"}},
	}
	// Qualified path on the lookup side resolves to the bare field.
	if field, ok := src.ResolveField("Data/Status"); !ok || field != "Status" {
		t.Fatalf("qualified ResolveField = %q, %v", field, ok)
	}

	nested := &metadata.Source{
		Name: "samples",
		Rows: []record.Row{{"Data/Status": "new"}},
	}
	// Bare lookup resolves to the qualified field.
	if field, ok := nested.ResolveField("Status"); !ok || field != "Data/Status" {
		t.Fatalf("bare ResolveField = %q, %v", field, ok)
	}
}

func TestResolveFieldUnknown(t *testing.T) {
	src := &metadata.Source{Name: "samples", Rows: []record.Row{{"SampleID": "S1"}}}
	if _, ok := src.ResolveField("Nothing"); ok {
		t.Fatal("expected no resolution")
	}
}

func TestRowsMatchingUsesIndex(t *testing.T) {
	src := &metadata.Source{
		Name: "samples",
		Rows: []record.Row{
			{"SampleID": "S1"},
			{"SampleID": "S2"},
			{"SampleID": "S1"},
		},
	}
	matches := src.RowsMatching("SampleID", "S1")
	if len(matches) != 2 || matches[0] != 0 || matches[1] != 2 {
		t.Fatalf("matches = %v", matches)
	}
	if got := src.RowsMatching("SampleID", "S9"); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestValueResolvesThroughSchema(t *testing.T) {
	src := &metadata.Source{
		Name: "samples",
		Rows: []record.Row{{"SampleID": "S1"}},
	}
	if value, ok := src.Value(src.Rows[0], "Sample ID"); !ok || value != "S1" {
		t.Fatalf("Value = %q, %v", value, ok)
	}
	if _, ok := src.Value(src.Rows[0], "Other"); ok {
		t.Fatal("expected missing field")
	}
}

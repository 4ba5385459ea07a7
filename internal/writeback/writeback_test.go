package writeback_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
	"dropsync/internal/logging"
	"dropsync/internal/metadata"
	"dropsync/internal/plan"
	"dropsync/internal/record"
	"dropsync/internal/services"
	"dropsync/internal/writeback"
)

func openStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeSpec(t *testing.T, mutate func(*config.SyncSpec)) *config.SyncSpec {
	t.Helper()
	spec := &config.SyncSpec{
		Match:    `(?P<sample>\w+)\.csv`,
		Template: "<sample>.csv",
		Sources: []config.SourceSpec{
			{Name: "samples", Type: config.SourceDelimited, Path: "samples.csv"},
		},
		MatchRules: []config.MatchRule{
			{Source: "samples", Field: "SampleID", Key: "<sample>"},
		},
		OutputFields: []config.OutputField{
			{Field: "SampleID", Template: "<sample>"},
			{Field: "Project", Template: "<samples.Project>"},
			{Field: "Status", Template: "complete"},
		},
		Presence: config.PresenceSpec{Field: "SampleID", Mode: config.ModeExact},
		WriteTo:  config.WriteTarget{Schema: "lists", Table: "synced"},
	}
	if mutate != nil {
		mutate(spec)
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return spec
}

func newResolver(rows []record.Row) *metadata.Resolver {
	return metadata.NewResolver([]*metadata.Source{
		{Name: "samples", Rows: rows},
	}, logging.NewNop())
}

func syncedRecord(t *testing.T, resolver *metadata.Resolver, spec *config.SyncSpec, sample string) *record.FileRecord {
	t.Helper()
	rec := record.New("/drop/"+sample+".csv", sample+".csv", time.Now())
	rec.Vars.Set("sample", sample)
	if err := resolver.Match(context.Background(), rec, spec.MatchRules); err != nil {
		t.Fatalf("Match: %v", err)
	}
	return rec
}

func TestPlanAndApplyInsertsNewRow(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, nil)
	resolver := newResolver([]record.Row{{"SampleID": "S123", "Project": "alpha"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(cs.Changes) != 1 || cs.Changes[0].Exists {
		t.Fatalf("changes = %+v", cs.Changes)
	}
	if !cs.Changes[0].WillChange() {
		t.Fatal("new row must report a pending change")
	}
	if got := cs.Changes[0].Fields["Project"]; got != "alpha" {
		t.Fatalf("rendered Project = %q", got)
	}

	result, err := p.Apply(ctx, cs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Inserted != 1 {
		t.Fatalf("inserted = %d", result.Inserted)
	}

	rows, err := store.Query(ctx, "lists", "synced", nil)
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows = %v, %v", rows, err)
	}
	if rows[0]["Status"] != "complete" {
		t.Fatalf("row = %v", rows[0])
	}
}

func TestPlanDiffsExistingRow(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, nil)
	if _, err := store.Insert(ctx, "lists", "synced", []catalog.Row{
		{"SampleID": "S123", "Project": "alpha", "Status": "pending"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	resolver := newResolver([]record.Row{{"SampleID": "S123", "Project": "alpha"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	change := cs.Changes[0]
	if !change.Exists || !rec.Presence.ExistsInCatalog {
		t.Fatalf("presence = %+v", rec.Presence)
	}
	if !change.WillChange() {
		t.Fatal("status change must be reported")
	}
	var status *writeback.FieldDiff
	for i := range change.Diffs {
		if change.Diffs[i].Field == "Status" {
			status = &change.Diffs[i]
		}
	}
	if status == nil || !status.Changed || status.From != "pending" || status.To != "complete" {
		t.Fatalf("status diff = %+v", status)
	}

	// Existing rows are reported only, never re-inserted.
	result, err := p.Apply(ctx, cs)
	if err != nil || result.Inserted != 0 {
		t.Fatalf("Apply = %+v, %v", result, err)
	}
}

func TestPlanUnchangedExistingRow(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, nil)
	if _, err := store.Insert(ctx, "lists", "synced", []catalog.Row{
		{"SampleID": "S123", "Project": "alpha", "Status": "complete"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	resolver := newResolver([]record.Row{{"SampleID": "S123", "Project": "alpha"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if cs.Changes[0].WillChange() {
		t.Fatalf("identical row reported as change: %+v", cs.Changes[0].Diffs)
	}
}

func TestPlanAmbiguousPresenceIsFatal(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, nil)
	if _, err := store.Insert(ctx, "lists", "synced", []catalog.Row{
		{"SampleID": "S123", "Status": "a"},
		{"SampleID": "S123", "Status": "b"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	resolver := newResolver([]record.Row{{"SampleID": "S123", "Project": "alpha"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	_, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if !errors.Is(err, services.ErrAmbiguousMatch) {
		t.Fatalf("expected ambiguous presence error, got %v", err)
	}
}

func TestPlanUnresolvedPresenceValue(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, func(s *config.SyncSpec) {
		s.OutputFields = []config.OutputField{
			{Field: "SampleID", Template: "<samples.Barcode>"},
		}
	})
	resolver := newResolver([]record.Row{{"SampleID": "S123", "Project": "alpha"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !rec.Presence.Unresolved {
		t.Fatalf("presence = %+v", rec.Presence)
	}
	if rec.Presence.ExistsInCatalog {
		t.Fatal("unresolved value must not count as present")
	}
	if len(cs.Changes) != 1 {
		t.Fatalf("changes = %+v", cs.Changes)
	}
}

// faultyCatalog fails presence queries for one SampleID value and delegates
// everything else to a real store.
type faultyCatalog struct {
	*catalog.Store
	failValue string
}

func (f *faultyCatalog) Query(ctx context.Context, schema, table string, filters []catalog.Filter) ([]record.Row, error) {
	for _, flt := range filters {
		if flt.Value == f.failValue {
			return nil, errors.New("network timeout")
		}
	}
	return f.Store.Query(ctx, schema, table, filters)
}

func TestPlanSurvivesPresenceQueryFailure(t *testing.T) {
	ctx := context.Background()
	spec := writeSpec(t, nil)
	cat := &faultyCatalog{Store: openStore(t), failValue: "S1"}
	resolver := newResolver([]record.Row{
		{"SampleID": "S1", "Project": "alpha"},
		{"SampleID": "S2", "Project": "beta"},
	})
	bad := syncedRecord(t, resolver, spec, "S1")
	good := syncedRecord(t, resolver, spec, "S2")

	p := writeback.NewPlanner(spec, cat, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{bad, good}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !bad.Presence.Unresolved {
		t.Fatalf("failed query must leave the record unresolved: %+v", bad.Presence)
	}
	if good.Presence.Unresolved || good.Presence.ExistsInCatalog {
		t.Fatalf("healthy record affected: %+v", good.Presence)
	}
	if len(cs.Changes) != 2 {
		t.Fatalf("changes = %+v", cs.Changes)
	}
}

func TestPlanSkipsIneligibleRecords(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, func(s *config.SyncSpec) { s.MetadataRequired = true })
	resolver := newResolver([]record.Row{{"SampleID": "OTHER"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(cs.Changes) != 0 {
		t.Fatalf("unmatched record planned for write-back: %+v", cs.Changes)
	}
}

func TestApplyWithholdsUnverifiedRecords(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, nil)
	resolver := newResolver([]record.Row{{"SampleID": "S123", "Project": "alpha"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	rec.Outcome = &record.Outcome{Verified: false}

	result, err := p.Apply(ctx, cs)
	if err != nil || result.Inserted != 0 {
		t.Fatalf("Apply = %+v, %v", result, err)
	}
}

func TestFieldReplacementAppliesToOutput(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	spec := writeSpec(t, func(s *config.SyncSpec) {
		s.ReplaceRules = []config.ReplaceRule{
			{Target: config.TargetField, Name: "Project", Find: "alpha", Replace: "omega"},
		}
	})
	resolver := newResolver([]record.Row{{"SampleID": "S123", "Project": "alpha"}})
	rec := syncedRecord(t, resolver, spec, "S123")

	p := writeback.NewPlanner(spec, store, resolver, "lists", logging.NewNop())
	cs, err := p.Plan(ctx, &plan.Batch{Records: []*record.FileRecord{rec}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := cs.Changes[0].Fields["Project"]; got != "omega" {
		t.Fatalf("Project = %q", got)
	}
}

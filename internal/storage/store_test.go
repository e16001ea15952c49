// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litriage/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	store, err := NewStore(types.StorageConfig{Dir: tmpDir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return store, tmpDir
}

func sampleDoc(nativeID, title string) types.CuratedDocument {
	return types.CuratedDocument{
		Record: types.CandidateRecord{
			Source:   "pubmed",
			NativeID: nativeID,
			Title:    title,
			Authors:  []string{"A Researcher"},
		},
		Classification: types.ClassificationResult{
			CandidateID: "pubmed:" + nativeID,
			Label:       types.LabelRelevant,
			Confidence:  0.8,
		},
		Score: types.ConceptScore{
			CandidateID: "pubmed:" + nativeID,
			Total:       7.5,
		},
		ClusterSize: 1,
	}
}

func sampleReport(docID, runID string, quality float64) types.DocumentExtractionReport {
	return types.DocumentExtractionReport{
		DocumentID: docID,
		RunID:      runID,
		Results: map[string]types.ExtractionResult{
			"genetics": {
				AgentID:    "genetics",
				Payload:    map[string]any{"genes": []any{"KCNQ2"}, "variants": []any{"c.881C>T"}},
				Confidence: 0.9,
			},
		},
		Quality:    quality,
		Complete:   true,
		FinishedAt: time.Now().UTC(),
	}
}

func TestSaveAndListReports(t *testing.T) {
	store, _ := testSetup(t)
	ctx := context.Background()

	docA := sampleDoc("100", "KCNQ2 encephalopathy case")
	docB := sampleDoc("200", "SCN1A case series")
	if err := store.SaveReport(ctx, sampleReport("pubmed:100", "run-1", 0.9), docA); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveReport(ctx, sampleReport("pubmed:200", "run-1", 0.5), docB); err != nil {
		t.Fatal(err)
	}

	reports, err := store.ListReports(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	// Quality descending.
	if reports[0].DocumentID != "pubmed:100" || reports[1].DocumentID != "pubmed:200" {
		t.Errorf("order = %s, %s", reports[0].DocumentID, reports[1].DocumentID)
	}
	if reports[0].Title != "KCNQ2 encephalopathy case" {
		t.Errorf("title = %q", reports[0].Title)
	}
	if !reports[0].Complete {
		t.Error("report should be complete")
	}

	other, err := store.ListReports(ctx, "run-other")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("got %d reports for unknown run", len(other))
	}
}

func TestSaveReportIsIdempotent(t *testing.T) {
	store, _ := testSetup(t)
	ctx := context.Background()

	doc := sampleDoc("100", "A case")
	if err := store.SaveReport(ctx, sampleReport("pubmed:100", "run-1", 0.5), doc); err != nil {
		t.Fatal(err)
	}
	// Re-saving replaces, not duplicates.
	if err := store.SaveReport(ctx, sampleReport("pubmed:100", "run-1", 0.7), doc); err != nil {
		t.Fatal(err)
	}

	reports, err := store.ListReports(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].Quality != 0.7 {
		t.Errorf("quality = %f, want updated 0.7", reports[0].Quality)
	}
}

func TestSaveReportRecordsFailures(t *testing.T) {
	store, _ := testSetup(t)
	ctx := context.Background()

	report := types.DocumentExtractionReport{
		DocumentID: "pubmed:100",
		RunID:      "run-1",
		Results:    map[string]types.ExtractionResult{},
		Failures:   map[string]string{"genetics": "timed out after 30s"},
		Complete:   false,
		Missing:    []string{"genetics"},
		FinishedAt: time.Now().UTC(),
	}
	if err := store.SaveReport(ctx, report, sampleDoc("100", "A case")); err != nil {
		t.Fatal(err)
	}

	reports, err := store.ListReports(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports", len(reports))
	}
	if reports[0].Complete {
		t.Error("report should be incomplete")
	}
	if len(reports[0].Missing) != 1 || reports[0].Missing[0] != "genetics" {
		t.Errorf("missing = %v", reports[0].Missing)
	}
}

func TestSearchPayloads(t *testing.T) {
	store, _ := testSetup(t)
	ctx := context.Background()

	if err := store.SaveReport(ctx, sampleReport("pubmed:100", "run-1", 0.9),
		sampleDoc("100", "KCNQ2 case")); err != nil {
		t.Fatal(err)
	}

	hits, err := store.SearchPayloads(ctx, "KCNQ2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].DocumentID != "pubmed:100" || hits[0].AgentID != "genetics" {
		t.Errorf("hit = %+v", hits[0])
	}

	none, err := store.SearchPayloads(ctx, "nonexistent", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("got %d hits for absent term", len(none))
	}
}

func TestExportYAML(t *testing.T) {
	store, tmpDir := testSetup(t)
	ctx := context.Background()

	if err := store.SaveReport(ctx, sampleReport("pubmed:100", "run-1", 0.9),
		sampleDoc("100", "KCNQ2 case")); err != nil {
		t.Fatal(err)
	}

	if err := store.ExportYAML(ctx, "run-1"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "export.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	e := entries[0]
	if e.DocumentID != "pubmed:100" || e.Title != "KCNQ2 case" || !e.Complete {
		t.Errorf("entry = %+v", e)
	}
	if _, ok := e.Results["genetics"]; !ok {
		t.Error("genetics payload missing from export")
	}
}

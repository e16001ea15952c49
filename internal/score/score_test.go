// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"reflect"
	"testing"

	"github.com/pdiddy/litriage/internal/classify"
	"github.com/pdiddy/litriage/pkg/types"
)

func testVocab() classify.Vocabulary {
	return classify.Vocabulary{Concepts: []classify.Concept{
		{Name: "epilepsy", Weight: 3, Patterns: []string{"epilepsy", "seizure"}},
		{Name: "genetics", Weight: 2, Patterns: []string{"variant"}},
	}}
}

func rec(title, abstract string) types.CandidateRecord {
	return types.CandidateRecord{Source: "pubmed", NativeID: "1", Title: title, Abstract: abstract}
}

func TestScoreOccurrenceCounting(t *testing.T) {
	s, err := New(testVocab(), types.ScoreConfig{Mode: types.CapOccurrence, MaxOccurrences: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 2 seizure + 1 epilepsy = 3 occurrences × 3, 1 variant × 2.
	got := s.Score(rec("Seizure semiology in epilepsy", "One seizure type and a variant."))
	if got.Total != 11 {
		t.Errorf("total = %f, want 11", got.Total)
	}
	want := map[string]float64{"epilepsy": 9, "genetics": 2}
	if !reflect.DeepEqual(got.Contributions, want) {
		t.Errorf("contributions = %v, want %v", got.Contributions, want)
	}
}

func TestScoreOccurrenceCap(t *testing.T) {
	s, err := New(testVocab(), types.ScoreConfig{Mode: types.CapOccurrence, MaxOccurrences: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Keyword stuffing: 6 occurrences capped at 2.
	got := s.Score(rec("seizure seizure seizure", "seizure seizure seizure"))
	if got.Total != 6 {
		t.Errorf("total = %f, want 6 (2 capped occurrences × weight 3)", got.Total)
	}
}

func TestScoreTotalCap(t *testing.T) {
	s, err := New(testVocab(), types.ScoreConfig{Mode: types.CapTotal, CapFraction: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Raw: epilepsy 5×3=15, genetics 1×2=2, raw total 17. The epilepsy
	// contribution is capped at 0.5×17=8.5.
	got := s.Score(rec(
		"seizure seizure seizure seizure seizure",
		"a single variant",
	))
	if got.Contributions["epilepsy"] != 8.5 {
		t.Errorf("epilepsy contribution = %f, want 8.5", got.Contributions["epilepsy"])
	}
	if got.Total != 10.5 {
		t.Errorf("total = %f, want 10.5", got.Total)
	}
}

func TestScoreTotalCapSingleConcept(t *testing.T) {
	s, err := New(testVocab(), types.ScoreConfig{Mode: types.CapTotal, CapFraction: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// With a single matched concept the cap is degenerate and is not applied.
	got := s.Score(rec("seizure seizure", ""))
	if got.Total != 6 {
		t.Errorf("total = %f, want 6", got.Total)
	}
}

func TestScoreNoMatches(t *testing.T) {
	s, err := New(testVocab(), types.ScoreConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := s.Score(rec("Unrelated cardiology paper", "Nothing in vocabulary."))
	if got.Total != 0 || len(got.Contributions) != 0 {
		t.Errorf("want zero score, got %+v", got)
	}
}

// Re-running the scorer on the same record and vocabulary twice must yield
// bit-identical results.
func TestScoreDeterministic(t *testing.T) {
	s, err := New(testVocab(), types.ScoreConfig{Mode: types.CapTotal, CapFraction: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := rec("Recurrent seizure with KCNQ2 variant", "Variant analysis of epilepsy cases.")
	first := s.Score(r)
	for i := 0; i < 10; i++ {
		if again := s.Score(r); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package score computes a weighted concept-density score per candidate
// record, independent of the binary relevance classification so either
// policy can be tuned without recomputing the other.
package score

import (
	"fmt"
	"regexp"

	"github.com/pdiddy/litriage/internal/classify"
	"github.com/pdiddy/litriage/pkg/types"
)

// Scorer computes concept scores against a compiled vocabulary.
type Scorer struct {
	cfg      types.ScoreConfig
	concepts []compiledConcept
}

type compiledConcept struct {
	name     string
	weight   float64
	patterns []*regexp.Regexp
}

// New compiles the vocabulary for occurrence counting. The same
// word-boundary rules as classification apply.
func New(vocab classify.Vocabulary, cfg types.ScoreConfig) (*Scorer, error) {
	if len(vocab.Concepts) == 0 {
		return nil, fmt.Errorf("vocabulary has no concepts")
	}
	if cfg.Mode == "" {
		cfg.Mode = types.CapTotal
	}
	if cfg.CapFraction <= 0 || cfg.CapFraction > 1 {
		cfg.CapFraction = 0.5
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = 5
	}

	s := &Scorer{cfg: cfg}
	for _, concept := range vocab.Concepts {
		cc := compiledConcept{name: concept.Name, weight: concept.Weight}
		for _, p := range concept.AllPatterns() {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("concept %s: pattern %q: %w", concept.Name, p, err)
			}
			cc.patterns = append(cc.patterns, re)
		}
		s.concepts = append(s.concepts, cc)
	}
	return s, nil
}

// Floor returns the secondary rejection floor used by triage.
func (s *Scorer) Floor() float64 { return s.cfg.Floor }

// Score sums occurrence count × weight over all concepts in title+abstract,
// with a diminishing-returns cap so one repeated term cannot dominate the
// ranking. In "occurrence" mode the per-concept occurrence count is capped
// before weighting; in "total" mode each concept's contribution is capped at
// CapFraction of the uncapped total.
func (s *Scorer) Score(record types.CandidateRecord) types.ConceptScore {
	text := record.Title + "\n" + record.Abstract

	raw := make(map[string]float64, len(s.concepts))
	var rawTotal float64
	for _, concept := range s.concepts {
		count := 0
		for _, re := range concept.patterns {
			count += len(re.FindAllStringIndex(text, -1))
		}
		if count == 0 {
			continue
		}
		if s.cfg.Mode == types.CapOccurrence && count > s.cfg.MaxOccurrences {
			count = s.cfg.MaxOccurrences
		}
		contribution := float64(count) * concept.weight
		raw[concept.name] = contribution
		rawTotal += contribution
	}

	contributions := make(map[string]float64, len(raw))
	var total float64
	if s.cfg.Mode == types.CapTotal && len(raw) > 1 {
		limit := s.cfg.CapFraction * rawTotal
		for name, contribution := range raw {
			if contribution > limit {
				contribution = limit
			}
			contributions[name] = contribution
			total += contribution
		}
	} else {
		for name, contribution := range raw {
			contributions[name] = contribution
			total += contribution
		}
	}

	return types.ConceptScore{
		CandidateID:   record.ID(),
		Total:         total,
		Contributions: contributions,
	}
}

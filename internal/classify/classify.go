// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify scores each candidate record's likelihood of being
// in-scope for a research question, using a configurable concept vocabulary.
// Classification is deterministic: for a fixed vocabulary and record the
// result is identical across invocations, so literature sweeps are
// reproducible.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/litriage/pkg/types"
)

// ClassificationError reports a record that could not be classified. It is
// non-retryable; triage marks the record Rejected with the reason and
// continues with the batch.
type ClassificationError struct {
	CandidateID string
	Reason      string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classifying %s: %s", e.CandidateID, e.Reason)
}

// Classifier labels candidate records against a compiled concept vocabulary.
type Classifier struct {
	cfg      types.ClassifyConfig
	concepts []compiledConcept
}

// compiledConcept pairs a vocabulary concept with its compiled match rules.
type compiledConcept struct {
	name     string
	weight   float64
	patterns []*regexp.Regexp
}

// New compiles the vocabulary's match rules. Patterns are matched
// case-insensitively on word boundaries, so "age" does not match "storage".
func New(vocab Vocabulary, cfg types.ClassifyConfig) (*Classifier, error) {
	if len(vocab.Concepts) == 0 {
		return nil, fmt.Errorf("vocabulary has no concepts")
	}
	if cfg.Saturation <= 0 {
		cfg.Saturation = 10
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.5
	}

	c := &Classifier{cfg: cfg}
	for _, concept := range vocab.Concepts {
		cc := compiledConcept{name: concept.Name, weight: concept.Weight}
		for _, p := range concept.AllPatterns() {
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("concept %s: pattern %q: %w", concept.Name, p, err)
			}
			cc.patterns = append(cc.patterns, re)
		}
		c.concepts = append(c.concepts, cc)
	}
	return c, nil
}

// Floor returns the configured confidence floor.
func (c *Classifier) Floor() float64 { return c.cfg.ConfidenceFloor }

// Classify labels one record. Records below the confidence floor are marked
// irrelevant but never discarded here; discarding is the triage
// orchestrator's decision.
func (c *Classifier) Classify(record types.CandidateRecord) (types.ClassificationResult, error) {
	text := record.Title + "\n" + record.Abstract
	if strings.TrimSpace(text) == "" {
		return types.ClassificationResult{}, &ClassificationError{
			CandidateID: record.ID(),
			Reason:      "record has no title or abstract",
		}
	}

	var weightSum float64
	var tags []string
	for _, concept := range c.concepts {
		for _, re := range concept.patterns {
			if re.MatchString(text) {
				weightSum += concept.weight
				tags = append(tags, concept.name)
				break
			}
		}
	}
	sort.Strings(tags)

	confidence := weightSum / c.cfg.Saturation
	if confidence > 1 {
		confidence = 1
	}

	label := types.LabelRelevant
	if confidence < c.cfg.ConfidenceFloor {
		label = types.LabelIrrelevant
	}

	return types.ClassificationResult{
		CandidateID:   record.ID(),
		Label:         label,
		Confidence:    confidence,
		RationaleTags: tags,
	}, nil
}

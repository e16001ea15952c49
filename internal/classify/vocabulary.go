// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Concept is one entry in the concept vocabulary: a name, a ranking weight,
// and the patterns that count as a match for it.
type Concept struct {
	// Name is the concept label, used as a rationale tag and as the key
	// in per-concept score contributions.
	Name string `yaml:"name"`

	// Weight is the concept's contribution to classification confidence
	// and concept scoring.
	Weight float64 `yaml:"weight"`

	// Patterns are matched case-insensitively on word boundaries.
	Patterns []string `yaml:"patterns"`

	// Synonyms are additional patterns carrying the same weight.
	Synonyms []string `yaml:"synonyms,omitempty"`
}

// AllPatterns returns patterns plus synonyms. When both are empty the
// concept name itself is the pattern.
func (c Concept) AllPatterns() []string {
	if len(c.Patterns) == 0 && len(c.Synonyms) == 0 {
		return []string{c.Name}
	}
	return append(append([]string{}, c.Patterns...), c.Synonyms...)
}

// Vocabulary is the configured concept set driving classification and
// scoring.
type Vocabulary struct {
	Concepts []Concept `yaml:"concepts"`
}

// Weights returns the concept name → weight mapping used by the scorer.
func (v Vocabulary) Weights() map[string]float64 {
	weights := make(map[string]float64, len(v.Concepts))
	for _, c := range v.Concepts {
		weights[c.Name] = c.Weight
	}
	return weights
}

// LoadVocabulary reads a YAML vocabulary file.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parsing vocabulary %s: %w", path, err)
	}

	for i, c := range v.Concepts {
		if c.Name == "" {
			return Vocabulary{}, fmt.Errorf("vocabulary %s: concept %d has no name", path, i)
		}
		if c.Weight <= 0 {
			return Vocabulary{}, fmt.Errorf("vocabulary %s: concept %s has non-positive weight", path, c.Name)
		}
	}

	return v, nil
}

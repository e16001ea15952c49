// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agents

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/litriage/pkg/types"
)

// DemographicsSchema describes the demographics agent's output.
func DemographicsSchema() types.Schema {
	return types.Schema{
		Name: "demographics",
		Fields: []types.SchemaField{
			{Name: "ages", Kind: types.FieldList, Required: true},
			{Name: "sexes", Kind: types.FieldList, Required: true},
			{Name: "mention_count", Kind: types.FieldNumber, Required: false},
		},
	}
}

var (
	agePattern = regexp.MustCompile(`(?i)\b(\d{1,3})[\s-]*(?:year|month|week|day)s?[\s-]*(?:old|of age)\b`)
	// Common clinical age-group terms.
	ageGroupPattern = regexp.MustCompile(`(?i)\b(neonate|neonatal|newborn|infant|toddler|child|children|adolescent|adult|elderly)\b`)
	sexPattern      = regexp.MustCompile(`(?i)\b(male|female|boy|girl|man|woman|men|women)\b`)
)

// DemographicsAgent extracts patient age and sex mentions from case text
// with rule-based matching. It stands in the same slot a model-backed agent
// would occupy, so its output goes through the same schema validation.
type DemographicsAgent struct{}

// ID returns the agent identifier.
func (DemographicsAgent) ID() string { return "demographics" }

// Extract scans the text for age and sex mentions.
func (DemographicsAgent) Extract(ctx context.Context, text string, _ types.Schema) (types.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return types.ExtractionResult{}, err
	}

	ages := collectMatches(agePattern, text, 0)
	ages = append(ages, collectMatches(ageGroupPattern, text, 1)...)
	sexes := collectMatches(sexPattern, text, 1)

	mentions := len(ages) + len(sexes)
	confidence := float64(mentions) / 4
	if confidence > 1 {
		confidence = 1
	}

	return types.ExtractionResult{
		AgentID: "demographics",
		Payload: map[string]any{
			"ages":          ages,
			"sexes":         sexes,
			"mention_count": mentions,
		},
		Confidence: confidence,
	}, nil
}

// collectMatches returns the deduplicated, lowercased, sorted matches of
// group within pattern (0 for the whole match).
func collectMatches(pattern *regexp.Regexp, text string, group int) []string {
	seen := make(map[string]bool)
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		seen[strings.ToLower(m[group])] = true
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agents

import (
	"context"
	"regexp"
	"sort"

	"github.com/pdiddy/litriage/pkg/types"
)

// GeneticsSchema describes the genetics agent's output.
func GeneticsSchema() types.Schema {
	return types.Schema{
		Name: "genetics",
		Fields: []types.SchemaField{
			{Name: "genes", Kind: types.FieldList, Required: true},
			{Name: "variants", Kind: types.FieldList, Required: false},
		},
	}
}

var (
	// HGNC-style symbols: uppercase, 3-6 characters, at least one digit or
	// all-caps run. The digit requirement drops ordinary acronyms like DNA.
	genePattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}[0-9][A-Z0-9]*\b`)

	// HGVS-style variant notation: c.123A>G, p.Arg201His, p.R201H.
	variantPattern = regexp.MustCompile(`\b[cp]\.[A-Za-z0-9>_*+-]+\b`)
)

// GeneticsAgent extracts gene symbols and variant notations from case text.
type GeneticsAgent struct{}

// ID returns the agent identifier.
func (GeneticsAgent) ID() string { return "genetics" }

// Extract scans the text for gene and variant mentions.
func (GeneticsAgent) Extract(ctx context.Context, text string, _ types.Schema) (types.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return types.ExtractionResult{}, err
	}

	genes := collectExact(genePattern, text)
	variants := collectExact(variantPattern, text)

	confidence := 0.0
	if len(genes) > 0 {
		confidence = 0.6
		if len(variants) > 0 {
			confidence = 0.9
		}
	}

	return types.ExtractionResult{
		AgentID: "genetics",
		Payload: map[string]any{
			"genes":    genes,
			"variants": variants,
		},
		Confidence: confidence,
	}, nil
}

// collectExact returns deduplicated, sorted matches with their original case
// preserved (gene symbols are case-significant).
func collectExact(pattern *regexp.Regexp, text string) []string {
	seen := make(map[string]bool)
	for _, m := range pattern.FindAllString(text, -1) {
		seen[m] = true
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

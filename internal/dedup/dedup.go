// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup clusters candidate records that represent the same
// underlying paper or patient case, and resolves each cluster to one
// canonical record.
//
// Pairwise similarity combines normalized-title overlap, author-set overlap,
// and publication-year proximity. Records are grouped by centroid
// re-evaluation rather than single-link chaining: a record joins a cluster
// only if its mean similarity to every current member clears the threshold,
// so a chain A~B, B~C cannot pull an unrelated A and C together.
package dedup

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/litriage/pkg/types"
)

// Deduper clusters candidate records.
type Deduper struct {
	cfg types.DedupConfig
}

// New builds a Deduper, filling defaults for zero-valued config.
func New(cfg types.DedupConfig) *Deduper {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.85
	}
	if cfg.TitleWeight == 0 && cfg.AuthorWeight == 0 && cfg.YearWeight == 0 {
		cfg.TitleWeight = 0.6
		cfg.AuthorWeight = 0.25
		cfg.YearWeight = 0.15
	}
	return &Deduper{cfg: cfg}
}

// features is the comparable form of a record.
type features struct {
	id         string
	titleToks  map[string]bool
	authorToks map[string]bool
	year       int
	record     types.CandidateRecord
}

// Cluster partitions records into disjoint duplicate clusters. Every record
// lands in exactly one cluster, singleton if unique. scores supplies concept
// scores for canonical selection; missing entries count as zero.
//
// Records with an unparseable title are placed in their own singleton
// cluster rather than failing the batch.
func (d *Deduper) Cluster(records []types.CandidateRecord, scores map[string]float64) []types.DuplicateCluster {
	feats := make([]features, 0, len(records))
	var singletons []features
	for _, r := range records {
		f := features{
			id:         r.ID(),
			titleToks:  tokenSet(r.Title),
			authorToks: authorSet(r.Authors),
			record:     r,
		}
		if !r.Published.IsZero() {
			f.year = r.Published.Year()
		}
		if len(f.titleToks) == 0 {
			singletons = append(singletons, f)
			continue
		}
		feats = append(feats, f)
	}

	// Deterministic assignment order.
	sort.Slice(feats, func(i, j int) bool { return feats[i].id < feats[j].id })

	var groups [][]features
	for _, f := range feats {
		best, bestSim := -1, 0.0
		for gi, group := range groups {
			sim := d.centroidSimilarity(f, group)
			if sim >= d.cfg.Threshold && sim > bestSim {
				best, bestSim = gi, sim
			}
		}
		if best >= 0 {
			groups[best] = append(groups[best], f)
		} else {
			groups = append(groups, []features{f})
		}
	}

	for _, f := range singletons {
		groups = append(groups, []features{f})
	}

	clusters := make([]types.DuplicateCluster, 0, len(groups))
	for _, group := range groups {
		clusters = append(clusters, d.buildCluster(group, scores))
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].CanonicalID < clusters[j].CanonicalID
	})
	return clusters
}

// centroidSimilarity is the mean pairwise similarity between f and every
// member of the group.
func (d *Deduper) centroidSimilarity(f features, group []features) float64 {
	var sum float64
	for _, member := range group {
		sum += d.similarity(f, member)
	}
	return sum / float64(len(group))
}

// similarity combines the per-component similarities, renormalizing the
// weights over components both records actually carry so that records
// without authors or dates can still be compared on title alone.
func (d *Deduper) similarity(a, b features) float64 {
	sim := jaccard(a.titleToks, b.titleToks) * d.cfg.TitleWeight
	weight := d.cfg.TitleWeight

	if len(a.authorToks) > 0 && len(b.authorToks) > 0 {
		sim += jaccard(a.authorToks, b.authorToks) * d.cfg.AuthorWeight
		weight += d.cfg.AuthorWeight
	}
	if a.year > 0 && b.year > 0 {
		sim += yearProximity(a.year, b.year) * d.cfg.YearWeight
		weight += d.cfg.YearWeight
	}

	if weight == 0 {
		return 0
	}
	return sim / weight
}

// buildCluster assembles the output cluster: sorted members, the pairwise
// similarity matrix, and the canonical record.
func (d *Deduper) buildCluster(group []features, scores map[string]float64) types.DuplicateCluster {
	members := make([]string, len(group))
	for i, f := range group {
		members[i] = f.id
	}
	sort.Strings(members)

	var matrix map[string]map[string]float64
	if len(group) > 1 {
		matrix = make(map[string]map[string]float64, len(group))
		for _, f := range group {
			matrix[f.id] = make(map[string]float64, len(group)-1)
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				sim := d.similarity(group[i], group[j])
				matrix[group[i].id][group[j].id] = sim
				matrix[group[j].id][group[i].id] = sim
			}
		}
	}

	canonical := group[0]
	for _, f := range group[1:] {
		if betterCanonical(f, canonical, scores) {
			canonical = f
		}
	}

	return types.DuplicateCluster{
		Members:     members,
		CanonicalID: canonical.id,
		Similarity:  matrix,
	}
}

// betterCanonical reports whether a should represent the cluster over b.
// Preference order: full text available, higher concept score, earlier
// publication date (missing dates sort last), smaller native ID. Fully
// deterministic, no unresolved ties.
func betterCanonical(a, b features, scores map[string]float64) bool {
	if a.record.HasFullText != b.record.HasFullText {
		return a.record.HasFullText
	}
	if sa, sb := scores[a.id], scores[b.id]; sa != sb {
		return sa > sb
	}
	da, db := a.record.Published, b.record.Published
	switch {
	case da.IsZero() != db.IsZero():
		return !da.IsZero()
	case !da.Equal(db):
		return da.Before(db)
	}
	return a.record.NativeID < b.record.NativeID
}

// jaccard is set overlap: |a∩b| / |a∪b|.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// yearProximity is 1.0 for the same year, decaying linearly to 0 at three
// years apart.
func yearProximity(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff >= 3 {
		return 0
	}
	return 1 - float64(diff)/3
}

// tokenSet lowercases, strips punctuation, and splits into a word set.
func tokenSet(s string) map[string]bool {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	toks := make(map[string]bool)
	for _, tok := range strings.Fields(b.String()) {
		toks[tok] = true
	}
	return toks
}

// authorSet normalizes author names into a comparable token set, using the
// longest token of each name (usually the surname) to survive "J. Smith"
// vs "Smith J" formatting differences.
func authorSet(authors []string) map[string]bool {
	toks := make(map[string]bool)
	for _, a := range authors {
		longest := ""
		for _, tok := range strings.Fields(strings.ToLower(a)) {
			tok = strings.Trim(tok, ".,;")
			if len(tok) > len(longest) {
				longest = tok
			}
		}
		if longest != "" {
			toks[longest] = true
		}
	}
	return toks
}

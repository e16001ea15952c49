// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the litriage pipeline:
// candidate records fetched from bibliographic sources, the triage artifacts
// attached to them (classification, concept score, duplicate cluster), and
// the extraction artifacts produced per curated document.
package types

import "time"

// CandidateRecord is a literature metadata entry fetched from an external
// bibliographic source, prior to any relevance judgment. Records are
// immutable once created; downstream stages attach artifacts keyed by ID
// rather than mutating the record.
type CandidateRecord struct {
	// Source identifies the bibliographic backend (e.g. "pubmed", "europepmc").
	Source string `json:"source" yaml:"source"`

	// NativeID is the record's identifier within its source (e.g. a PMID).
	NativeID string `json:"native_id" yaml:"native_id"`

	// Title is the article title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Abstract is the article abstract, possibly empty.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists author display names in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Published is the publication date. Zero when the source omits it.
	Published time.Time `json:"published" yaml:"published"`

	// HasFullText reports whether the source offers full text for this
	// record. Canonical selection within a duplicate cluster prefers
	// records with full text available.
	HasFullText bool `json:"has_full_text" yaml:"has_full_text"`

	// Raw holds source-specific metadata passed through opaquely.
	Raw map[string]string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// ID returns the globally unique candidate identifier, "source:nativeID".
func (r CandidateRecord) ID() string {
	return r.Source + ":" + r.NativeID
}

// RelevanceLabel is the classifier's categorical judgment for a candidate.
type RelevanceLabel string

const (
	LabelRelevant   RelevanceLabel = "relevant"
	LabelIrrelevant RelevanceLabel = "irrelevant"
)

// ClassificationResult is the relevance judgment for one candidate. Exactly
// one result is produced per candidate; low-confidence candidates are marked
// irrelevant but kept visible for audit, and discarding is left to the
// triage orchestrator.
type ClassificationResult struct {
	// CandidateID links back to the CandidateRecord.
	CandidateID string `json:"candidate_id" yaml:"candidate_id"`

	// Label is the categorical relevance judgment.
	Label RelevanceLabel `json:"label" yaml:"label"`

	// Confidence is a value in [0,1], monotonic in matched concept weight.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// RationaleTags lists the matched concept names, sorted, so a reviewer
	// can see why the label was assigned.
	RationaleTags []string `json:"rationale_tags" yaml:"rationale_tags"`
}

// ConceptScore is the concept-density score for one candidate, independent
// of the binary classification so either policy can be tuned without
// recomputing the other.
type ConceptScore struct {
	// CandidateID links back to the CandidateRecord.
	CandidateID string `json:"candidate_id" yaml:"candidate_id"`

	// Total is the capped sum of per-concept contributions. Non-negative.
	Total float64 `json:"total" yaml:"total"`

	// Contributions maps concept name to its capped weight×matches
	// contribution to Total.
	Contributions map[string]float64 `json:"contributions" yaml:"contributions"`
}

// DuplicateCluster groups candidate IDs believed to represent the same
// underlying document or case. Clusters are disjoint: every candidate in a
// batch belongs to exactly one cluster, singleton if unique.
type DuplicateCluster struct {
	// Members lists the candidate IDs in the cluster, sorted.
	Members []string `json:"members" yaml:"members"`

	// CanonicalID is the member chosen to represent the cluster, selected
	// by a deterministic tie-break.
	CanonicalID string `json:"canonical_id" yaml:"canonical_id"`

	// Similarity holds the pairwise similarity for each member pair,
	// keyed by candidate ID.
	Similarity map[string]map[string]float64 `json:"similarity,omitempty" yaml:"similarity,omitempty"`
}

// CuratedDocument is a candidate that survived classification, scoring, and
// deduplication and is ready for extraction. Immutable once emitted.
type CuratedDocument struct {
	// Record is the canonical candidate for the cluster.
	Record CandidateRecord `json:"record" yaml:"record"`

	// Classification is the relevance judgment for the canonical record.
	Classification ClassificationResult `json:"classification" yaml:"classification"`

	// Score is the concept score for the canonical record.
	Score ConceptScore `json:"score" yaml:"score"`

	// ClusterID is the canonical ID of the cluster the record belongs to.
	ClusterID string `json:"cluster_id" yaml:"cluster_id"`

	// ClusterSize is the number of candidates merged into the cluster.
	ClusterSize int `json:"cluster_size" yaml:"cluster_size"`

	// FullText is the document text handed to extraction agents. Empty
	// when only the abstract is available; agents then receive
	// title+abstract.
	FullText string `json:"full_text,omitempty" yaml:"full_text,omitempty"`
}

// Text returns the text extraction agents should operate on: full text when
// available, otherwise title and abstract.
func (d CuratedDocument) Text() string {
	if d.FullText != "" {
		return d.FullText
	}
	return d.Record.Title + "\n\n" + d.Record.Abstract
}

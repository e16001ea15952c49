// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package triage sequences source fetch, relevance classification, concept
// scoring, and deduplication into one pipeline and emits a curated, ranked
// document collection.
//
// Each candidate moves through Discovered → Classified → Scored → Clustered
// → Curated, or ends Rejected with a reason. Failures are isolated per
// record: one bad record never aborts the run.
package triage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/litriage/internal/source"
	"github.com/pdiddy/litriage/pkg/types"
)

// Classifier is the relevance-classification stage. *classify.Classifier
// implements it.
type Classifier interface {
	Classify(types.CandidateRecord) (types.ClassificationResult, error)
	Floor() float64
}

// Scorer is the concept-scoring stage. *score.Scorer implements it.
type Scorer interface {
	Score(types.CandidateRecord) types.ConceptScore
	Floor() float64
}

// Deduper is the clustering stage. *dedup.Deduper implements it.
type Deduper interface {
	Cluster(records []types.CandidateRecord, scores map[string]float64) []types.DuplicateCluster
}

// DocState is a candidate's position in the triage state machine.
type DocState string

const (
	StateDiscovered DocState = "discovered"
	StateClassified DocState = "classified"
	StateScored     DocState = "scored"
	StateClustered  DocState = "clustered"
	StateCurated    DocState = "curated"
	StateRejected   DocState = "rejected"
)

// AuditEntry records a candidate's terminal state and, for rejections and
// duplicates, the reason. Every candidate fetched appears exactly once.
type AuditEntry struct {
	CandidateID string   `json:"candidate_id" yaml:"candidate_id"`
	State       DocState `json:"state" yaml:"state"`
	Reason      string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Output is the result of one triage run.
type Output struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id" yaml:"run_id"`

	// Documents is the curated collection, ranked by concept score then
	// classification confidence.
	Documents []types.CuratedDocument `json:"documents" yaml:"documents"`

	// Audit holds one entry per fetched candidate.
	Audit []AuditEntry `json:"audit" yaml:"audit"`

	// Fetched counts candidates fetched across all pages.
	Fetched int `json:"fetched" yaml:"fetched"`

	// SkippedPages lists reasons for pages dropped on malformed responses.
	SkippedPages []string `json:"skipped_pages,omitempty" yaml:"skipped_pages,omitempty"`
}

// fetchRetryBase controls the backoff between page-fetch retries. Tests
// override this to avoid real sleeps.
var fetchRetryBase = 2 * time.Second

// fetchRetries is the number of extra attempts for a transiently failing page.
const fetchRetries = 2

// Orchestrator wires the triage stages together.
type Orchestrator struct {
	backend    source.Backend
	classifier Classifier
	scorer     Scorer
	deduper    Deduper
	srcCfg     types.SourceConfig
	w          io.Writer
}

// New builds a triage orchestrator from already-constructed stages.
func New(backend source.Backend, classifier Classifier, scorer Scorer, deduper Deduper, srcCfg types.SourceConfig, w io.Writer) *Orchestrator {
	if w == nil {
		w = io.Discard
	}
	return &Orchestrator{
		backend:    backend,
		classifier: classifier,
		scorer:     scorer,
		deduper:    deduper,
		srcCfg:     srcCfg,
		w:          w,
	}
}

// scored is a candidate that survived classification and scoring.
type scored struct {
	record         types.CandidateRecord
	classification types.ClassificationResult
	score          types.ConceptScore
}

// Run executes the triage pipeline. limits bounds total candidates fetched
// and curated output size. Cancelling the context stops fetching further
// pages but lets already-fetched records finish classification and scoring.
func (o *Orchestrator) Run(ctx context.Context, query source.Query, limits types.TriageLimits) (Output, error) {
	if query.IsEmpty() {
		return Output{}, fmt.Errorf("query is empty: provide search terms")
	}
	if limits.MaxCandidates <= 0 {
		limits.MaxCandidates = 200
	}
	if limits.MaxCurated <= 0 {
		limits.MaxCurated = 50
	}

	out := Output{RunID: uuid.NewString()}

	records := o.fetchAll(ctx, query, limits.MaxCandidates, &out)
	out.Fetched = len(records)

	// Classify and score. Record-level failures reject the record and the
	// batch continues; cancellation mid-batch does not abandon fetched work.
	var kept []scored
	for _, rec := range records {
		cls, err := o.classifier.Classify(rec)
		if err != nil {
			o.reject(&out, rec.ID(), fmt.Sprintf("classification failed: %v", err))
			continue
		}
		sc := o.scorer.Score(rec)
		kept = append(kept, scored{record: rec, classification: cls, score: sc})
	}

	// Cluster and pick canonicals.
	byID := make(map[string]scored, len(kept))
	clusterRecords := make([]types.CandidateRecord, 0, len(kept))
	scores := make(map[string]float64, len(kept))
	for _, s := range kept {
		byID[s.record.ID()] = s
		clusterRecords = append(clusterRecords, s.record)
		scores[s.record.ID()] = s.score.Total
	}
	clusters := o.deduper.Cluster(clusterRecords, scores)

	confFloor := o.classifier.Floor()
	scoreFloor := o.scorer.Floor()

	var curated []types.CuratedDocument
	for _, cluster := range clusters {
		canonical := byID[cluster.CanonicalID]

		for _, member := range cluster.Members {
			if member != cluster.CanonicalID {
				out.Audit = append(out.Audit, AuditEntry{
					CandidateID: member,
					State:       StateClustered,
					Reason:      "duplicate of " + cluster.CanonicalID,
				})
			}
		}

		// A document must fail BOTH checks to be rejected, so either the
		// classifier or the scorer alone can rescue a borderline case.
		if canonical.classification.Confidence < confFloor && canonical.score.Total < scoreFloor {
			o.reject(&out, cluster.CanonicalID, fmt.Sprintf(
				"confidence %.2f below %.2f and concept score %.2f below %.2f",
				canonical.classification.Confidence, confFloor,
				canonical.score.Total, scoreFloor))
			continue
		}

		curated = append(curated, types.CuratedDocument{
			Record:         canonical.record,
			Classification: canonical.classification,
			Score:          canonical.score,
			ClusterID:      cluster.CanonicalID,
			ClusterSize:    len(cluster.Members),
		})
	}

	rank(curated)
	if len(curated) > limits.MaxCurated {
		for _, doc := range curated[limits.MaxCurated:] {
			o.reject(&out, doc.Record.ID(), "curated output limit reached")
		}
		curated = curated[:limits.MaxCurated]
	}
	for _, doc := range curated {
		out.Audit = append(out.Audit, AuditEntry{CandidateID: doc.Record.ID(), State: StateCurated})
	}
	out.Documents = curated

	fmt.Fprintf(o.w, "\ntriage %s: fetched %d, curated %d, rejected %d\n",
		out.RunID, out.Fetched, len(out.Documents), countRejected(out.Audit))
	return out, nil
}

// fetchAll pages through the backend until the candidate limit, cursor
// exhaustion, or cancellation. Transient page failures are retried with
// backoff; malformed pages are skipped with a logged reason when the backend
// can still supply the next cursor, otherwise paging stops.
func (o *Orchestrator) fetchAll(ctx context.Context, query source.Query, maxCandidates int, out *Output) []types.CandidateRecord {
	var records []types.CandidateRecord
	cursor := ""

	for len(records) < maxCandidates {
		if ctx.Err() != nil {
			fmt.Fprintf(o.w, "cancelled: stopping fetch after %d records\n", len(records))
			break
		}

		page, err := o.fetchPage(ctx, query, cursor)
		if err != nil {
			if source.IsFormat(err) {
				reason := fmt.Sprintf("page at cursor %q skipped: %v", cursor, err)
				out.SkippedPages = append(out.SkippedPages, reason)
				fmt.Fprintf(o.w, "warning: %s\n", reason)
				if page.NextCursor != "" {
					cursor = page.NextCursor
					continue
				}
				break
			}
			fmt.Fprintf(o.w, "warning: fetch failed at cursor %q: %v\n", cursor, err)
			break
		}

		for _, rec := range page.Records {
			if len(records) >= maxCandidates {
				break
			}
			records = append(records, rec)
		}
		fmt.Fprintf(o.w, "fetched %d records (%d total)\n", len(page.Records), len(records))

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return records
}

// fetchPage retries transient failures with exponential backoff.
func (o *Orchestrator) fetchPage(ctx context.Context, query source.Query, cursor string) (source.Page, error) {
	var page source.Page
	var err error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * fetchRetryBase
			select {
			case <-ctx.Done():
				return source.Page{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		page, err = o.backend.Fetch(ctx, query, cursor, o.srcCfg)
		if err == nil || !source.IsTransient(err) {
			return page, err
		}
	}
	return page, err
}

func (o *Orchestrator) reject(out *Output, candidateID, reason string) {
	out.Audit = append(out.Audit, AuditEntry{
		CandidateID: candidateID,
		State:       StateRejected,
		Reason:      reason,
	})
	fmt.Fprintf(o.w, "rejected %s: %s\n", candidateID, reason)
}

// rank orders curated documents by concept score descending, then
// classification confidence descending, then publication recency, then
// native ID for full determinism.
func rank(docs []types.CuratedDocument) {
	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		if a.Classification.Confidence != b.Classification.Confidence {
			return a.Classification.Confidence > b.Classification.Confidence
		}
		if !a.Record.Published.Equal(b.Record.Published) {
			return a.Record.Published.After(b.Record.Published)
		}
		return a.Record.NativeID < b.Record.NativeID
	})
}

func countRejected(audit []AuditEntry) int {
	n := 0
	for _, e := range audit {
		if e.State == StateRejected {
			n++
		}
	}
	return n
}

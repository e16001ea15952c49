// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source provides a uniform interface over external bibliographic
// APIs. Each backend (PubMed, Europe PMC) returns pages of candidate
// metadata records behind one Fetch contract with opaque cursors, and
// handles its own pagination, request pacing, and rate-limit backoff.
package source

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/litriage/pkg/types"
)

// Query holds the bibliographic search parameters.
type Query struct {
	// Terms is the free-text search expression.
	Terms string

	// DateFrom and DateTo bound the publication date range. Zero values
	// leave the range open.
	DateFrom time.Time
	DateTo   time.Time
}

// IsEmpty reports whether the query contains no searchable terms.
func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.Terms) == ""
}

// Page is one page of candidate records. NextCursor is an opaque value to
// pass to the next Fetch call; empty means the result set is exhausted.
type Page struct {
	Records    []types.CandidateRecord
	NextCursor string
}

// Backend fetches one page of candidate records from a bibliographic API.
// Fetch must be idempotent for a given (query, cursor) pair: retrying a page
// must not skip or duplicate records within that page.
//
// Transient failures (rate limit, timeout, server error) are reported as
// *TransientError so the caller can retry with backoff. Malformed responses
// are reported as *FormatError, which is non-retryable; the triage
// orchestrator skips the page and logs the reason.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, query Query, cursor string, cfg types.SourceConfig) (Page, error)
}

// newLimiter builds the request pacer for a backend from config.
func newLimiter(cfg types.SourceConfig) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// newClient builds the HTTP client for a backend from config.
func newClient(cfg types.SourceConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

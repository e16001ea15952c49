// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/litriage/internal/httputil"
	"github.com/pdiddy/litriage/pkg/types"
)

// europePMCSearchBase is the Europe PMC REST search endpoint. Declared as a
// var so tests can substitute an httptest server.
var europePMCSearchBase = "https://www.ebi.ac.uk/europepmc/webservices/rest/search"

// EuropePMCBackend queries the Europe PMC REST API. Europe PMC paginates
// with a cursorMark token, which maps directly onto the Fetch cursor.
type EuropePMCBackend struct {
	limiter *rate.Limiter
	client  *http.Client
}

// NewEuropePMC builds a Europe PMC backend with its own pacer and client.
func NewEuropePMC(cfg types.SourceConfig) *EuropePMCBackend {
	return &EuropePMCBackend{
		limiter: newLimiter(cfg),
		client:  newClient(cfg),
	}
}

// Name returns the backend identifier.
func (b *EuropePMCBackend) Name() string { return "europepmc" }

// Fetch retrieves one page of results. An empty cursor starts from the
// beginning ("*" in Europe PMC terms).
func (b *EuropePMCBackend) Fetch(ctx context.Context, query Query, cursor string, cfg types.SourceConfig) (Page, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	expr := query.Terms
	if !query.DateFrom.IsZero() || !query.DateTo.IsZero() {
		from, to := "1900-01-01", time.Now().UTC().Format("2006-01-02")
		if !query.DateFrom.IsZero() {
			from = query.DateFrom.Format("2006-01-02")
		}
		if !query.DateTo.IsZero() {
			to = query.DateTo.Format("2006-01-02")
		}
		expr = fmt.Sprintf("%s AND FIRST_PDATE:[%s TO %s]", expr, from, to)
	}

	if cursor == "" {
		cursor = "*"
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	params := url.Values{
		"query":      {expr},
		"format":     {"json"},
		"resultType": {"core"},
		"pageSize":   {strconv.Itoa(pageSize)},
		"cursorMark": {cursor},
	}
	if cfg.Email != "" {
		params.Set("email", cfg.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, europePMCSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.client, req, cfg.MaxRetries)
	if err != nil {
		return Page{}, &TransientError{Source: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Page{}, &TransientError{Source: b.Name(), Err: fmt.Errorf("HTTP %d after retries", resp.StatusCode)}
	default:
		return Page{}, &FormatError{Source: b.Name(), Err: fmt.Errorf("unexpected HTTP %d", resp.StatusCode)}
	}

	var er europePMCResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return Page{}, &FormatError{Source: b.Name(), Err: err}
	}

	var page Page
	for i, res := range er.ResultList.Result {
		if res.ID == "" {
			return Page{}, &FormatError{Source: b.Name(), Err: fmt.Errorf("result %d missing id", i)}
		}

		rec := types.CandidateRecord{
			Source:      "europepmc",
			NativeID:    res.ID,
			Title:       res.Title,
			Abstract:    res.AbstractText,
			HasFullText: res.InEPMC == "Y" || res.IsOpenAccess == "Y",
			Raw: map[string]string{
				"pmid": res.PMID,
				"doi":  res.DOI,
			},
		}
		for _, a := range res.AuthorList.Author {
			if a.FullName != "" {
				rec.Authors = append(rec.Authors, a.FullName)
			}
		}
		if res.FirstPublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", res.FirstPublicationDate); parseErr == nil {
				rec.Published = t
			}
		} else if y, convErr := strconv.Atoi(res.PubYear); convErr == nil && y > 0 {
			rec.Published = time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		}

		page.Records = append(page.Records, rec)
	}

	// cursorMark repeats itself on the final page.
	if er.NextCursorMark != "" && er.NextCursorMark != cursor && len(page.Records) > 0 {
		page.NextCursor = er.NextCursorMark
	}

	return page, nil
}

// Europe PMC API JSON structures.
type europePMCResponse struct {
	HitCount       int                 `json:"hitCount"`
	NextCursorMark string              `json:"nextCursorMark"`
	ResultList     europePMCResultList `json:"resultList"`
}

type europePMCResultList struct {
	Result []europePMCResult `json:"result"`
}

type europePMCResult struct {
	ID                   string              `json:"id"`
	PMID                 string              `json:"pmid"`
	DOI                  string              `json:"doi"`
	Title                string              `json:"title"`
	AbstractText         string              `json:"abstractText"`
	AuthorList           europePMCAuthorList `json:"authorList"`
	PubYear              string              `json:"pubYear"`
	FirstPublicationDate string              `json:"firstPublicationDate"`
	InEPMC               string              `json:"inEPMC"`
	IsOpenAccess         string              `json:"isOpenAccess"`
}

type europePMCAuthorList struct {
	Author []europePMCAuthor `json:"author"`
}

type europePMCAuthor struct {
	FullName string `json:"fullName"`
}

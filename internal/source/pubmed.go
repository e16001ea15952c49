// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/litriage/internal/httputil"
	"github.com/pdiddy/litriage/pkg/types"
)

// PubMed E-utilities endpoints. Declared as vars so tests can substitute
// httptest servers.
var (
	pubmedESearchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubmedESummaryBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi"
)

// PubMedBackend queries the NCBI E-utilities API. A Fetch is two calls:
// esearch resolves the query and cursor (a retstart offset) to a page of
// PMIDs, and esummary resolves those PMIDs to metadata. Both calls are GETs,
// so retrying a (query, cursor) pair neither skips nor duplicates records.
type PubMedBackend struct {
	limiter *rate.Limiter
	client  *http.Client
}

// NewPubMed builds a PubMed backend with its own pacer and client.
func NewPubMed(cfg types.SourceConfig) *PubMedBackend {
	return &PubMedBackend{
		limiter: newLimiter(cfg),
		client:  newClient(cfg),
	}
}

// Name returns the backend identifier.
func (b *PubMedBackend) Name() string { return "pubmed" }

// Fetch retrieves one page of results. The cursor is the decimal retstart
// offset; empty starts at 0.
func (b *PubMedBackend) Fetch(ctx context.Context, query Query, cursor string, cfg types.SourceConfig) (Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page{}, &FormatError{Source: b.Name(), Err: fmt.Errorf("bad cursor %q", cursor)}
		}
		offset = n
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	ids, total, err := b.search(ctx, query, offset, pageSize, cfg)
	if err != nil {
		return Page{}, err
	}
	if len(ids) == 0 {
		return Page{}, nil
	}

	records, err := b.summaries(ctx, ids, cfg)
	if err != nil {
		// Preserve the next cursor so a malformed summary page can be
		// skipped instead of ending pagination.
		next := ""
		if offset+len(ids) < total {
			next = strconv.Itoa(offset + len(ids))
		}
		return Page{NextCursor: next}, err
	}

	page := Page{Records: records}
	if offset+len(ids) < total {
		page.NextCursor = strconv.Itoa(offset + len(ids))
	}
	return page, nil
}

// search calls esearch and returns the page of PMIDs plus the total hit count.
func (b *PubMedBackend) search(ctx context.Context, query Query, offset, pageSize int, cfg types.SourceConfig) ([]string, int, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	term := query.Terms
	if !query.DateFrom.IsZero() || !query.DateTo.IsZero() {
		from, to := "1900/01/01", time.Now().UTC().Format("2006/01/02")
		if !query.DateFrom.IsZero() {
			from = query.DateFrom.Format("2006/01/02")
		}
		if !query.DateTo.IsZero() {
			to = query.DateTo.Format("2006/01/02")
		}
		term = fmt.Sprintf("(%s) AND (%s:%s[dp])", term, from, to)
	}

	params := url.Values{
		"db":       {"pubmed"},
		"term":     {term},
		"retmode":  {"json"},
		"retmax":   {strconv.Itoa(pageSize)},
		"retstart": {strconv.Itoa(offset)},
	}
	if cfg.APIKey != "" {
		params.Set("api_key", cfg.APIKey)
	}

	body, err := b.get(ctx, pubmedESearchBase+"?"+params.Encode(), cfg)
	if err != nil {
		return nil, 0, err
	}

	var er pubmedESearchResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, 0, &FormatError{Source: b.Name(), Err: err}
	}

	total, err := strconv.Atoi(er.ESearchResult.Count)
	if err != nil {
		return nil, 0, &FormatError{Source: b.Name(), Err: fmt.Errorf("bad count %q", er.ESearchResult.Count)}
	}

	return er.ESearchResult.IDList, total, nil
}

// summaries calls esummary for a page of PMIDs and converts the records.
func (b *PubMedBackend) summaries(ctx context.Context, ids []string, cfg types.SourceConfig) ([]types.CandidateRecord, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	idParam := ""
	for i, id := range ids {
		if i > 0 {
			idParam += ","
		}
		idParam += id
	}

	params := url.Values{
		"db":      {"pubmed"},
		"id":      {idParam},
		"retmode": {"json"},
	}
	if cfg.APIKey != "" {
		params.Set("api_key", cfg.APIKey)
	}

	body, err := b.get(ctx, pubmedESummaryBase+"?"+params.Encode(), cfg)
	if err != nil {
		return nil, err
	}

	var sr pubmedESummaryResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &FormatError{Source: b.Name(), Err: err}
	}

	var records []types.CandidateRecord
	for _, id := range ids {
		raw, ok := sr.Result[id]
		if !ok {
			return nil, &FormatError{Source: b.Name(), Err: fmt.Errorf("esummary missing uid %s", id)}
		}
		var doc pubmedDocSummary
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &FormatError{Source: b.Name(), Err: fmt.Errorf("uid %s: %w", id, err)}
		}

		rec := types.CandidateRecord{
			Source:   "pubmed",
			NativeID: id,
			Title:    doc.Title,
			Raw:      map[string]string{},
		}
		for _, a := range doc.Authors {
			if a.Name != "" {
				rec.Authors = append(rec.Authors, a.Name)
			}
		}
		if t, parseErr := parsePubDate(doc.PubDate); parseErr == nil {
			rec.Published = t
		}
		for _, aid := range doc.ArticleIDs {
			rec.Raw[aid.IDType] = aid.Value
			// A PMC ID means the full text is deposited in PubMed Central.
			if aid.IDType == "pmc" && aid.Value != "" {
				rec.HasFullText = true
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

// get performs a paced GET with retry and maps failures to the source error
// taxonomy.
func (b *PubMedBackend) get(ctx context.Context, reqURL string, cfg types.SourceConfig) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.client, req, cfg.MaxRetries)
	if err != nil {
		return nil, &TransientError{Source: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{Source: b.Name(), Err: fmt.Errorf("HTTP %d after retries", resp.StatusCode)}
	default:
		return nil, &FormatError{Source: b.Name(), Err: fmt.Errorf("unexpected HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Source: b.Name(), Err: err}
	}
	return data, nil
}

// parsePubDate handles the formats esummary emits: "2020 Jan 5", "2020 Jan",
// and "2020".
func parsePubDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006 Jan 2", "2006 Jan", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pubdate %q", s)
}

// PubMed E-utilities JSON structures.
type pubmedESearchResponse struct {
	ESearchResult pubmedESearchResult `json:"esearchresult"`
}

type pubmedESearchResult struct {
	Count  string   `json:"count"`
	IDList []string `json:"idlist"`
}

// esummary's result object maps each uid to a document summary and also
// carries a "uids" list, so the values are decoded lazily.
type pubmedESummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type pubmedDocSummary struct {
	Title      string            `json:"title"`
	PubDate    string            `json:"pubdate"`
	Authors    []pubmedAuthor    `json:"authors"`
	ArticleIDs []pubmedArticleID `json:"articleids"`
}

type pubmedAuthor struct {
	Name string `json:"name"`
}

type pubmedArticleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}

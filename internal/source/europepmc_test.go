// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pdiddy/litriage/internal/httputil"
	"github.com/pdiddy/litriage/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

func testSourceCfg() types.SourceConfig {
	return types.SourceConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   5 * time.Second,
			UserAgent: "litriage-test/0.1",
		},
		PageSize:          2,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
	}
}

const epmcPage1 = `{
	"hitCount": 3,
	"nextCursorMark": "cursor-2",
	"resultList": {"result": [
		{
			"id": "MED1", "pmid": "111", "title": "KCNQ2 variants in neonatal epilepsy",
			"abstractText": "We report three infants with KCNQ2 encephalopathy.",
			"authorList": {"author": [{"fullName": "Garcia M"}, {"fullName": "Chen L"}]},
			"pubYear": "2021", "firstPublicationDate": "2021-03-15",
			"inEPMC": "Y", "isOpenAccess": "N"
		},
		{
			"id": "MED2", "pmid": "222", "title": "A second case series",
			"abstractText": "",
			"authorList": {"author": []},
			"pubYear": "2019",
			"inEPMC": "N", "isOpenAccess": "N"
		}
	]}
}`

func TestEuropePMCFetch(t *testing.T) {
	var gotCursor string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCursor = r.URL.Query().Get("cursorMark")
		fmt.Fprint(w, epmcPage1)
	}))
	defer ts.Close()

	old := europePMCSearchBase
	europePMCSearchBase = ts.URL
	defer func() { europePMCSearchBase = old }()

	b := NewEuropePMC(testSourceCfg())
	page, err := b.Fetch(context.Background(), Query{Terms: "KCNQ2 epilepsy"}, "", testSourceCfg())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotCursor != "*" {
		t.Errorf("first page cursorMark = %q, want *", gotCursor)
	}
	if len(page.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(page.Records))
	}
	if page.NextCursor != "cursor-2" {
		t.Errorf("NextCursor = %q, want cursor-2", page.NextCursor)
	}

	r := page.Records[0]
	if r.ID() != "europepmc:MED1" {
		t.Errorf("ID = %q", r.ID())
	}
	if !r.HasFullText {
		t.Error("MED1 should have full text (inEPMC=Y)")
	}
	if len(r.Authors) != 2 || r.Authors[0] != "Garcia M" {
		t.Errorf("authors = %v", r.Authors)
	}
	if r.Published.Format("2006-01-02") != "2021-03-15" {
		t.Errorf("published = %v", r.Published)
	}
	if page.Records[1].Published.Year() != 2019 {
		t.Errorf("pubYear fallback: got %v", page.Records[1].Published)
	}
}

func TestEuropePMCFetch_LastPage(t *testing.T) {
	// The final page repeats the cursorMark; NextCursor must be empty.
	body := `{"hitCount": 1, "nextCursorMark": "same",
		"resultList": {"result": [{"id": "MED9", "title": "t", "pubYear": "2020"}]}}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer ts.Close()

	old := europePMCSearchBase
	europePMCSearchBase = ts.URL
	defer func() { europePMCSearchBase = old }()

	b := NewEuropePMC(testSourceCfg())
	page, err := b.Fetch(context.Background(), Query{Terms: "x"}, "same", testSourceCfg())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty on last page", page.NextCursor)
	}
}

func TestEuropePMCFetch_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"resultList": {"result": [{`)
	}))
	defer ts.Close()

	old := europePMCSearchBase
	europePMCSearchBase = ts.URL
	defer func() { europePMCSearchBase = old }()

	b := NewEuropePMC(testSourceCfg())
	_, err := b.Fetch(context.Background(), Query{Terms: "x"}, "", testSourceCfg())
	if !IsFormat(err) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestEuropePMCFetch_MissingID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"resultList": {"result": [{"title": "no id"}]}}`)
	}))
	defer ts.Close()

	old := europePMCSearchBase
	europePMCSearchBase = ts.URL
	defer func() { europePMCSearchBase = old }()

	b := NewEuropePMC(testSourceCfg())
	_, err := b.Fetch(context.Background(), Query{Terms: "x"}, "", testSourceCfg())
	if !IsFormat(err) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestEuropePMCFetch_RateLimitedExhausted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	old := europePMCSearchBase
	europePMCSearchBase = ts.URL
	defer func() { europePMCSearchBase = old }()

	b := NewEuropePMC(testSourceCfg())
	_, err := b.Fetch(context.Background(), Query{Terms: "x"}, "", testSourceCfg())
	if !IsTransient(err) {
		t.Fatalf("want TransientError, got %v", err)
	}
}

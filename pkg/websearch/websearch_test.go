// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leseb/websearch-gw/pkg/core/upstream"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *http.Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, &http.Client{Transport: &rewriteTransport{targetURL: server.URL}}
}

func titles(r *Results) []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.Title)
	}
	return out
}

func assertTitles(t *testing.T, r *Results, want ...string) {
	t.Helper()
	got := titles(r)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("titles = %v, want %v", got, want)
	}
}

func TestGoogleProvider_PreservesOrder(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("key") != "test-key" || q.Get("cx") != "engine-1" || q.Get("q") != "golang testing" {
			t.Errorf("unexpected query parameters: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"title":"One","link":"https://a.example","snippet":"first"},
			{"title":"Two","link":"https://b.example","snippet":"second"},
			{"title":"Three","link":"https://c.example","snippet":"third"}
		]}`))
	})

	provider := NewGoogleProvider(Options{APIKey: "test-key", EngineID: "engine-1", HTTPClient: client})
	results, err := provider.Search(context.Background(), "golang testing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTitles(t, results, "One", "Two", "Three")
	if results.KnowledgeGraph != "" {
		t.Errorf("expected no knowledge graph, got %q", results.KnowledgeGraph)
	}
	if results.Entries[0].URL != "https://a.example" {
		t.Errorf("expected URL 'https://a.example', got %q", results.Entries[0].URL)
	}
}

func TestGoogleProvider_NoItems(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"kind":"customsearch#search"}`))
	})

	provider := NewGoogleProvider(Options{APIKey: "k", EngineID: "cx", HTTPClient: client})
	results, err := provider.Search(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(results.Entries))
	}
}

func TestSerperProvider_ReversesOrganicAndKeepsKnowledgeGraph(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-API-KEY") != "test-key" {
			t.Errorf("expected API key header, got %q", r.Header.Get("X-API-KEY"))
		}
		var req serperSearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "AI news" {
			t.Errorf("expected query 'AI news', got %q", req.Query)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"organic":[
				{"title":"One","link":"https://a.example","snippet":"first","date":"2 days ago"},
				{"title":"Two","link":"https://b.example","snippet":"second"},
				{"title":"Three","link":"https://c.example","snippet":"third"}
			],
			"knowledgeGraph":"AI is a field of computer science."
		}`))
	})

	provider := NewSerperProvider(Options{APIKey: "test-key", HTTPClient: client})
	results, err := provider.Search(context.Background(), "AI news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTitles(t, results, "Three", "Two", "One")
	if results.Entries[2].PublishedDate != "2 days ago" {
		t.Errorf("expected date to follow its entry, got %q", results.Entries[2].PublishedDate)
	}
	if results.KnowledgeGraph != "AI is a field of computer science." {
		t.Errorf("KnowledgeGraph = %q", results.KnowledgeGraph)
	}

	rendered := results.Render()
	if !strings.HasSuffix(rendered, "\nKnowledge Graph\nAI is a field of computer science.\n") {
		t.Errorf("expected knowledge graph rendered last, got %q", rendered)
	}
	if strings.Index(rendered, "Title: Three") > strings.Index(rendered, "Title: One") {
		t.Errorf("expected reversed rendering order, got %q", rendered)
	}
}

func TestSerperProvider_NumOnlyWhenNotDefault(t *testing.T) {
	tests := []struct {
		name       string
		maxResults int
		wantNum    any
	}{
		{"unset", 0, nil},
		{"serper default", 10, nil},
		{"custom", 5, float64(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode request: %v", err)
				}
				w.Write([]byte(`{"organic":[]}`))
			})

			provider := NewSerperProvider(Options{APIKey: "k", MaxResults: tt.maxResults, HTTPClient: client})
			if _, err := provider.Search(context.Background(), "q"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if body["q"] != "q" {
				t.Errorf("q = %v", body["q"])
			}
			if got, ok := body["num"]; got != tt.wantNum || ok != (tt.wantNum != nil) {
				t.Errorf("num = %v (present %v), want %v", got, ok, tt.wantNum)
			}
		})
	}
}

func TestSerperProvider_MissingOrganic(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"searchParameters":{"q":"x"}}`))
	})

	provider := NewSerperProvider(Options{APIKey: "k", HTTPClient: client})
	results, err := provider.Search(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Entries) != 0 || results.KnowledgeGraph != "" {
		t.Errorf("expected empty results, got %+v", results)
	}
	if got := results.Render(); got != "Search results added to question: \n" {
		t.Errorf("Render = %q", got)
	}
}

func TestKnowledgeGraphText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "absent", raw: ``, want: ""},
		{name: "null", raw: `null`, want: ""},
		{name: "string", raw: `"Paris is the capital of France."`, want: "Paris is the capital of France."},
		{
			name: "object",
			raw:  `{"title":"Paris","type":"Capital of France","description":"Paris is the capital.","attributes":{"Population":"2.1 million","Area":"105 km²"}}`,
			want: "Paris (Capital of France)\nParis is the capital.\nArea: 105 km²\nPopulation: 2.1 million",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := knowledgeGraphText(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearch_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantReason upstream.Reason
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"bad key"}`))
			},
			wantReason: upstream.ReasonStatus,
		},
		{
			name: "unparsable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>not json</html>`))
			},
			wantReason: upstream.ReasonDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newTestServer(t, tt.handler)
			providers := []Provider{
				NewGoogleProvider(Options{APIKey: "k", EngineID: "cx", HTTPClient: client}),
				NewSerperProvider(Options{APIKey: "k", HTTPClient: client}),
			}
			for _, p := range providers {
				_, err := p.Search(context.Background(), "q")
				var upErr *upstream.Error
				if !errors.As(err, &upErr) {
					t.Fatalf("%s: expected *upstream.Error, got %v", p.Name(), err)
				}
				if upErr.Provider != upstream.ProviderSearch || upErr.Reason != tt.wantReason {
					t.Errorf("%s: got provider=%q reason=%q", p.Name(), upErr.Provider, upErr.Reason)
				}
				if upErr.Backend != p.Name() {
					t.Errorf("Backend = %q, want %q", upErr.Backend, p.Name())
				}
			}
		})
	}
}

func TestSearch_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := &http.Client{Transport: &rewriteTransport{targetURL: server.URL}}
	server.Close()

	provider := NewSerperProvider(Options{APIKey: "k", HTTPClient: client})
	_, err := provider.Search(context.Background(), "q")

	var upErr *upstream.Error
	if !errors.As(err, &upErr) || upErr.Reason != upstream.ReasonTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestBraveProvider_Search(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "test-key" {
			t.Errorf("expected API key header, got %q", r.Header.Get("X-Subscription-Token"))
		}
		if r.URL.Query().Get("q") != "golang testing" {
			t.Errorf("expected query 'golang testing', got %q", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("count") != "5" {
			t.Errorf("expected count 5, got %q", r.URL.Query().Get("count"))
		}

		resp := braveSearchResponse{}
		resp.Web.Results = []braveResult{
			{Title: "Go Testing", URL: "https://golang.org/testing", Description: "Testing in <strong>Go</strong>"},
			{Title: "Go Docs", URL: "https://golang.org/doc", Description: "Go documentation", Age: "March 1, 2024"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	provider := NewBraveProvider(Options{APIKey: "test-key", MaxResults: 5, HTTPClient: client})
	results, err := provider.Search(context.Background(), "golang testing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertTitles(t, results, "Go Testing", "Go Docs")
	if results.Entries[0].Snippet != "Testing in Go" {
		t.Errorf("expected markup stripped, got %q", results.Entries[0].Snippet)
	}
	if results.Entries[1].PublishedDate != "March 1, 2024" {
		t.Errorf("PublishedDate = %q", results.Entries[1].PublishedDate)
	}
}

func TestTavilyProvider_Search(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var req tavilySearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.APIKey != "test-key" {
			t.Errorf("expected api_key 'test-key', got %q", req.APIKey)
		}
		if req.Query != "AI news" {
			t.Errorf("expected query 'AI news', got %q", req.Query)
		}

		resp := tavilySearchResponse{
			Answer: "AI moves fast.",
			Results: []tavilyResult{
				{Title: "AI News", URL: "https://example.com/ai", Content: "Latest AI developments"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	provider := NewTavilyProvider(Options{APIKey: "test-key", MaxResults: 3, HTTPClient: client})
	results, err := provider.Search(context.Background(), "AI news")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Entries) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results.Entries))
	}
	if results.Entries[0].Snippet != "Latest AI developments" {
		t.Errorf("expected snippet 'Latest AI developments', got %q", results.Entries[0].Snippet)
	}
	if results.KnowledgeGraph != "AI moves fast." {
		t.Errorf("KnowledgeGraph = %q", results.KnowledgeGraph)
	}
}

func TestRender(t *testing.T) {
	results := &Results{
		Entries: []SearchResult{
			{Title: "A", Snippet: "alpha", PublishedDate: "2024-01-01"},
			{Title: "B", Snippet: "beta"},
		},
		KnowledgeGraph: "graph",
	}

	want := "Search results added to question: \n" +
		"Title: A\nSnippet: alpha\nDate: 2024-01-01\n" +
		"Title: B\nSnippet: beta\n" +
		"\nKnowledge Graph\ngraph\n"
	if got := results.Render(); got != want {
		t.Errorf("Render() =\n%q\nwant\n%q", got, want)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain  text\nacross lines", "plain  text\nacross lines"},
		{"1 < 2 and  spaced", "1 < 2 and  spaced"},
		{"Go&#39;s <b>testing</b> package", "Go's testing package"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"<script>x()</script>visible", "visible"},
	}
	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProviders_Registry(t *testing.T) {
	avail := strings.Join(Providers.Available(), ",")
	if avail != "brave,google,serper,tavily" {
		t.Errorf("Available() = %s", avail)
	}

	if _, err := Providers.New(context.Background(), "google", map[string]string{"api_key": "k"}); err == nil {
		t.Error("expected error when engine_id is missing")
	}
	if _, err := Providers.New(context.Background(), "serper", map[string]string{}); err == nil {
		t.Error("expected error when api_key is missing")
	}

	p, err := Providers.New(context.Background(), "serper", map[string]string{"api_key": "k", "max_results": "7", "timeout": "5s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "serper" {
		t.Errorf("Name() = %q", p.Name())
	}

	if _, err := Providers.New(context.Background(), "serper", map[string]string{"api_key": "k", "max_results": "many"}); err == nil {
		t.Error("expected error for invalid max_results")
	}
}

// rewriteTransport rewrites requests to point at a test server.
type rewriteTransport struct {
	base      http.RoundTripper
	targetURL string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.targetURL[len("http://"):]
	transport := t.base
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}

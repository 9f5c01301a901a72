// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/leseb/websearch-gw/pkg/core/upstream"
)

const tavilySearchURL = "https://api.tavily.com/search"

func init() {
	Providers.Register("tavily", func(_ context.Context, params map[string]string) (Provider, error) {
		opts, err := OptionsFromParams(params)
		if err != nil {
			return nil, fmt.Errorf("tavily: %w", err)
		}
		if opts.APIKey == "" {
			return nil, fmt.Errorf("tavily: api_key parameter is required")
		}
		return NewTavilyProvider(opts), nil
	})
}

// TavilyProvider performs web searches using the Tavily Search API.
// Tavily's synthesized answer, when present, fills the knowledge graph slot.
type TavilyProvider struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewTavilyProvider creates a new Tavily Search provider.
func NewTavilyProvider(opts Options) *TavilyProvider {
	return &TavilyProvider{
		apiKey:     opts.APIKey,
		endpoint:   opts.endpoint(tavilySearchURL),
		maxResults: opts.MaxResults,
		httpClient: opts.httpClient(),
	}
}

// Name implements Provider.
func (t *TavilyProvider) Name() string { return "tavily" }

// Search queries the Tavily Search API and returns results.
func (t *TavilyProvider) Search(ctx context.Context, query string) (*Results, error) {
	reqBody, err := json.Marshal(tavilySearchRequest{
		APIKey:     t.apiKey,
		Query:      query,
		MaxResults: t.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, t.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := do(t.httpClient, req, t.Name())
	if err != nil {
		return nil, err
	}

	var result tavilySearchResponse
	if err := decode(body, &result, t.Name()); err != nil {
		return nil, err
	}

	entries := make([]SearchResult, 0, len(result.Results))
	for _, r := range result.Results {
		entries = append(entries, SearchResult{
			Title:         cleanText(r.Title),
			URL:           r.URL,
			Snippet:       cleanText(r.Content),
			PublishedDate: r.PublishedDate,
		})
	}

	return &Results{
		Provider:       t.Name(),
		Query:          query,
		Entries:        entries,
		KnowledgeGraph: result.Answer,
	}, nil
}

type tavilySearchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type tavilySearchResponse struct {
	Answer  string         `json:"answer,omitempty"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date,omitempty"`
}

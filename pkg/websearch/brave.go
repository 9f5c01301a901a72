// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/leseb/websearch-gw/pkg/core/upstream"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

func init() {
	Providers.Register("brave", func(_ context.Context, params map[string]string) (Provider, error) {
		opts, err := OptionsFromParams(params)
		if err != nil {
			return nil, fmt.Errorf("brave: %w", err)
		}
		if opts.APIKey == "" {
			return nil, fmt.Errorf("brave: api_key parameter is required")
		}
		return NewBraveProvider(opts), nil
	})
}

// BraveProvider performs web searches using the Brave Search API.
type BraveProvider struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewBraveProvider creates a new Brave Search provider.
func NewBraveProvider(opts Options) *BraveProvider {
	return &BraveProvider{
		apiKey:     opts.APIKey,
		endpoint:   opts.endpoint(braveSearchURL),
		maxResults: opts.MaxResults,
		httpClient: opts.httpClient(),
	}
}

// Name implements Provider.
func (b *BraveProvider) Name() string { return "brave" }

// Search queries the Brave Web Search API and returns results.
func (b *BraveProvider) Search(ctx context.Context, query string) (*Results, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, b.Name(), err)
	}
	q := u.Query()
	q.Set("q", query)
	if b.maxResults > 0 {
		q.Set("count", strconv.Itoa(b.maxResults))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, b.Name(), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	body, err := do(b.httpClient, req, b.Name())
	if err != nil {
		return nil, err
	}

	var result braveSearchResponse
	if err := decode(body, &result, b.Name()); err != nil {
		return nil, err
	}

	entries := make([]SearchResult, 0, len(result.Web.Results))
	for _, r := range result.Web.Results {
		entries = append(entries, SearchResult{
			Title:         cleanText(r.Title),
			URL:           r.URL,
			Snippet:       cleanText(r.Description),
			PublishedDate: r.Age,
		})
	}

	return &Results{Provider: b.Name(), Query: query, Entries: entries}, nil
}

type braveSearchResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Age         string `json:"age,omitempty"`
}

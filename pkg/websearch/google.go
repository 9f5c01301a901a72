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

const googleSearchURL = "https://www.googleapis.com/customsearch/v1"

// Google Custom Search returns at most 10 results per page.
const googleMaxResults = 10

func init() {
	Providers.Register("google", func(_ context.Context, params map[string]string) (Provider, error) {
		opts, err := OptionsFromParams(params)
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		if opts.APIKey == "" {
			return nil, fmt.Errorf("google: api_key parameter is required")
		}
		if opts.EngineID == "" {
			return nil, fmt.Errorf("google: engine_id parameter is required")
		}
		return NewGoogleProvider(opts), nil
	})
}

// GoogleProvider performs web searches using the Google Custom Search JSON API.
// Results keep the order the API returned them in.
type GoogleProvider struct {
	apiKey     string
	engineID   string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewGoogleProvider creates a new Google Custom Search provider.
func NewGoogleProvider(opts Options) *GoogleProvider {
	return &GoogleProvider{
		apiKey:     opts.APIKey,
		engineID:   opts.EngineID,
		endpoint:   opts.endpoint(googleSearchURL),
		maxResults: min(opts.MaxResults, googleMaxResults),
		httpClient: opts.httpClient(),
	}
}

// Name implements Provider.
func (g *GoogleProvider) Name() string { return "google" }

// Search queries the Custom Search API and returns results.
func (g *GoogleProvider) Search(ctx context.Context, query string) (*Results, error) {
	u, err := url.Parse(g.endpoint)
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, g.Name(), err)
	}
	q := u.Query()
	q.Set("key", g.apiKey)
	q.Set("cx", g.engineID)
	q.Set("q", query)
	if g.maxResults > 0 {
		q.Set("num", strconv.Itoa(g.maxResults))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, g.Name(), err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := do(g.httpClient, req, g.Name())
	if err != nil {
		return nil, err
	}

	var result googleSearchResponse
	if err := decode(body, &result, g.Name()); err != nil {
		return nil, err
	}

	entries := make([]SearchResult, 0, len(result.Items))
	for _, item := range result.Items {
		entries = append(entries, SearchResult{
			Title:   cleanText(item.Title),
			URL:     item.Link,
			Snippet: cleanText(item.Snippet),
		})
	}

	return &Results{Provider: g.Name(), Query: query, Entries: entries}, nil
}

type googleSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

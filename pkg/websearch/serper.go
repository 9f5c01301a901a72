// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/leseb/websearch-gw/pkg/core/upstream"
)

const (
	serperSearchURL = "https://google.serper.dev/search"
	// Serper returns ten organic results when num is absent.
	serperDefaultNum = 10
)

func init() {
	Providers.Register("serper", func(_ context.Context, params map[string]string) (Provider, error) {
		opts, err := OptionsFromParams(params)
		if err != nil {
			return nil, fmt.Errorf("serper: %w", err)
		}
		if opts.APIKey == "" {
			return nil, fmt.Errorf("serper: api_key parameter is required")
		}
		return NewSerperProvider(opts), nil
	})
}

// SerperProvider performs web searches using the Serper Google Search API.
// Organic results are reversed so the last-ranked entry is rendered first,
// and the knowledge graph block is carried through.
type SerperProvider struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewSerperProvider creates a new Serper provider.
func NewSerperProvider(opts Options) *SerperProvider {
	return &SerperProvider{
		apiKey:     opts.APIKey,
		endpoint:   opts.endpoint(serperSearchURL),
		maxResults: opts.MaxResults,
		httpClient: opts.httpClient(),
	}
}

// Name implements Provider.
func (s *SerperProvider) Name() string { return "serper" }

// Search queries the Serper API and returns results.
func (s *SerperProvider) Search(ctx context.Context, query string) (*Results, error) {
	num := s.maxResults
	if num == serperDefaultNum {
		num = 0
	}
	reqBody, err := json.Marshal(serperSearchRequest{Query: query, Num: num})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, s.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	body, err := do(s.httpClient, req, s.Name())
	if err != nil {
		return nil, err
	}

	var result serperSearchResponse
	if err := decode(body, &result, s.Name()); err != nil {
		return nil, err
	}

	entries := make([]SearchResult, 0, len(result.Organic))
	for _, item := range result.Organic {
		entries = append(entries, SearchResult{
			Title:         cleanText(item.Title),
			URL:           item.Link,
			Snippet:       cleanText(item.Snippet),
			PublishedDate: item.Date,
		})
	}
	reverse(entries)

	graph, err := knowledgeGraphText(result.KnowledgeGraph)
	if err != nil {
		return nil, upstream.Decode(upstream.ProviderSearch, s.Name(), err)
	}

	return &Results{
		Provider:       s.Name(),
		Query:          query,
		Entries:        entries,
		KnowledgeGraph: graph,
	}, nil
}

type serperSearchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
}

type serperSearchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date,omitempty"`
	} `json:"organic"`
	KnowledgeGraph json.RawMessage `json:"knowledgeGraph"`
}

type serperKnowledgeGraph struct {
	Title       string            `json:"title"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes"`
}

// knowledgeGraphText accepts the knowledge graph either as plain text or as
// Serper's structured object and flattens it to text.
func knowledgeGraphText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("knowledge graph: %w", err)
		}
		return s, nil
	}

	var kg serperKnowledgeGraph
	if err := json.Unmarshal(trimmed, &kg); err != nil {
		return "", fmt.Errorf("knowledge graph: %w", err)
	}

	var lines []string
	heading := kg.Title
	if kg.Type != "" {
		if heading != "" {
			heading += " (" + kg.Type + ")"
		} else {
			heading = kg.Type
		}
	}
	if heading != "" {
		lines = append(lines, heading)
	}
	if kg.Description != "" {
		lines = append(lines, cleanText(kg.Description))
	}

	keys := make([]string, 0, len(kg.Attributes))
	for k := range kg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+kg.Attributes[k])
	}
	return strings.Join(lines, "\n"), nil
}

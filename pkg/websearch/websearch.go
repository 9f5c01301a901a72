// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package websearch normalizes external web search APIs into one result
// shape.
//
// Implementations self-register with Providers from init(); select one with
// Providers.New(ctx, name, params). Recognized params are "api_key",
// "engine_id", "endpoint", "max_results" and "timeout".
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leseb/websearch-gw/pkg/provider"
)

// Providers is the registry of web search backends.
var Providers = provider.NewRegistry[Provider]("web_search")

// DefaultTimeout bounds a single search call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// SearchResult represents a single web search result.
type SearchResult struct {
	Title         string
	URL           string
	Snippet       string
	PublishedDate string // empty when the provider did not report one
}

// Results is the normalized response of one search call. Entries are already
// in rendering order.
type Results struct {
	Provider       string
	Query          string
	Entries        []SearchResult
	KnowledgeGraph string // empty when absent
}

// Provider performs web searches against an external API. Failures are
// returned as *upstream.Error.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) (*Results, error)
}

// Options configures a provider instance.
type Options struct {
	APIKey     string
	EngineID   string // Google Programmable Search engine id (cx)
	Endpoint   string // overrides the provider's default API URL
	MaxResults int    // 0 leaves the provider default
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OptionsFromParams builds Options from a registry parameter map.
func OptionsFromParams(params map[string]string) (Options, error) {
	opts := Options{
		APIKey:   params["api_key"],
		EngineID: params["engine_id"],
		Endpoint: params["endpoint"],
	}
	if v := params["max_results"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid max_results %q", v)
		}
		opts.MaxResults = n
	}
	if v := params["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return opts, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		opts.Timeout = d
	}
	return opts, nil
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) endpoint(def string) string {
	if o.Endpoint != "" {
		return o.Endpoint
	}
	return def
}

// Render formats results as the text of a context message: one block per
// entry in Entries order, then the knowledge graph summary.
func (r *Results) Render() string {
	var sb strings.Builder
	sb.WriteString("Search results added to question: \n")
	for _, e := range r.Entries {
		fmt.Fprintf(&sb, "Title: %s\n", e.Title)
		fmt.Fprintf(&sb, "Snippet: %s\n", e.Snippet)
		if e.PublishedDate != "" {
			fmt.Fprintf(&sb, "Date: %s\n", e.PublishedDate)
		}
	}
	if r.KnowledgeGraph != "" {
		sb.WriteString("\nKnowledge Graph\n")
		sb.WriteString(r.KnowledgeGraph)
		sb.WriteString("\n")
	}
	return sb.String()
}

func reverse(entries []SearchResult) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package websearch

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/leseb/websearch-gw/pkg/core/upstream"
)

const maxResponseBytes = 4 << 20

// do sends req and returns the body of a 2xx response. Every failure is an
// *upstream.Error attributed to the search provider.
func do(client *http.Client, req *http.Request, backend string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, backend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, upstream.Transport(upstream.ProviderSearch, backend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstream.Status(upstream.ProviderSearch, backend, resp.StatusCode, string(body))
	}
	return body, nil
}

func decode(body []byte, v any, backend string) error {
	if err := json.Unmarshal(body, v); err != nil {
		return upstream.Decode(upstream.ProviderSearch, backend, err)
	}
	return nil
}

// cleanText strips markup and decodes entities in a provider snippet. Text
// without markup is returned as is.
func cleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}

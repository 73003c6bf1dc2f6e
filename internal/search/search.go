// Package search is the web search boundary used by the researcher node and
// the web_search tool.
package search

import (
	"context"
	"fmt"
	"strings"
)

// NoResults is substituted for search output when a search fails or comes
// back empty.
const NoResults = "No results found."

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string) ([]Result, error)

func (f ProviderFunc) Search(ctx context.Context, query string) ([]Result, error) {
	return f(ctx, query)
}

// Format renders results as plain text for a prompt.
func Format(results []Result) string {
	if len(results) == 0 {
		return NoResults
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n%s", i+1, r.Title, r.URL)
		if s := strings.TrimSpace(r.Snippet); s != "" {
			b.WriteString("\n")
			b.WriteString(s)
		}
	}
	return b.String()
}

package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/danshapiro/newsroom/internal/metrics"
)

const (
	DefaultDuckDuckGoURL = "https://lite.duckduckgo.com/lite/"
	defaultMaxResults    = 5
	DefaultRetries       = 2

	// NoRetries as DuckDuckGoConfig.Retries disables retrying throttled queries.
	NoRetries = -1
	userAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DuckDuckGoConfig configures the lite HTML scraper. Zero values take
// defaults.
type DuckDuckGoConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxResults int
	// MinInterval spaces consecutive queries from this client.
	MinInterval time.Duration
	// Retries on HTTP 429, with resty's backoff between RetryWait and
	// RetryMaxWait. Zero means DefaultRetries.
	Retries      int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// DuckDuckGo scrapes DuckDuckGo's lite HTML page.
type DuckDuckGo struct {
	client     *resty.Client
	baseURL    string
	maxResults int

	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func NewDuckDuckGo(cfg DuckDuckGoConfig) *DuckDuckGo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDuckDuckGoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = DefaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = time.Second
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = 30 * time.Second
	}
	client := resty.New().
		SetHeader("User-Agent", userAgent).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusTooManyRequests
		})
	return &DuckDuckGo{
		client:     client,
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		interval:   cfg.MinInterval,
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if err := d.pace(ctx); err != nil {
		return nil, err
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"q": query}).
		Post(d.baseURL)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("duckduckgo", "error").Inc()
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	if resp.IsError() {
		metrics.SearchRequestsTotal.WithLabelValues("duckduckgo", "error").Inc()
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode())
	}
	metrics.SearchRequestsTotal.WithLabelValues("duckduckgo", "ok").Inc()

	results, err := parseLite(resp.Body(), d.maxResults)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo results: %w", err)
	}
	return results, nil
}

// pace waits until MinInterval has passed since the previous query.
func (d *DuckDuckGo) pace(ctx context.Context) error {
	if d.interval <= 0 {
		return nil
	}
	d.mu.Lock()
	wait := time.Until(d.last.Add(d.interval))
	if wait < 0 {
		wait = 0
	}
	d.last = time.Now().Add(wait)
	d.mu.Unlock()
	if wait == 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseLite walks the lite page: result links are <a class="result-link">,
// and the n-th <td class="result-snippet"> belongs to the n-th link.
func parseLite(body []byte, max int) ([]Result, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var links []Result
	var snippets []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				links = append(links, Result{
					Title: collapse(textOf(n)),
					URL:   resolveRedirect(attr(n, "href")),
				})
				return
			case n.Data == "td" && hasClass(n, "result-snippet"):
				snippets = append(snippets, collapse(textOf(n)))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	out := make([]Result, 0, min(len(links), max))
	for i, r := range links {
		if r.URL == "" || r.Title == "" {
			continue
		}
		if i < len(snippets) {
			r.Snippet = snippets[i]
		}
		out = append(out, r)
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= click-through links.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

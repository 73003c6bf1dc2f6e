package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const litePage = `<html><body><table>
<tr><td>1.&nbsp;</td><td>
  <a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc" class='result-link'>The Go <b>Programming</b> Language</a>
</td></tr>
<tr><td>&nbsp;</td><td class='result-snippet'>Go is an open source   programming language.</td></tr>
<tr><td>2.&nbsp;</td><td>
  <a rel="nofollow" href="https://example.com/go" class='result-link'>Example &amp; Go</a>
</td></tr>
<tr><td>&nbsp;</td><td class='result-snippet'>Second snippet</td></tr>
</table></body></html>`

func TestDuckDuckGo_ParsesLitePage(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.PostForm.Get("q")
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte(litePage))
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(DuckDuckGoConfig{BaseURL: srv.URL})
	results, err := ddg.Search(context.Background(), "golang")
	require.NoError(t, err)

	assert.Equal(t, "golang", gotQuery)
	assert.Contains(t, gotUA, "Mozilla")
	assert.Equal(t, []Result{
		{Title: "The Go Programming Language", URL: "https://go.dev/doc/", Snippet: "Go is an open source programming language."},
		{Title: "Example & Go", URL: "https://example.com/go", Snippet: "Second snippet"},
	}, results)
}

func TestDuckDuckGo_MaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(litePage))
	}))
	defer srv.Close()

	results, err := NewDuckDuckGo(DuckDuckGoConfig{BaseURL: srv.URL, MaxResults: 1}).Search(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://go.dev/doc/", results[0].URL)
}

func TestDuckDuckGo_RetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(litePage))
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(DuckDuckGoConfig{
		BaseURL:      srv.URL,
		Retries:      2,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	})
	results, err := ddg.Search(context.Background(), "go")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDuckDuckGo_DefaultConfigRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= DefaultRetries {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(litePage))
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(DuckDuckGoConfig{BaseURL: srv.URL, RetryWait: time.Millisecond, RetryMaxWait: 5 * time.Millisecond})
	results, err := ddg.Search(context.Background(), "go")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.EqualValues(t, DefaultRetries+1, calls.Load())
}

func TestDuckDuckGo_NoRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(DuckDuckGoConfig{BaseURL: srv.URL, Retries: NoRetries})
	_, err := ddg.Search(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.EqualValues(t, 1, calls.Load())
}

func TestDuckDuckGo_HTTPErrorAndEmptyQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(DuckDuckGoConfig{BaseURL: srv.URL})
	_, err := ddg.Search(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	_, err = ddg.Search(context.Background(), "   ")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, NoResults, Format(nil))
	assert.Equal(t,
		"1. A\nhttps://a\nsnippet a\n\n2. B\nhttps://b",
		Format([]Result{{Title: "A", URL: "https://a", Snippet: "snippet a"}, {Title: "B", URL: "https://b"}}),
	)
}

func TestCached_HitsAndMisses(t *testing.T) {
	calls := 0
	next := ProviderFunc(func(_ context.Context, q string) ([]Result, error) {
		calls++
		return []Result{{Title: q, URL: "https://x"}}, nil
	})
	c, err := NewCached(next, 2, 0)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.Search(ctx, "Go  Lang")
	require.NoError(t, err)
	second, err := c.Search(ctx, "go lang")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	_, _ = c.Search(ctx, "b")
	_, _ = c.Search(ctx, "c")
	assert.Equal(t, 2, c.Len())
	_, _ = c.Search(ctx, "go lang")
	assert.Equal(t, 4, calls, "evicted entry must be fetched again")
}

func TestCached_DoesNotCacheFailures(t *testing.T) {
	calls := 0
	next := ProviderFunc(func(context.Context, string) ([]Result, error) {
		calls++
		return nil, errors.New("down")
	})
	c, err := NewCached(next, 4, 0)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "q")
	assert.Error(t, err)
	_, err = c.Search(context.Background(), "q")
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestCached_ExpiresEntries(t *testing.T) {
	calls := 0
	next := ProviderFunc(func(context.Context, string) ([]Result, error) {
		calls++
		return []Result{{Title: "t", URL: "u"}}, nil
	})
	c, err := NewCached(next, 4, time.Minute)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	_, _ = c.Search(context.Background(), "q")
	now = now.Add(30 * time.Second)
	_, _ = c.Search(context.Background(), "q")
	assert.Equal(t, 1, calls)

	now = now.Add(time.Minute)
	_, _ = c.Search(context.Background(), "q")
	assert.Equal(t, 2, calls)
}

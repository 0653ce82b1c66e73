package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func htmlPage(links ...string) string {
	body := "<html><body>"
	for _, l := range links {
		body += fmt.Sprintf(`<a href=%q>link</a>`, l)
	}
	return body + "</body></html>"
}

// TestCrawlFollowsSameOriginAnchors walks a three-page site and ignores
// off-origin, mailto and fragment-only links.
func TestCrawlFollowsSameOriginAnchors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, htmlPage("/a", "/b", "https://elsewhere.test/x", "mailto:x@y.z", "#frag"))
		case "/a", "/b":
			fmt.Fprint(w, htmlPage("/"))
		default:
			http.NotFound(w, r)
		}
	})

	c := New("test-agent", nil)
	urls, err := c.Crawl(context.Background(), srv.URL+"/", Options{MaxPages: 10})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/a", srv.URL + "/b"}, urls)
}

// TestCrawlBoundedByMaxPages serves a 50-page graph and expects exactly ten
// fetches when maxPages is ten.
func TestCrawlBoundedByMaxPages(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int64
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		var links []string
		for i := 0; i < 49; i++ {
			links = append(links, fmt.Sprintf("/page-%d", i))
		}
		fmt.Fprint(w, htmlPage(links...))
	})

	c := New("test-agent", nil)
	urls, err := c.Crawl(context.Background(), srv.URL+"/", Options{MaxPages: 10, Concurrency: 3})
	require.NoError(t, err)
	require.Equal(t, int64(10), fetches.Load())
	require.Len(t, urls, 10)
}

// TestCrawlSkipsNonHTML fetches but does not emit responses without a
// text/html content type.
func TestCrawlSkipsNonHTML(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, htmlPage("/feed.json"))
	})
	mux.HandleFunc("/feed.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})

	c := New("test-agent", nil)
	urls, err := c.Crawl(context.Background(), srv.URL+"/", Options{MaxPages: 10})
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/"}, urls)
}

// TestCrawlQueryAllowList keeps allow-listed query parameters and drops the
// rest during link normalization.
func TestCrawlQueryAllowList(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, htmlPage("/list?utm_source=news&page=2"))
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, htmlPage())
	})

	c := New("test-agent", nil)
	urls, err := c.Crawl(context.Background(), srv.URL+"/", Options{
		MaxPages:             10,
		IncludeQueryPatterns: []string{"page"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/list?page=2"}, urls)
}

// TestCrawlDropsFailedFetches treats non-2xx responses as failures and keeps
// going.
func TestCrawlDropsFailedFetches(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, htmlPage("/gone", "/ok"))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, htmlPage())
	})

	c := New("test-agent", nil)
	urls, err := c.Crawl(context.Background(), srv.URL+"/", Options{MaxPages: 10})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/ok"}, urls)
}

// TestCrawlThrottlesRequests holds fetches to the configured request rate.
func TestCrawlThrottlesRequests(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, htmlPage("/a", "/b", "/c"))
	})

	c := New("test-agent", nil)
	start := time.Now()
	urls, err := c.Crawl(context.Background(), srv.URL+"/", Options{
		MaxPages:          4,
		Concurrency:       4,
		RequestsPerSecond: 20,
	})
	require.NoError(t, err)
	require.Len(t, urls, 4)
	// Four fetches at 20/s with a burst of one need three refill intervals.
	require.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

// TestCrawlRejectsBadInputs validates base URL and maxPages.
func TestCrawlRejectsBadInputs(t *testing.T) {
	t.Parallel()

	c := New("test-agent", nil)
	_, err := c.Crawl(context.Background(), "::bad::", Options{MaxPages: 1})
	require.Error(t, err)
	_, err = c.Crawl(context.Background(), "https://ex.com/", Options{MaxPages: 0})
	require.Error(t, err)
}

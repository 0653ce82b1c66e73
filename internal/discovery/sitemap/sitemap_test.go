package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func urlsetXML(locs ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, loc := range locs {
		body += "<url><loc>" + loc + "</loc></url>"
	}
	return body + "</urlset>"
}

func indexXML(locs ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, loc := range locs {
		body += "<sitemap><loc>" + loc + "</loc></sitemap>"
	}
	return body + "</sitemapindex>"
}

// TestDiscoverIndexTree walks robots.txt -> index -> two child sitemaps and
// expects all ten URLs in document order.
func TestDiscoverIndexTree(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nSitemap: %s/s.xml\n", srv.URL)
	})
	mux.HandleFunc("/s.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, indexXML(srv.URL+"/a.xml", srv.URL+"/b.xml"))
	})
	for _, name := range []string{"a", "b"} {
		name := name
		mux.HandleFunc("/"+name+".xml", func(w http.ResponseWriter, _ *http.Request) {
			var locs []string
			for i := 0; i < 5; i++ {
				locs = append(locs, fmt.Sprintf("%s/%s/page-%d", srv.URL, name, i))
			}
			fmt.Fprint(w, urlsetXML(locs...))
		})
	}

	d := New("test-agent", nil)
	urls, err := d.Discover(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, urls, 10)
	require.Equal(t, srv.URL+"/a/page-0", urls[0])
	require.Equal(t, srv.URL+"/b/page-4", urls[9])
}

// TestDiscoverFallbackPaths uses the well-known sitemap locations when
// robots.txt is absent.
func TestDiscoverFallbackPaths(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, urlsetXML(srv.URL+"/only"))
	})

	d := New("test-agent", nil)
	urls, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/only"}, urls)
}

// TestDiscoverCycleGuard stops on sitemap indexes that reference each other.
func TestDiscoverCycleGuard(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/x.xml\n", srv.URL)
	})
	mux.HandleFunc("/x.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, indexXML(srv.URL+"/y.xml"))
	})
	mux.HandleFunc("/y.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, indexXML(srv.URL+"/x.xml"))
	})

	d := New("test-agent", nil)
	urls, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Empty(t, urls)
}

// TestDiscoverSkipsBrokenDocuments drops unparsable and non-200 documents
// without failing the discovery.
func TestDiscoverSkipsBrokenDocuments(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/broken.xml\nSitemap: %s/missing.xml\nSitemap: %s/good.xml\n",
			srv.URL, srv.URL, srv.URL)
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<not-a-sitemap/>")
	})
	mux.HandleFunc("/good.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, urlsetXML(srv.URL+"/kept"))
	})

	d := New("test-agent", nil)
	urls, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/kept"}, urls)
}

// TestDiscoverDeduplicates collapses URLs repeated across sitemaps after
// normalization.
func TestDiscoverDeduplicates(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "Sitemap: %s/s.xml\n", srv.URL)
	})
	mux.HandleFunc("/s.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, urlsetXML(srv.URL+"/a", srv.URL+"/a#frag", srv.URL+"/b"))
	})

	d := New("test-agent", nil)
	urls, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/a", srv.URL + "/b"}, urls)
}

// TestDiscoverInvalidBase rejects base URLs without a host.
func TestDiscoverInvalidBase(t *testing.T) {
	t.Parallel()

	d := New("test-agent", nil)
	_, err := d.Discover(context.Background(), "not a url")
	require.Error(t, err)
}

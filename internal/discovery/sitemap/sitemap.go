// Package sitemap discovers page URLs by walking a site's robots.txt
// sitemap directives and the referenced sitemap tree.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/urlnorm"
)

const (
	robotsTimeout  = 10 * time.Second
	sitemapTimeout = 15 * time.Second
	// maxURLs caps emission across the whole sitemap tree.
	maxURLs = 50_000
	// maxBodyBytes bounds a single sitemap document read.
	maxBodyBytes = 32 << 20
)

// Well-known sitemap locations probed when robots.txt names none.
var fallbackPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/wp-sitemap.xml"}

// Discoverer walks robots.txt and sitemap documents for one site.
type Discoverer struct {
	client    *http.Client
	logger    *zap.Logger
	userAgent string
}

// New builds a Discoverer. A nil logger is replaced with a nop logger.
func New(userAgent string, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		client:    &http.Client{},
		logger:    logger,
		userAgent: userAgent,
	}
}

// Discover returns normalized page URLs found under baseURL's sitemaps, in
// document order, deduplicated, capped at 50k. Unreachable or malformed
// documents are logged and skipped; only an invalid baseURL is an error.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	queue := d.seedSitemaps(ctx, base)

	var (
		results []string
		seen    = make(map[string]bool)
		visited = make(map[string]bool)
	)
	for len(queue) > 0 && len(results) < maxURLs {
		docURL := queue[0]
		queue = queue[1:]
		if visited[docURL] {
			continue
		}
		visited[docURL] = true

		body, err := d.fetch(ctx, docURL, sitemapTimeout)
		if err != nil {
			d.logger.Warn("sitemap fetch failed", zap.String("url", docURL), zap.Error(err))
			continue
		}
		doc, err := parseDocument(body)
		if err != nil {
			d.logger.Warn("sitemap parse failed", zap.String("url", docURL), zap.Error(err))
			continue
		}

		for _, child := range doc.Sitemaps {
			if loc := strings.TrimSpace(child.Loc); loc != "" {
				queue = append(queue, loc)
			}
		}
		for _, entry := range doc.URLs {
			loc := strings.TrimSpace(entry.Loc)
			if loc == "" {
				continue
			}
			normalized := urlnorm.Normalize(loc, urlnorm.Options{})
			if seen[normalized] {
				continue
			}
			seen[normalized] = true
			results = append(results, normalized)
			if len(results) >= maxURLs {
				break
			}
		}
	}
	return results, nil
}

// seedSitemaps fetches robots.txt and returns its Sitemap directives, or the
// well-known fallback locations when robots.txt yields none.
func (d *Discoverer) seedSitemaps(ctx context.Context, base *url.URL) []string {
	robotsURL := base.ResolveReference(&url.URL{Path: "/robots.txt"}).String()

	var seeds []string
	body, err := d.fetch(ctx, robotsURL, robotsTimeout)
	if err != nil {
		d.logger.Warn("robots.txt fetch failed", zap.String("url", robotsURL), zap.Error(err))
	} else if data, parseErr := robotstxt.FromBytes(body); parseErr != nil {
		d.logger.Warn("robots.txt parse failed", zap.String("url", robotsURL), zap.Error(parseErr))
	} else {
		seeds = append(seeds, data.Sitemaps...)
	}

	if len(seeds) == 0 {
		for _, p := range fallbackPaths {
			seeds = append(seeds, base.ResolveReference(&url.URL{Path: p}).String())
		}
	}
	return seeds
}

func (d *Discoverer) fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// document is the union shape of <sitemapindex> and <urlset>.
type document struct {
	XMLName  xml.Name
	Sitemaps []locEntry `xml:"sitemap"`
	URLs     []locEntry `xml:"url"`
}

type locEntry struct {
	Loc string `xml:"loc"`
}

func parseDocument(body []byte) (document, error) {
	var doc document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return document{}, fmt.Errorf("unmarshal sitemap xml: %w", err)
	}
	switch doc.XMLName.Local {
	case "sitemapindex", "urlset":
		return doc, nil
	default:
		return document{}, fmt.Errorf("unrecognized root element %q", doc.XMLName.Local)
	}
}

// Package crawl implements bounded same-origin discovery over anchors using
// the Colly library.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sitepulse/sitepulse/internal/urlnorm"
)

const (
	requestTimeout     = 10 * time.Second
	defaultConcurrency = 3
)

// Options bound a single crawl.
type Options struct {
	// MaxPages caps the number of URLs taken off the queue for fetching.
	MaxPages int
	// Concurrency is the number of in-flight fetches (default 3).
	Concurrency int
	// IncludeQueryPatterns are query parameter names (full-match regexes)
	// retained during link normalization; all other parameters are dropped.
	IncludeQueryPatterns []string
	// RequestsPerSecond optionally throttles fetches site-wide. Zero means
	// no throttle.
	RequestsPerSecond float64
}

// Crawler discovers pages by breadth-first traversal of same-origin anchors.
type Crawler struct {
	userAgent string
	logger    *zap.Logger
}

// New builds a Crawler. A nil logger is replaced with a nop logger.
func New(userAgent string, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{userAgent: userAgent, logger: logger}
}

// Crawl fetches up to opts.MaxPages same-origin pages starting from baseURL
// and returns the normalized URLs of those that answered with HTML. Fetch
// failures and off-origin or non-HTTP links are skipped.
func (c *Crawler) Crawl(ctx context.Context, baseURL string, opts Options) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if opts.MaxPages <= 0 {
		return nil, fmt.Errorf("max pages must be positive, got %d", opts.MaxPages)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	normOpts := urlnorm.Options{
		StripQuery:           true,
		AllowedQueryPatterns: opts.IncludeQueryPatterns,
	}

	collector := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.AllowedDomains(base.Hostname()),
		colly.Async(true),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(requestTimeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: concurrency,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	var (
		mu       sync.Mutex
		fetched  int
		emitted  []string
		emitSeen = make(map[string]bool)
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		if fetched >= opts.MaxPages {
			mu.Unlock()
			r.Abort()
			return
		}
		fetched++
		mu.Unlock()

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				r.Abort()
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if !strings.Contains(contentType, "text/html") {
			return
		}
		normalized := urlnorm.Normalize(r.Request.URL.String(), normOpts)
		mu.Lock()
		if !emitSeen[normalized] {
			emitSeen[normalized] = true
			emitted = append(emitted, normalized)
		}
		mu.Unlock()
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		u, parseErr := url.Parse(link)
		if parseErr != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		if u.Host != base.Host {
			return
		}
		normalized := urlnorm.Normalize(link, normOpts)
		// Visit dedupes already-visited and already-queued URLs internally.
		if visitErr := collector.Visit(normalized); visitErr != nil {
			c.logger.Debug("enqueue link skipped",
				zap.String("url", normalized), zap.Error(visitErr))
		}
	})

	collector.OnError(func(r *colly.Response, fetchErr error) {
		c.logger.Warn("crawl fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(fetchErr))
	})

	seed := urlnorm.Normalize(baseURL, normOpts)
	if err := collector.Visit(seed); err != nil {
		return nil, fmt.Errorf("visit seed: %w", err)
	}
	collector.Wait()

	return emitted, nil
}

package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/audit"
)

// Config controls the headless analyzer.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means unlimited.
	MaxParallel int
	// NavigationTimeout bounds one page audit end to end.
	NavigationTimeout time.Duration
	UserAgent         string
}

// Viewport presets per form factor, matching common device profiles.
var formFactorMetrics = map[audit.FormFactor]struct {
	width, height int64
	scale         float64
	mobile        bool
}{
	audit.FormFactorMobile:  {width: 412, height: 823, scale: 2.625, mobile: true},
	audit.FormFactorDesktop: {width: 1350, height: 940, scale: 1, mobile: false},
}

// Chromedp audits pages with headless Chrome. One allocator is shared; each
// audit runs in its own tab context.
type Chromedp struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates the analyzer. The browser itself is launched lazily on
// the first audit.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close tears down the allocator and every browser it spawned.
func (a *Chromedp) Close() {
	a.allocCancel()
}

// Analyze navigates the page under the requested form factor, measures load
// and DOM signals, and returns scores plus report blobs. All failures wrap
// ErrAnalyzerFailed.
func (a *Chromedp) Analyze(ctx context.Context, url string, ff audit.FormFactor) (Result, error) {
	metrics, ok := formFactorMetrics[ff]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown form factor %q", ErrAnalyzerFailed, ff)
	}
	if err := a.acquire(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAnalyzerFailed, err)
	}
	defer a.release()

	tabCtx, cancelTab := chromedp.NewContext(a.allocator)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, a.cfg.NavigationTimeout)
	defer cancelTask()

	obs := newLoadObserver()
	chromedp.ListenTarget(taskCtx, obs.captureEvent)

	var (
		dom      DOMFacts
		finalURL string
	)
	start := time.Now()
	actions := []chromedp.Action{
		a.setupAction(metrics.width, metrics.height, metrics.scale, metrics.mobile),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(domFactsScript, &dom),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return Result{}, fmt.Errorf("%w: chromedp run: %v", ErrAnalyzerFailed, err)
	}
	loadTime := time.Since(start)

	status, bytes, requests, failed, insecure, consoleErrs := obs.snapshot()
	if finalURL == "" {
		finalURL = url
	}
	facts := PageFacts{
		URL:              url,
		FinalURL:         finalURL,
		StatusCode:       status,
		Secure:           strings.HasPrefix(finalURL, "https://"),
		LoadTimeMs:       loadTime.Milliseconds(),
		TransferredBytes: bytes,
		RequestCount:     requests,
		FailedRequests:   failed,
		InsecureRequests: insecure,
		ConsoleErrors:    consoleErrs,
		DOM:              dom,
	}
	scores := Score(facts)

	reportJSON, reportHTML, err := buildReports(url, ff, facts, scores, time.Now())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAnalyzerFailed, err)
	}
	a.logger.Debug("page analyzed",
		zap.String("url", url),
		zap.String("form_factor", string(ff)),
		zap.Int64("load_ms", facts.LoadTimeMs),
		zap.Int("status", facts.StatusCode),
	)
	return Result{
		Scores:         scores,
		FinalURL:       finalURL,
		StatusCode:     facts.StatusCode,
		ResponseTimeMs: facts.LoadTimeMs,
		ReportJSON:     reportJSON,
		ReportHTML:     reportHTML,
	}, nil
}

func (a *Chromedp) setupAction(width, height int64, scale float64, mobile bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if a.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(a.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(width, height, scale, mobile).Do(ctx); err != nil {
			return fmt.Errorf("set device metrics: %w", err)
		}
		return nil
	})
}

func (a *Chromedp) acquire(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	select {
	case a.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analyzer slot wait canceled: %w", ctx.Err())
	}
}

func (a *Chromedp) release() {
	if a.limiter == nil {
		return
	}
	select {
	case <-a.limiter:
	default:
	}
}

// loadObserver accumulates network and runtime events for one page load.
type loadObserver struct {
	mu            sync.Mutex
	status        int
	bytes         int64
	requests      int
	failed        int
	insecure      int
	consoleErrors int
}

func newLoadObserver() *loadObserver {
	return &loadObserver{}
}

func (o *loadObserver) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		o.mu.Lock()
		o.requests++
		if e.Request != nil && strings.HasPrefix(e.Request.URL, "http://") {
			o.insecure++
		}
		o.mu.Unlock()
	case *network.EventResponseReceived:
		if e.Type == network.ResourceTypeDocument && e.Response != nil {
			o.mu.Lock()
			o.status = int(e.Response.Status)
			o.mu.Unlock()
		}
	case *network.EventLoadingFinished:
		o.mu.Lock()
		o.bytes += int64(e.EncodedDataLength)
		o.mu.Unlock()
	case *network.EventLoadingFailed:
		o.mu.Lock()
		o.failed++
		o.mu.Unlock()
	case *runtime.EventExceptionThrown:
		o.mu.Lock()
		o.consoleErrors++
		o.mu.Unlock()
	}
}

func (o *loadObserver) snapshot() (status int, bytes int64, requests, failed, insecure, consoleErrors int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == 0 {
		o.status = 200
	}
	return o.status, o.bytes, o.requests, o.failed, o.insecure, o.consoleErrors
}

// domFactsScript runs inside the audited page and returns the DOM signals
// consumed by the scoring rubric.
const domFactsScript = `(() => {
  const imgs = Array.from(document.images);
  const links = Array.from(document.querySelectorAll('a[href]'));
  const inputs = Array.from(document.querySelectorAll('input:not([type=hidden]), select, textarea'));
  const labelled = el => (el.labels && el.labels.length > 0)
    || el.hasAttribute('aria-label')
    || el.hasAttribute('aria-labelledby')
    || el.hasAttribute('title');
  const metaDesc = document.querySelector('meta[name="description"]');
  const robots = document.querySelector('meta[name="robots"]');
  return {
    title: document.title || '',
    metaDescription: metaDesc ? (metaDesc.getAttribute('content') || '') : '',
    lang: document.documentElement.getAttribute('lang') || '',
    hasViewportMeta: !!document.querySelector('meta[name="viewport"]'),
    hasDoctype: !!document.doctype,
    h1Count: document.querySelectorAll('h1').length,
    imageCount: imgs.length,
    imagesMissingAlt: imgs.filter(i => !i.hasAttribute('alt')).length,
    linkCount: links.length,
    emptyTextLinks: links.filter(a => !(a.textContent || '').trim() && !a.hasAttribute('aria-label')).length,
    inputCount: inputs.length,
    inputsMissingLabel: inputs.filter(el => !labelled(el)).length,
    noIndex: !!(robots && /noindex/i.test(robots.getAttribute('content') || '')),
  };
})()`

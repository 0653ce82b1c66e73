package run

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sitepulse/sitepulse/internal/analyzer"
	"github.com/sitepulse/sitepulse/internal/audit"
	"github.com/sitepulse/sitepulse/internal/discovery/crawl"
	"github.com/sitepulse/sitepulse/internal/discovery/dist"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/urlnorm"
)

// SitemapSource discovers page URLs from a site's sitemaps.
type SitemapSource interface {
	Discover(ctx context.Context, baseURL string) ([]string, error)
}

// CrawlSource discovers page URLs by following same-origin links.
type CrawlSource interface {
	Crawl(ctx context.Context, baseURL string, opts crawl.Options) ([]string, error)
}

// Deps are the collaborators a Runner needs. Analyzer is required; Sitemap
// and Crawl may be nil when the run uses static discovery.
type Deps struct {
	Analyzer analyzer.Analyzer
	Sitemap  SitemapSource
	Crawl    CrawlSource
	Logger   *zap.Logger
	Now      func() time.Time
}

// Runner executes one audit run: discovery, bounded page audits, state
// transitions, events and on-disk artifacts. A Runner is single-use; Start
// may be called once.
type Runner struct {
	deps   Deps
	opts   audit.RunOptions
	runDir string
	events *Events
	logger *zap.Logger

	include []*regexp.Regexp
	exclude []*regexp.Regexp

	mu         sync.Mutex
	meta       audit.RunMeta
	pages      map[string]*audit.PageAuditResult
	order      []string
	sumMobile  audit.Scores
	sumDesktop audit.Scores
	upCount    int
}

// NewRunner validates opts, assigns the run its identifier and prepares the
// in-memory state. Nothing touches the disk until Start.
func NewRunner(runsDir string, opts audit.RunOptions, deps Deps) (*Runner, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute http(s): %q", opts.BaseURL)
	}
	if opts.MaxPages <= 0 {
		return nil, fmt.Errorf("max pages must be > 0, got %d", opts.MaxPages)
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0, got %d", opts.Concurrency)
	}
	if opts.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests per second must be >= 0, got %g", opts.RequestsPerSecond)
	}
	if opts.DistDir != "" && !filepath.IsAbs(opts.DistDir) {
		return nil, fmt.Errorf("dist dir must be an absolute path: %q", opts.DistDir)
	}
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	include, err := compileFilters(opts.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	exclude, err := compileFilters(opts.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	createdAt := deps.Now().UTC()
	id := audit.NewRunID(createdAt)
	r := &Runner{
		deps:    deps,
		opts:    opts,
		runDir:  filepath.Join(runsDir, id),
		events:  NewEvents(),
		logger:  deps.Logger.With(zap.String("run_id", id)),
		include: include,
		exclude: exclude,
		meta: audit.RunMeta{
			ID:        id,
			BaseURL:   opts.BaseURL,
			Status:    audit.RunStatusInitializing,
			CreatedAt: createdAt,
			Options:   opts,
		},
		pages: make(map[string]*audit.PageAuditResult),
	}
	return r, nil
}

// ID returns the run identifier, available before any I/O happens.
func (r *Runner) ID() string { return r.meta.ID }

// Dir returns the run's artifact directory.
func (r *Runner) Dir() string { return r.runDir }

// Events exposes the run's observer set for subscription.
func (r *Runner) Events() *Events { return r.events }

// Meta returns a snapshot of the current run record.
func (r *Runner) Meta() audit.RunMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metaSnapshotLocked()
}

// Start drives the run to a terminal state. It blocks until the run
// completes or fails and returns the run error, if any.
func (r *Runner) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(r.runDir, ReportsDirName), 0o755); err != nil {
		return r.fail(fmt.Errorf("create run directory: %w", err))
	}
	if err := r.persist(); err != nil {
		return r.fail(err)
	}
	metrics.ObserveRunStarted()
	r.logger.Info("run started",
		zap.String("base_url", r.opts.BaseURL),
		zap.Int("max_pages", r.opts.MaxPages),
		zap.Int("concurrency", r.opts.Concurrency),
	)

	r.setStatus(audit.RunStatusDiscovering)
	if err := r.discover(ctx); err != nil {
		return r.fail(err)
	}

	r.setStatus(audit.RunStatusAuditing)
	queued := r.queuedURLs()
	r.logger.Info("auditing pages", zap.Int("pages", len(queued)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, pageURL := range queued {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.auditPage(gctx, pageURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r.fail(fmt.Errorf("run canceled: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return r.fail(fmt.Errorf("run canceled: %w", err))
	}

	return r.complete()
}

// discover registers URLs from the configured sources: the static dist scan
// when set, otherwise sitemaps followed by a crawl. Both network sources
// always run; a source failing is logged and the run proceeds with whatever
// the others found.
func (r *Runner) discover(ctx context.Context) error {
	if r.opts.DistDir != "" {
		urls, err := dist.Scan(r.opts.DistDir, r.opts.BaseURL)
		if err != nil {
			return fmt.Errorf("scan dist dir: %w", err)
		}
		for _, u := range urls {
			r.registerURL(u, audit.SourceDist)
		}
		return nil
	}

	if r.deps.Sitemap != nil {
		urls, err := r.deps.Sitemap.Discover(ctx, r.opts.BaseURL)
		if err != nil {
			r.logger.Warn("sitemap discovery failed", zap.Error(err))
		}
		for _, u := range urls {
			r.registerURL(u, audit.SourceSitemap)
		}
	}

	if r.deps.Crawl != nil {
		urls, err := r.deps.Crawl.Crawl(ctx, r.opts.BaseURL, crawl.Options{
			MaxPages:             r.opts.MaxPages,
			Concurrency:          r.opts.Concurrency,
			IncludeQueryPatterns: r.opts.IncludeQueryPatterns,
			RequestsPerSecond:    r.opts.RequestsPerSecond,
		})
		if err != nil {
			r.logger.Warn("crawl discovery failed", zap.Error(err))
		}
		for _, u := range urls {
			r.registerURL(u, audit.SourceCrawl)
		}
	}
	return nil
}

// registerURL normalizes raw and adds it to the page table as queued. The
// first discovery source to report a URL wins; later reports are ignored.
// URLs rejected by the include/exclude filters, and URLs past the max-pages
// cap, are dropped so that totalDiscovered always equals the table size.
// Query strings stay as the source emitted them; stripping is a crawl-side
// policy applied before links reach this point.
func (r *Runner) registerURL(raw string, source audit.DiscoverySource) {
	normalized := urlnorm.Normalize(raw, urlnorm.Options{})

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pages[normalized]; ok {
		return
	}
	if !r.matchesFilters(normalized) || len(r.pages) >= r.opts.MaxPages {
		return
	}
	r.pages[normalized] = &audit.PageAuditResult{
		URL:            normalized,
		Status:         audit.PageStatusQueued,
		DiscoveredFrom: source,
	}
	r.order = append(r.order, normalized)
	r.meta.Stats.TotalDiscovered = len(r.pages)
}

func (r *Runner) matchesFilters(u string) bool {
	if len(r.include) > 0 {
		found := false
		for _, re := range r.include {
			if re.MatchString(u) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, re := range r.exclude {
		if re.MatchString(u) {
			return false
		}
	}
	return true
}

func (r *Runner) queuedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// auditPage runs both form factors for one page, writes its reports and
// folds the outcome into the run state. Page failures never abort the run.
func (r *Runner) auditPage(ctx context.Context, pageURL string) {
	r.setPageStatus(pageURL, audit.PageStatusRunning)
	start := r.deps.Now()

	parsed, err := url.Parse(pageURL)
	slugPath := pageURL
	if err == nil {
		slugPath = parsed.Path
	}
	slug := audit.PathSlug(slugPath) + "_" + audit.RandomSuffix(audit.SuffixLength)
	pageDir := filepath.Join(r.runDir, ReportsDirName, slug)

	mobile, mobileErr := r.deps.Analyzer.Analyze(ctx, pageURL, audit.FormFactorMobile)
	var desktop analyzer.Result
	var desktopErr error
	if mobileErr == nil {
		desktop, desktopErr = r.deps.Analyzer.Analyze(ctx, pageURL, audit.FormFactorDesktop)
	}
	elapsed := r.deps.Now().Sub(start)

	if mobileErr != nil || desktopErr != nil {
		auditErr := mobileErr
		if auditErr == nil {
			auditErr = desktopErr
		}
		r.logger.Warn("page audit failed", zap.String("url", pageURL), zap.Error(auditErr))
		r.recordPageFailure(pageURL, auditErr)
		metrics.ObservePageAudited(string(audit.PageStatusError), elapsed)
		return
	}

	mobileRes, err := writeReports(pageDir, audit.FormFactorMobile, mobile)
	if err == nil {
		var desktopRes *audit.FormFactorResult
		desktopRes, err = writeReports(pageDir, audit.FormFactorDesktop, desktop)
		if err == nil {
			r.recordPageSuccess(pageURL, mobile, desktop, mobileRes, desktopRes)
			metrics.ObservePageAudited(string(audit.PageStatusUp), elapsed)
			return
		}
	}
	r.logger.Warn("persist reports failed", zap.String("url", pageURL), zap.Error(err))
	r.recordPageFailure(pageURL, err)
	metrics.ObservePageAudited(string(audit.PageStatusError), elapsed)
}

// writeReports persists one form factor's report pair and returns the
// result with paths relative to the run directory.
func writeReports(pageDir string, ff audit.FormFactor, res analyzer.Result) (*audit.FormFactorResult, error) {
	if err := os.MkdirAll(pageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	jsonPath := filepath.Join(pageDir, string(ff)+".json")
	htmlPath := filepath.Join(pageDir, string(ff)+".html")
	if err := os.WriteFile(jsonPath, res.ReportJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write %s report: %w", ff, err)
	}
	if err := os.WriteFile(htmlPath, res.ReportHTML, 0o644); err != nil {
		return nil, fmt.Errorf("write %s report: %w", ff, err)
	}
	slug := filepath.Base(pageDir)
	return &audit.FormFactorResult{
		Scores:     res.Scores,
		ReportPath: filepath.Join(ReportsDirName, slug, string(ff)+".json"),
		HTMLPath:   filepath.Join(ReportsDirName, slug, string(ff)+".html"),
	}, nil
}

func (r *Runner) recordPageSuccess(pageURL string, mobile, desktop analyzer.Result, mobileRes, desktopRes *audit.FormFactorResult) {
	r.mu.Lock()
	page := r.pages[pageURL]
	page.Status = audit.PageStatusUp
	page.FinalURL = mobile.FinalURL
	page.StatusCode = mobile.StatusCode
	page.ResponseTimeMs = mobile.ResponseTimeMs
	page.Mobile = mobileRes
	page.Desktop = desktopRes

	r.upCount++
	r.sumMobile.Add(mobile.Scores)
	r.sumDesktop.Add(desktop.Scores)
	r.meta.Stats.TotalCompleted++
	r.meta.Stats.AvgMobileScores = r.sumMobile.DividedBy(r.upCount)
	r.meta.Stats.AvgDesktopScores = r.sumDesktop.DividedBy(r.upCount)
	snapshot := r.metaSnapshotLocked()
	err := r.persistLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("persist run meta", zap.Error(err))
	}
	r.events.emit(EventProgress, snapshot)
}

func (r *Runner) recordPageFailure(pageURL string, auditErr error) {
	r.mu.Lock()
	page := r.pages[pageURL]
	page.Status = audit.PageStatusError
	if auditErr != nil {
		page.Error = auditErr.Error()
	}
	r.meta.Stats.TotalFailed++
	snapshot := r.metaSnapshotLocked()
	err := r.persistLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("persist run meta", zap.Error(err))
	}
	r.events.emit(EventProgress, snapshot)
}

func (r *Runner) setPageStatus(pageURL string, status audit.PageStatus) {
	r.mu.Lock()
	r.pages[pageURL].Status = status
	r.mu.Unlock()
}

// setStatus records a lifecycle transition, persists it and notifies
// status subscribers.
func (r *Runner) setStatus(status audit.RunStatus) {
	r.mu.Lock()
	r.meta.Status = status
	err := r.persistLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("persist run meta", zap.Error(err))
	}
	r.events.emit(EventStatus, status)
}

// complete finalizes a successful run: summary.json, terminal meta, and the
// completed event carrying the full summary. The summary lands on disk
// before the meta reports completed, so anyone observing the terminal
// status can read it.
func (r *Runner) complete() error {
	r.mu.Lock()
	now := r.deps.Now().UTC()
	summaryMeta := r.metaSnapshotLocked()
	summaryMeta.Status = audit.RunStatusCompleted
	summaryMeta.CompletedAt = &now
	summary := audit.RunSummary{
		RunMeta: summaryMeta,
		Pages:   r.pagesSnapshotLocked(),
	}
	r.mu.Unlock()

	if err := writeJSONAtomic(filepath.Join(r.runDir, SummaryFileName), summary); err != nil {
		r.logger.Error("write summary", zap.Error(err))
	}

	r.mu.Lock()
	r.meta.Status = audit.RunStatusCompleted
	r.meta.CompletedAt = &now
	err := r.persistLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("persist run meta", zap.Error(err))
	}
	metrics.ObserveRunFinished(string(audit.RunStatusCompleted))
	r.logger.Info("run completed",
		zap.Int("completed", summary.Stats.TotalCompleted),
		zap.Int("failed", summary.Stats.TotalFailed),
	)

	r.events.emit(EventStatus, audit.RunStatusCompleted)
	r.events.emit(EventCompleted, summary)
	return nil
}

// fail moves the run to its failed terminal state and reports runErr both
// through the error event and as the return value of Start.
func (r *Runner) fail(runErr error) error {
	r.mu.Lock()
	now := r.deps.Now().UTC()
	r.meta.Status = audit.RunStatusFailed
	r.meta.CompletedAt = &now
	r.meta.Error = runErr.Error()
	err := r.persistLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("persist run meta", zap.Error(err))
	}
	metrics.ObserveRunFinished(string(audit.RunStatusFailed))
	r.logger.Error("run failed", zap.Error(runErr))

	r.events.emit(EventStatus, audit.RunStatusFailed)
	r.events.emit(EventError, runErr)
	return runErr
}

func (r *Runner) persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked()
}

func (r *Runner) persistLocked() error {
	return writeJSONAtomic(filepath.Join(r.runDir, MetaFileName), r.meta)
}

// metaSnapshotLocked deep-copies the run record so event handlers may
// retain it. Caller holds r.mu.
func (r *Runner) metaSnapshotLocked() audit.RunMeta {
	meta := r.meta
	if meta.CompletedAt != nil {
		t := *meta.CompletedAt
		meta.CompletedAt = &t
	}
	meta.Options.IncludePatterns = append([]string(nil), meta.Options.IncludePatterns...)
	meta.Options.ExcludePatterns = append([]string(nil), meta.Options.ExcludePatterns...)
	meta.Options.IncludeQueryPatterns = append([]string(nil), meta.Options.IncludeQueryPatterns...)
	return meta
}

// pagesSnapshotLocked copies the page table in registration order.
// Caller holds r.mu.
func (r *Runner) pagesSnapshotLocked() []audit.PageAuditResult {
	pages := make([]audit.PageAuditResult, 0, len(r.order))
	for _, u := range r.order {
		page := *r.pages[u]
		if page.Mobile != nil {
			m := *page.Mobile
			page.Mobile = &m
		}
		if page.Desktop != nil {
			d := *page.Desktop
			page.Desktop = &d
		}
		pages = append(pages, page)
	}
	return pages
}

func compileFilters(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// Package audit defines the core types shared across subsystems.
package audit

import "time"

// RunStatus represents the lifecycle state of an audit run.
type RunStatus string

// Run status values persisted in run.meta.json. Transitions are monotone:
// initializing -> discovering -> auditing -> completed | failed.
const (
	RunStatusInitializing RunStatus = "initializing"
	RunStatusDiscovering  RunStatus = "discovering"
	RunStatusAuditing     RunStatus = "auditing"
	RunStatusCompleted    RunStatus = "completed"
	RunStatusFailed       RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// PageStatus is the per-page audit outcome.
type PageStatus string

// Page status values. A page moves queued -> running -> up | error; down is
// reserved for pages whose probe never answered. URLs rejected by the
// include/exclude filters are never registered at all.
const (
	PageStatusQueued  PageStatus = "queued"
	PageStatusRunning PageStatus = "running"
	PageStatusUp      PageStatus = "up"
	PageStatusDown    PageStatus = "down"
	PageStatusError   PageStatus = "error"
)

// Terminal reports whether the page reached a final outcome.
func (s PageStatus) Terminal() bool {
	return s == PageStatusUp || s == PageStatusDown || s == PageStatusError
}

// DiscoverySource identifies which discovery mechanism produced a URL.
type DiscoverySource string

// Supported discovery sources.
const (
	SourceSitemap DiscoverySource = "sitemap"
	SourceCrawl   DiscoverySource = "crawl"
	SourceDist    DiscoverySource = "dist"
	SourceManual  DiscoverySource = "manual"
)

// FormFactor is the device profile the analyzer emulates.
type FormFactor string

// Supported form factors.
const (
	FormFactorMobile  FormFactor = "mobile"
	FormFactorDesktop FormFactor = "desktop"
)

// Scores holds the four audit category scores, each in [0,1].
type Scores struct {
	Performance   float64 `json:"performance"`
	Accessibility float64 `json:"accessibility"`
	BestPractices float64 `json:"bestPractices"`
	SEO           float64 `json:"seo"`
}

// Add accumulates other into s in place.
func (s *Scores) Add(other Scores) {
	s.Performance += other.Performance
	s.Accessibility += other.Accessibility
	s.BestPractices += other.BestPractices
	s.SEO += other.SEO
}

// DividedBy returns the per-category quotient, or zero scores when n == 0.
func (s Scores) DividedBy(n int) Scores {
	if n <= 0 {
		return Scores{}
	}
	d := float64(n)
	return Scores{
		Performance:   s.Performance / d,
		Accessibility: s.Accessibility / d,
		BestPractices: s.BestPractices / d,
		SEO:           s.SEO / d,
	}
}

// FormFactorResult captures one form factor's scores and report locations.
// Paths are relative to the run directory.
type FormFactorResult struct {
	Scores     Scores `json:"scores"`
	ReportPath string `json:"reportPath"`
	HTMLPath   string `json:"htmlPath"`
}

// PageAuditResult is the per-page record kept in the run's page table and
// serialized into summary.json.
type PageAuditResult struct {
	URL            string            `json:"url"`
	FinalURL       string            `json:"finalUrl,omitempty"`
	Status         PageStatus        `json:"status"`
	StatusCode     int               `json:"statusCode,omitempty"`
	Error          string            `json:"error,omitempty"`
	ResponseTimeMs int64             `json:"responseTimeMs,omitempty"`
	DiscoveredFrom DiscoverySource   `json:"discoveredFrom"`
	Mobile         *FormFactorResult `json:"mobile,omitempty"`
	Desktop        *FormFactorResult `json:"desktop,omitempty"`
}

// RunStats tracks incremental counters for a run. Averages are the
// arithmetic mean over pages that completed with status up.
type RunStats struct {
	TotalDiscovered  int    `json:"totalDiscovered"`
	TotalCompleted   int    `json:"totalCompleted"`
	TotalFailed      int    `json:"totalFailed"`
	AvgMobileScores  Scores `json:"avgMobileScores"`
	AvgDesktopScores Scores `json:"avgDesktopScores"`
}

// RunOptions captures per-run configuration. It is frozen for the run's
// lifetime once the runner is constructed.
type RunOptions struct {
	BaseURL     string `json:"baseUrl"`
	MaxPages    int    `json:"maxPages"`
	Concurrency int    `json:"concurrency"`
	// IncludePatterns and ExcludePatterns are regex fragments matched
	// unanchored against the normalized URL. A URL is registered only if it
	// matches some include pattern (or the include set is empty) and matches
	// no exclude pattern.
	IncludePatterns []string `json:"includePatterns"`
	ExcludePatterns []string `json:"excludePatterns"`
	// IncludeQueryPatterns are full-match regexes on query parameter names
	// retained during crawl-time normalization.
	IncludeQueryPatterns []string `json:"includeQueryPatterns"`
	// RequestsPerSecond throttles crawl-discovery fetches site-wide.
	// Zero disables the throttle.
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty"`
	RenderJS          bool    `json:"renderJs"`
	ForceAuditNonHTML bool    `json:"forceAuditNonHtml"`
	// DistDir selects static-discovery mode and suppresses network
	// discovery when non-empty. Must be an absolute path.
	DistDir string `json:"distDir,omitempty"`
}

// RunMeta is the run record rewritten to run.meta.json on every transition.
type RunMeta struct {
	ID          string     `json:"id"`
	BaseURL     string     `json:"baseUrl"`
	Status      RunStatus  `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Options     RunOptions `json:"options"`
	Stats       RunStats   `json:"stats"`
	Error       string     `json:"error,omitempty"`
}

// RunSummary is RunMeta plus the full page table, written once on completion.
type RunSummary struct {
	RunMeta
	Pages []PageAuditResult `json:"pages"`
}

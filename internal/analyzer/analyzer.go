// Package analyzer audits a single page with a headless browser and scores
// it on four axes: performance, accessibility, best practices and SEO.
package analyzer

import (
	"context"
	"errors"

	"github.com/sitepulse/sitepulse/internal/audit"
)

// ErrAnalyzerFailed wraps every analyzer failure mode: network errors,
// browser launch failures, navigation timeouts, or a page that produced no
// measurable result.
var ErrAnalyzerFailed = errors.New("analyzer failed")

// Result is a completed single-page audit for one form factor. The report
// blobs are persisted verbatim by the orchestrator.
type Result struct {
	Scores         audit.Scores
	FinalURL       string
	StatusCode     int
	ResponseTimeMs int64
	ReportJSON     []byte
	ReportHTML     []byte
}

// Analyzer runs a page audit for one form factor.
type Analyzer interface {
	Analyze(ctx context.Context, url string, formFactor audit.FormFactor) (Result, error)
}

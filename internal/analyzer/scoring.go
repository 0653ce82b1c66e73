package analyzer

import "github.com/sitepulse/sitepulse/internal/audit"

// DOMFacts are collected by a script evaluated in the audited page.
type DOMFacts struct {
	Title              string `json:"title"`
	MetaDescription    string `json:"metaDescription"`
	Lang               string `json:"lang"`
	HasViewportMeta    bool   `json:"hasViewportMeta"`
	HasDoctype         bool   `json:"hasDoctype"`
	H1Count            int    `json:"h1Count"`
	ImageCount         int    `json:"imageCount"`
	ImagesMissingAlt   int    `json:"imagesMissingAlt"`
	LinkCount          int    `json:"linkCount"`
	EmptyTextLinks     int    `json:"emptyTextLinks"`
	InputCount         int    `json:"inputCount"`
	InputsMissingLabel int    `json:"inputsMissingLabel"`
	NoIndex            bool   `json:"noIndex"`
}

// PageFacts combines DOM signals with what the network and runtime layers
// observed while the page loaded.
type PageFacts struct {
	URL              string   `json:"url"`
	FinalURL         string   `json:"finalUrl"`
	StatusCode       int      `json:"statusCode"`
	Secure           bool     `json:"secure"`
	LoadTimeMs       int64    `json:"loadTimeMs"`
	TransferredBytes int64    `json:"transferredBytes"`
	RequestCount     int      `json:"requestCount"`
	FailedRequests   int      `json:"failedRequests"`
	InsecureRequests int      `json:"insecureRequests"`
	ConsoleErrors    int      `json:"consoleErrors"`
	DOM              DOMFacts `json:"dom"`
}

// Scoring thresholds. Each axis degrades linearly between its best and worst
// bound and is clamped to [0,1].
const (
	bestLoadTimeMs  = 1_000
	worstLoadTimeMs = 10_000
	bestPageBytes   = 512 << 10
	worstPageBytes  = 8 << 20
	bestRequests    = 25
	worstRequests   = 150
	maxTitleLength  = 60
)

// Score maps measured page facts onto the four category scores. The rubric
// is deterministic: the same facts always produce the same scores.
func Score(f PageFacts) audit.Scores {
	return audit.Scores{
		Performance:   performanceScore(f),
		Accessibility: accessibilityScore(f.DOM),
		BestPractices: bestPracticesScore(f),
		SEO:           seoScore(f.DOM),
	}
}

func performanceScore(f PageFacts) float64 {
	timeScore := linear(float64(f.LoadTimeMs), bestLoadTimeMs, worstLoadTimeMs)
	weightScore := linear(float64(f.TransferredBytes), bestPageBytes, worstPageBytes)
	requestScore := linear(float64(f.RequestCount), bestRequests, worstRequests)
	return clamp01(0.5*timeScore + 0.3*weightScore + 0.2*requestScore)
}

func accessibilityScore(d DOMFacts) float64 {
	score := 1.0
	if d.Lang == "" {
		score -= 0.25
	}
	if d.Title == "" {
		score -= 0.15
	}
	score -= 0.4 * ratio(d.ImagesMissingAlt, d.ImageCount)
	score -= 0.2 * ratio(d.InputsMissingLabel, d.InputCount)
	return clamp01(score)
}

func bestPracticesScore(f PageFacts) float64 {
	score := 1.0
	if !f.DOM.HasDoctype {
		score -= 0.2
	}
	score -= min(0.4, 0.1*float64(f.ConsoleErrors))
	score -= min(0.3, 0.1*float64(f.FailedRequests))
	if f.Secure && f.InsecureRequests > 0 {
		score -= 0.3
	}
	return clamp01(score)
}

func seoScore(d DOMFacts) float64 {
	score := 1.0
	switch {
	case d.Title == "":
		score -= 0.2
	case len(d.Title) > maxTitleLength:
		score -= 0.1
	}
	if d.MetaDescription == "" {
		score -= 0.2
	}
	if !d.HasViewportMeta {
		score -= 0.15
	}
	if d.H1Count != 1 {
		score -= 0.15
	}
	if d.NoIndex {
		score -= 0.5
	}
	score -= 0.1 * ratio(d.EmptyTextLinks, d.LinkCount)
	return clamp01(score)
}

// linear maps value onto [0,1]: 1 at or below best, 0 at or above worst.
func linear(value, best, worst float64) float64 {
	if value <= best {
		return 1
	}
	if value >= worst {
		return 0
	}
	return (worst - value) / (worst - best)
}

func ratio(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

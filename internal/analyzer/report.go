package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/sitepulse/sitepulse/internal/audit"
)

// report is the JSON report payload persisted next to each audited page.
type report struct {
	URL         string           `json:"url"`
	FormFactor  audit.FormFactor `json:"formFactor"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Scores      audit.Scores     `json:"scores"`
	Facts       PageFacts        `json:"facts"`
}

var htmlReportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Audit report: {{.URL}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a2e; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: left; }
.score { font-variant-numeric: tabular-nums; }
</style>
</head>
<body>
<h1>{{.URL}}</h1>
<p>Form factor: {{.FormFactor}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
<table>
<tr><th>Category</th><th>Score</th></tr>
<tr><td>Performance</td><td class="score">{{printf "%.2f" .Scores.Performance}}</td></tr>
<tr><td>Accessibility</td><td class="score">{{printf "%.2f" .Scores.Accessibility}}</td></tr>
<tr><td>Best practices</td><td class="score">{{printf "%.2f" .Scores.BestPractices}}</td></tr>
<tr><td>SEO</td><td class="score">{{printf "%.2f" .Scores.SEO}}</td></tr>
</table>
<table>
<tr><th>Signal</th><th>Value</th></tr>
<tr><td>Status code</td><td>{{.Facts.StatusCode}}</td></tr>
<tr><td>Load time (ms)</td><td>{{.Facts.LoadTimeMs}}</td></tr>
<tr><td>Transferred bytes</td><td>{{.Facts.TransferredBytes}}</td></tr>
<tr><td>Requests</td><td>{{.Facts.RequestCount}}</td></tr>
<tr><td>Failed requests</td><td>{{.Facts.FailedRequests}}</td></tr>
<tr><td>Console errors</td><td>{{.Facts.ConsoleErrors}}</td></tr>
<tr><td>Title</td><td>{{.Facts.DOM.Title}}</td></tr>
<tr><td>Images missing alt</td><td>{{.Facts.DOM.ImagesMissingAlt}} / {{.Facts.DOM.ImageCount}}</td></tr>
<tr><td>H1 count</td><td>{{.Facts.DOM.H1Count}}</td></tr>
</table>
</body>
</html>
`))

func buildReports(url string, ff audit.FormFactor, facts PageFacts, scores audit.Scores, now time.Time) ([]byte, []byte, error) {
	rep := report{
		URL:         url,
		FormFactor:  ff,
		GeneratedAt: now.UTC(),
		Scores:      scores,
		Facts:       facts,
	}
	jsonBlob, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal report: %w", err)
	}
	var htmlBuf bytes.Buffer
	if err := htmlReportTmpl.Execute(&htmlBuf, rep); err != nil {
		return nil, nil, fmt.Errorf("render report html: %w", err)
	}
	return jsonBlob, htmlBuf.Bytes(), nil
}

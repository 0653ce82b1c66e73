// Package main hosts the sitepulse service entrypoint.
//
// Architecture overview:
//   - HTTP gateway: internal/gateway.Server exposes run creation, run
//     listing, per-run metadata and summaries, a WebSocket event stream per
//     run, and the static report files beneath the runs directory.
//   - Run pipeline: internal/run.Runner composes URL discovery (sitemap
//     tree walk, bounded same-origin crawl, or a static dist scan) with
//     bounded-concurrency page audits through the chromedp analyzer, and
//     persists run.meta.json after every transition plus a one-shot
//     summary.json on completion.
//   - Scheduling: internal/run.Queue caps how many runs execute at once;
//     enqueued runs are usable by id immediately and stream events while
//     live.
//   - Configuration & plumbing: Viper populates config from env/files
//     (SITEPULSE_ prefix); zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: per-run page concurrency is bounded by the run
//     options; browser tabs are additionally capped by the analyzer's own
//     semaphore. Shutdown is coordinated via context cancellation from main
//     through the queue to each runner.
//   - Run locally: go run ./cmd/sitepulse serve --config config.yaml, or
//     go run ./cmd/sitepulse audit --baseUrl https://example.com for a
//     one-shot audit without the server.
package main

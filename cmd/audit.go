package cmd

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/analyzer"
	"github.com/sitepulse/sitepulse/internal/audit"
	"github.com/sitepulse/sitepulse/internal/config"
	"github.com/sitepulse/sitepulse/internal/discovery/crawl"
	"github.com/sitepulse/sitepulse/internal/discovery/sitemap"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/run"
)

// newAuditCmd creates the 'audit' subcommand running one audit end to end.
func newAuditCmd() *cobra.Command {
	var (
		baseURL      string
		runsDir      string
		maxPages     int
		concurrency  int
		distDir      string
		includes     []string
		excludes     []string
		includeQuery []string
		rps          float64
		renderJS     bool
		forceNonHTML bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audits a website and writes reports to the runs directory",
		Long: `Discovers a site's pages, audits each one on mobile and desktop,
and writes scored reports plus run metadata beneath the runs directory.
The command blocks until the run reaches a terminal state and exits
non-zero when the run fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if runsDir == "" {
				runsDir = cfg.Runs.Dir
			}
			if maxPages <= 0 {
				maxPages = cfg.Audit.MaxPagesDefault
			}
			if concurrency <= 0 {
				concurrency = cfg.Audit.ConcurrencyDefault
			}
			if distDir != "" && !filepath.IsAbs(distDir) {
				if distDir, err = filepath.Abs(distDir); err != nil {
					return err
				}
			}
			if rps == 0 {
				rps = cfg.Audit.RequestsPerSecond
			}
			opts := audit.RunOptions{
				BaseURL:              baseURL,
				MaxPages:             maxPages,
				Concurrency:          concurrency,
				IncludePatterns:      includes,
				ExcludePatterns:      excludes,
				IncludeQueryPatterns: includeQuery,
				RequestsPerSecond:    rps,
				RenderJS:             renderJS,
				ForceAuditNonHTML:    forceNonHTML,
				DistDir:              distDir,
			}
			return runAudit(cmd.Context(), cfg, opts, runsDir, logger)
		},
	}

	cmd.Flags().StringVar(&baseURL, "baseUrl", "", "absolute base URL of the site to audit")
	cmd.Flags().StringVar(&runsDir, "runsDir", "", "directory for run artifacts (default from config)")
	cmd.Flags().IntVar(&maxPages, "maxPages", 0, "maximum number of pages to audit")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent page audits")
	cmd.Flags().StringVar(&distDir, "dist", "", "static output directory (suppresses network discovery)")
	cmd.Flags().StringSliceVar(&includes, "include", nil, "regex patterns a page URL must match")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "regex patterns that exclude page URLs")
	cmd.Flags().StringSliceVar(&includeQuery, "includeQuery", nil, "regex patterns for query parameters to keep")
	cmd.Flags().Float64Var(&rps, "requestsPerSecond", 0, "crawl request rate limit (default from config, 0 disables)")
	cmd.Flags().BoolVar(&renderJS, "renderJs", false, "render JavaScript during audits")
	cmd.Flags().BoolVar(&forceNonHTML, "forceAuditNonHtml", false, "audit URLs that do not look like HTML pages")
	_ = cmd.MarkFlagRequired("baseUrl")

	return cmd
}

func runAudit(parent context.Context, cfg config.Config, opts audit.RunOptions, runsDir string, logger *zap.Logger) error {
	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	browser, err := analyzer.NewChromedp(analyzer.Config{
		MaxParallel:       cfg.Analyzer.MaxParallel,
		NavigationTimeout: cfg.NavTimeout(),
		UserAgent:         cfg.Audit.UserAgent,
	}, logger.Named("analyzer"))
	if err != nil {
		return err
	}
	defer browser.Close()

	runner, err := run.NewRunner(runsDir, opts, run.Deps{
		Analyzer: browser,
		Sitemap:  sitemap.New(cfg.Audit.UserAgent, logger.Named("sitemap")),
		Crawl:    crawl.New(cfg.Audit.UserAgent, logger.Named("crawl")),
		Logger:   logger.Named("run"),
	})
	if err != nil {
		return err
	}

	runner.Events().On(run.EventProgress, func(p any) {
		meta, ok := p.(audit.RunMeta)
		if !ok {
			return
		}
		logger.Info("progress",
			zap.Int("completed", meta.Stats.TotalCompleted),
			zap.Int("failed", meta.Stats.TotalFailed),
			zap.Int("discovered", meta.Stats.TotalDiscovered),
		)
	})

	logger.Info("starting audit",
		zap.String("run_id", runner.ID()),
		zap.String("dir", runner.Dir()),
	)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	logger.Info("audit finished", zap.String("summary", filepath.Join(runner.Dir(), run.SummaryFileName)))
	return nil
}

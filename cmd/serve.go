package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/analyzer"
	"github.com/sitepulse/sitepulse/internal/audit"
	"github.com/sitepulse/sitepulse/internal/config"
	"github.com/sitepulse/sitepulse/internal/discovery/crawl"
	"github.com/sitepulse/sitepulse/internal/discovery/sitemap"
	"github.com/sitepulse/sitepulse/internal/gateway"
	"github.com/sitepulse/sitepulse/internal/metrics"
	"github.com/sitepulse/sitepulse/internal/run"
)

// newServeCmd creates the 'serve' subcommand hosting the HTTP gateway.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the audit HTTP server",
		Long: `Hosts the HTTP and WebSocket gateway: accepts audit runs, streams
their events, lists prior runs and serves report files from the runs
directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := run.NewRegistry(cfg.Runs.Dir, logger.Named("registry"))
	if err != nil {
		return err
	}
	queue := run.NewQueue(ctx, cfg.Runs.MaxConcurrentRuns, logger.Named("queue"))

	browser, err := analyzer.NewChromedp(analyzer.Config{
		MaxParallel:       cfg.Analyzer.MaxParallel,
		NavigationTimeout: cfg.NavTimeout(),
		UserAgent:         cfg.Audit.UserAgent,
	}, logger.Named("analyzer"))
	if err != nil {
		return fmt.Errorf("init analyzer: %w", err)
	}
	defer browser.Close()

	factory := func(opts audit.RunOptions) (*run.Runner, error) {
		if opts.RequestsPerSecond == 0 {
			opts.RequestsPerSecond = cfg.Audit.RequestsPerSecond
		}
		return run.NewRunner(cfg.Runs.Dir, opts, run.Deps{
			Analyzer: browser,
			Sitemap:  sitemap.New(cfg.Audit.UserAgent, logger.Named("sitemap")),
			Crawl:    crawl.New(cfg.Audit.UserAgent, logger.Named("crawl")),
			Logger:   logger.Named("run"),
		})
	}

	server := gateway.NewServer(registry, queue, factory, logger.Named("gateway"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
	return nil
}

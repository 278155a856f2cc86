package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/api"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/jobmanager"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/metrics"
)

var serveHTTP bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the crawl/archive worker process",
	Long: `worker consumes crawl jobs from the durable queue, drives each one through
its full lifecycle (spec §4.5), and runs periodic orphan reconciliation. It
blocks until interrupted (SIGINT/SIGTERM).`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&serveHTTP, "http", false,
		"also serve the core's HTTP surface (enqueue/cancel/SSE) on the configured address")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, cleanup, err := buildDeps(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	driver := jobmanager.NewDriver(jobmanager.Config{
		MaxDuration:             time.Duration(cfg.Crawl.MaxDurationMS) * time.Millisecond,
		ProgressPersistInterval: time.Duration(cfg.Crawl.ProgressPersistIntervalMS) * time.Millisecond,
		StatusCheckInterval:     time.Duration(cfg.Crawl.StatusCheckIntervalMS) * time.Millisecond,
		PageMaxRetries:          cfg.Crawl.PageMaxRetries,
		PageRetryDelay:          time.Duration(cfg.Crawl.PageRetryDelayMS) * time.Millisecond,
		MaxSiteConcurrency:      cfg.Crawl.MaxSiteConcurrency,
	}, jobmanager.Dependencies{
		Sites:     d.sites,
		Crawls:    d.crawls,
		CrawlLogs: d.logs,
		Settings:  d.settings,
		Storage:   d.store,
		Bus:       d.bus,
		Processor: d.processorFactory(),
		Log:       d.log,
		Metrics:   d.metrics,
	})

	reconciler := jobmanager.NewReconciler(d.crawls, d.queue,
		time.Duration(cfg.Worker.OrphanGraceMS)*time.Millisecond, d.log, d.metrics)

	manager := jobmanager.NewManager(jobmanager.ManagerConfig{
		CrawlConcurrency:     cfg.Worker.CrawlConcurrency,
		OrphanReconcileEvery: time.Duration(cfg.Worker.OrphanReconcileIntervalMS) * time.Millisecond,
	}, d.queue, driver, reconciler, d.log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start job manager: %w", err)
	}

	var httpServer *http.Server
	if serveHTTP {
		httpServer = buildHTTPServer(cfg.HTTP.Address, d)
		go func() {
			d.log.Info("serving HTTP surface", logger.String("address", cfg.HTTP.Address))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.log.Error("http server exited", logger.Error(err))
			}
		}()
	}

	<-ctx.Done()
	d.log.Info("shutdown signal received, draining")
	logMetricsSnapshot(d.log, d.metrics)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	return manager.Stop(shutdownCtx)
}

// logMetricsSnapshot emits one structured log line of every counter the
// worker accumulated this run (spec §12 "Metrics"). There is no scrape
// endpoint to poll these mid-run, so shutdown is the natural place to
// surface them.
func logMetricsSnapshot(log logger.Logger, reg *metrics.Registry) {
	snapshot := reg.Snapshot()
	fields := make([]logger.Field, 0, len(snapshot))
	for k, v := range snapshot {
		fields = append(fields, logger.Int64(k, v))
	}
	log.Info("worker metrics snapshot", fields...)
}

func buildHTTPServer(addr string, d *deps) *http.Server {
	crawlsHandler := api.NewCrawlsHandler(d.sites, d.crawls, d.queue, d.log)
	cancelHandler := api.NewCancelHandler(d.crawls, api.PathCrawlID, d.log)
	sseHandler := api.NewSSEHandler(d.bus, api.PathCrawlID, d.log)
	mux := api.NewRouter(crawlsHandler, cancelHandler, sseHandler)
	return &http.Server{Addr: addr, Handler: mux}
}

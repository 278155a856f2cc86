package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/browser"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/config"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/crawlexec"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/eventbus"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/jobmanager"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/metrics"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/pageproc"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/queue"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/storage"
)

// deps collects every collaborator the worker process and its subcommands
// wire together (spec §6 "Persistent stores", §4.1-§4.5). Grounded on the
// teacher's cmd/common.CommandDeps (one struct holding logger/config/storage
// built once and threaded into every subcommand).
type deps struct {
	log      logger.Logger
	db       *sqlx.DB
	store    storage.Adapter
	queue    queue.Queue
	bus      eventbus.Bus
	pool     *browser.Pool
	sites    *database.SiteRepository
	crawls   *database.CrawlRepository
	logs     *database.CrawlLogRepository
	settings *database.SettingsRepository
	metrics  *metrics.Registry
}

// buildDeps connects to every external collaborator a worker process
// needs. withBrowser controls whether a browser pool is started; the
// reconcile subcommand skips it since it never renders pages.
func buildDeps(cfg *config.Config, withBrowser bool) (*deps, func(), error) {
	log, err := logger.New(logger.Config{Level: cfg.Logger.Level, Development: cfg.Logger.Development})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.Connect(database.Config{
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store, err := storage.New(storage.Config{
		Endpoint:            cfg.Storage.Endpoint,
		AccessKeyID:         cfg.Storage.AccessKeyID,
		SecretAccessKey:     cfg.Storage.SecretAccessKey,
		Bucket:              cfg.Storage.Bucket,
		UseSSL:              cfg.Storage.UseSSL,
		TempDir:             cfg.Storage.TempDir,
		PartSizeBytes:       cfg.Storage.PartSizeBytes,
		PartAttempts:        cfg.Storage.PartAttempts,
		RetryBaseDelay:      cfg.Storage.RetryBaseDelay,
		BufferFallbackBytes: cfg.Storage.BufferFallbackBytes,
		PublicURLExpiry:     cfg.Storage.PublicURLExpiry,
	}, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("build storage adapter: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	consumer, err := os.Hostname()
	if err != nil || consumer == "" {
		consumer = uuid.NewString()
	}
	q, err := queue.NewRedis(context.Background(), redisClient, queue.Config{Consumer: consumer}, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("build queue: %w", err)
	}

	bus := eventbus.NewRedis(redisClient, log)

	var pool *browser.Pool
	if withBrowser {
		pool, err = browser.NewPool(browser.Config{
			Instances:      cfg.Browser.Instances,
			Headless:       cfg.Browser.Headless,
			DisableGPU:     cfg.Browser.DisableGPU,
			NoSandbox:      cfg.Browser.NoSandbox,
			UserAgent:      cfg.Browser.UserAgent,
			StartupTimeout: cfg.Browser.StartupTimeout,
			SitemapOnly:    cfg.Browser.SitemapOnly,
		}, log)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("start browser pool: %w", err)
		}
	}

	d := &deps{
		log:      log,
		db:       db,
		store:    store,
		queue:    q,
		bus:      bus,
		pool:     pool,
		sites:    database.NewSiteRepository(db),
		crawls:   database.NewCrawlRepository(db),
		logs:     database.NewCrawlLogRepository(db),
		settings: database.NewSettingsRepository(db),
		metrics:  metrics.NewRegistry(),
	}

	cleanup := func() {
		if pool != nil {
			pool.Close()
		}
		_ = log.Sync()
		_ = db.Close()
	}
	return d, cleanup, nil
}

// processorFactory builds the per-crawl Page Processor, wiring the shared
// Asset Downloader into both the static rewrite pipeline and (when a
// browser pool is running) the headless browser path (spec §4.3, §4.4
// "Asset Downloader contract").
func (d *deps) processorFactory() jobmanager.ProcessorFactory {
	return func(site *domain.Site, outputDir string, downloader *crawlexec.Downloader) crawlexec.PageProcessor {
		var renderer pageproc.BrowserRenderer
		if d.pool != nil {
			renderer = d.pool.Acquire().WithDownloader(downloader)
		}
		return pageproc.New(outputDir, site.RemoveBadge, downloader, renderer, d.log)
	}
}

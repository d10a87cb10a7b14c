package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/gebn/uno-usage-scraper/internal/config"
	"github.com/gebn/uno-usage-scraper/internal/logging"
	"github.com/gebn/uno-usage-scraper/internal/notify"
	"github.com/gebn/uno-usage-scraper/internal/observability"
	"github.com/gebn/uno-usage-scraper/internal/portal"
	"github.com/gebn/uno-usage-scraper/internal/scraper"
	"github.com/gebn/uno-usage-scraper/internal/store"
)

// version is stamped at build time.
var version = "dev"

func main() {
	once := flag.Bool("once", false, "run a single scrape and exit (for external schedulers)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New("uno-usage-scraper")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}

	portalClient, err := portal.NewClient(cfg.PortalBaseURL, version, logger)
	if err != nil {
		logger.Fatalf("init portal client: %v", err)
	}

	usageStore, err := store.New(ctx, logger, store.Config{
		Region: cfg.DynamoRegion,
		Table:  cfg.DynamoTable,
	})
	if err != nil {
		logger.Fatalf("init store: %v", err)
	}

	topicRegion, err := cfg.TopicRegion()
	if err != nil {
		logger.Fatalf("init notifier: %v", err)
	}
	notifier, err := notify.New(ctx, logger, notify.Config{
		Region:   topicRegion,
		TopicARN: cfg.TopicARN,
		AppToken: cfg.PushoverAppToken,
	})
	if err != nil {
		logger.Fatalf("init notifier: %v", err)
	}

	metrics := observability.NewMetrics(nil)
	obs := observability.Start(ctx, cfg.HTTPAddr, logger, metrics.Registry(), usageStore.Ready)
	defer obs.Stop(context.Background())

	runner := scraper.NewRunner(scraper.Config{
		ProductID:      cfg.ProductID,
		Cookie:         cfg.PortalCookie,
		CookieExpires:  cfg.CookieExpires,
		CookieWarnings: cfg.CookieWarnings,
		SendUsage:      cfg.SendUsage,
		Span:           cfg.ScrapeSpan,
	}, portalClient, usageStore, notifier, metrics, logger)

	run := func(expected time.Time) error {
		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
		now := time.Now()
		runner.CheckTimely(runCtx, expected, now)
		return runner.RunOnce(runCtx, now)
	}

	if *once {
		if err := run(time.Now()); err != nil {
			logger.Fatalf("scrape failed: %v", err)
		}
		return
	}

	ticker := time.NewTicker(cfg.ScrapeSpan)
	defer ticker.Stop()

	if err := run(time.Now()); err != nil {
		logger.Errorf("scrape failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			if err := run(tick); err != nil {
				logger.Errorf("scrape failed: %v", err)
			}
		}
	}
}

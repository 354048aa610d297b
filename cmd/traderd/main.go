package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mescon/tradecore/internal/api"
	"github.com/mescon/tradecore/internal/clock"
	"github.com/mescon/tradecore/internal/config"
	"github.com/mescon/tradecore/internal/datafeed"
	"github.com/mescon/tradecore/internal/db"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/execution"
	"github.com/mescon/tradecore/internal/ident"
	"github.com/mescon/tradecore/internal/logger"
	"github.com/mescon/tradecore/internal/metrics"
	"github.com/mescon/tradecore/internal/notifier"
	"github.com/mescon/tradecore/internal/portfolio"
	"github.com/mescon/tradecore/internal/strategy"
	"github.com/mescon/tradecore/internal/trader"
)

// heartbeat logs the portfolio state once a minute so an idle trader is
// visibly alive.
type heartbeat struct {
	strategy.Base
	portfolio *portfolio.Portfolio
}

func (s *heartbeat) OnStart(ctx *strategy.Context) error {
	return ctx.SetCronTimer(ident.Label("heartbeat"), "* * * * *", time.Time{}, func(ev clock.TimeEvent) {
		positions := 0
		if s.portfolio != nil {
			positions = len(s.portfolio.Positions())
		}
		logger.Infof("Heartbeat at %s: %d open positions", ev.Timestamp.Format(time.RFC3339), positions)
	})
}

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	flagConfig := flag.String("config", "", "Path to YAML config file")
	flagPort := flag.String("port", "", "Status API port (env: TRADECORE_PORT, default: 3190)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: TRADECORE_LOG_LEVEL, default: info)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: TRADECORE_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Journal database file path (env: TRADECORE_DATABASE_PATH)")
	flagFeedURL := flag.String("feed-url", "", "Market data websocket URL (env: TRADECORE_FEED_URL)")
	flagVenueURL := flag.String("venue-url", "", "Execution venue base URL (env: TRADECORE_VENUE_URL)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep journaled events, 0 to disable pruning (env: TRADECORE_RETENTION_DAYS, default: 90)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("tradecore %s\n", config.Version)
		os.Exit(0)
	}

	config.Load(*flagConfig)
	overrides := config.FlagOverrides{
		Port:         flagPort,
		LogLevel:     flagLogLevel,
		DataDir:      flagDataDir,
		DatabasePath: flagDatabasePath,
		FeedURL:      flagFeedURL,
		VenueURL:     flagVenueURL,
	}
	if *flagRetentionDays >= 0 {
		overrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(overrides)
	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting tradecore %s...", config.Version)
	logger.Infof("========================================")
	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Journal: %s", cfg.DatabasePath)
	if cfg.FeedURL != "" {
		logger.Infof("  Feed: %s", cfg.FeedURL)
	}
	if cfg.VenueURL != "" {
		logger.Infof("  Venue: %s", cfg.VenueURL)
	}
	if cfg.RetentionDays > 0 {
		logger.Infof("  Journal Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Journal Retention: disabled")
	}

	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize journal: %v", err)
		os.Exit(1)
	}
	defer repo.Close()

	bus := eventbus.NewEventBus(repo.DB)
	metricsService := metrics.NewMetricsService(bus)

	alerts := notifier.New(cfg.NotifyURLs, cfg.NotifyThrottle)
	alerts.Start(bus)

	liveClock := clock.NewLiveClock()
	liveClock.RegisterLogger(logger.ForClock())

	var feed *datafeed.Client
	if cfg.FeedURL != "" {
		feed = datafeed.NewClient(cfg.FeedURL, bus, cfg.FeedReconnectWait)
	}
	var venue *execution.Client
	if cfg.VenueURL != "" {
		venue = execution.NewClient(cfg.VenueURL, cfg.VenueAPIKey, bus)
	}
	book := portfolio.New(bus)

	tr, err := trader.New(trader.Deps{
		Clock:     liveClock,
		Bus:       bus,
		Feed:      feed,
		Execution: venue,
		Portfolio: book,
		Metrics:   metricsService,
	})
	if err != nil {
		logger.Errorf("Failed to build trader: %v", err)
		os.Exit(1)
	}

	if err := tr.AddStrategy(&heartbeat{
		Base:      strategy.Base{StrategyName: "heartbeat"},
		portfolio: book,
	}); err != nil {
		logger.Errorf("Failed to add heartbeat strategy: %v", err)
		os.Exit(1)
	}

	if err := tr.Start(); err != nil {
		logger.Errorf("Failed to start trader: %v", err)
		os.Exit(1)
	}

	// Daily journal pruning rides the platform's own clock.
	if cfg.RetentionDays > 0 {
		if err := liveClock.SetCronTimer(ident.Label("journal-prune"), "0 3 * * *", time.Time{}, func(ev clock.TimeEvent) {
			if _, err := repo.PruneEvents(cfg.RetentionDays); err != nil {
				logger.Errorf("Journal pruning failed: %v", err)
			}
		}); err != nil {
			logger.Warnf("Failed to schedule journal pruning: %v", err)
		}
	}

	server := api.NewServer(api.Deps{
		Trader:    tr,
		DB:        repo.DB,
		Bus:       bus,
		Metrics:   metricsService,
		TokenHash: cfg.APITokenHash,
	})
	go func() {
		if err := server.Start(cfg.Port); err != nil {
			logger.Errorf("%v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Status API shutdown: %v", err)
	}
	tr.Stop()
	liveClock.Teardown()
	bus.Shutdown()
}

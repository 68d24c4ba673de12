package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"pricewatch/archive"
	"pricewatch/config"
	"pricewatch/database"
	"pricewatch/handlers"
	"pricewatch/locks"
	"pricewatch/middleware"
	"pricewatch/models"
	"pricewatch/notify"
	"pricewatch/repository"
	"pricewatch/scheduler"
	"pricewatch/scraper"
	"pricewatch/services"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	once := flag.Bool("once", false, "run a single check cycle, print the results and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Any("config", cfg.Redacted()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logger); err != nil {
		logger.Error("pricewatch stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, once bool, logger *slog.Logger) error {
	db, err := database.Open(ctx, cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Duration,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.CreateTables(ctx, db); err != nil {
		return err
	}

	itemRepo := repository.NewItemRepository(db)
	priceRepo := repository.NewPriceRepository(db)

	engine, browser := newEngine(cfg, logger)
	if browser != nil {
		defer browser.Close()
	}

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	notifier := notify.NewNotifier(newSenders(cfg.Notify), logger)

	tracker := services.NewTracker(engine, itemRepo, priceRepo, notifier, locker, services.TrackerOptions{
		Currency: cfg.Currency,
		LockTTL:  cfg.Scheduler.LockTTL.Duration,
	}, logger)

	if n, err := tracker.SyncItems(ctx, cfg.Items); err != nil {
		logger.Warn("some configured items were not synchronized",
			slog.Int("synced", n),
			slog.String("error", err.Error()))
	}

	var archiver scheduler.ReportArchiver
	if cfg.S3.Enabled() {
		s3Archiver, err := archive.NewS3Archiver(ctx, archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return err
		}
		archiver = s3Archiver
	}

	checker := scheduler.NewPriceChecker(tracker, archiver, scheduler.PriceCheckerOptions{
		Spec:        cfg.Scheduler.Spec(),
		Workers:     cfg.Scheduler.Workers,
		RunOnStart:  cfg.Scheduler.RunOnStart,
		ItemTimeout: cfg.Scheduler.ItemTimeout.Duration,
	}, logger)

	if once {
		report, err := checker.RunCycle(ctx)
		if err != nil {
			return err
		}
		printReport(report, cfg.Currency)
		return nil
	}

	if err := checker.Start(ctx); err != nil {
		return err
	}
	defer checker.Stop()

	if !cfg.Server.Enabled {
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	tasks := scheduler.NewTaskManager(tracker.CheckItemByID, scheduler.TaskManagerOptions{
		Workers:      cfg.Server.AsyncWorkers,
		CheckTimeout: cfg.Scheduler.ItemTimeout.Duration,
	}, logger)
	defer tasks.Stop()

	h := handlers.NewHandlers(handlers.Deps{
		Items:     itemRepo,
		History:   priceRepo,
		Checker:   tracker,
		Extractor: engine,
		Cycles:    checker,
		Tasks:     tasks,
	}, logger)

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit))
	r.Use(middleware.APIKeyMiddleware(cfg.Server.APIKey))
	h.Register(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      c.Handler(r),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newEngine builds the extraction engine. The returned browser is nil when
// rendering is disabled.
func newEngine(cfg *config.Config, logger *slog.Logger) (*scraper.Engine, *scraper.BrowserFetcher) {
	client := &http.Client{Timeout: cfg.Scraper.RequestTimeout.Duration}

	deps := scraper.EngineDeps{
		Marketplace: scraper.NewMarketplaceAPIExtractor(cfg.Marketplace.APIBase, scraper.MarketplaceCredentials{
			Token:          cfg.Marketplace.AuthToken,
			InstallationID: cfg.Marketplace.InstallationID,
			Language:       cfg.Marketplace.Language,
			Region:         cfg.Marketplace.Region,
		}, client),
		GameMarket: scraper.NewGameMarketAPIExtractor(cfg.GameMarket.Endpoint, cfg.GameMarket.Currency, client),
		Pages: scraper.NewPageFetcher(scraper.PageFetcherOptions{
			UserAgent:    cfg.Scraper.UserAgent,
			Timeout:      cfg.Scraper.RequestTimeout.Duration,
			HostInterval: cfg.Scraper.HostInterval.Duration,
			HostBurst:    cfg.Scraper.HostBurst,
		}),
		Logger: logger,
	}

	var browser *scraper.BrowserFetcher
	if cfg.Scraper.BrowserEnabled {
		browser = scraper.NewBrowserFetcher(scraper.BrowserFetcherOptions{
			Bin:       cfg.Scraper.ChromiumPath,
			UserAgent: cfg.Scraper.UserAgent,
			Timeout:   cfg.Scraper.RenderTimeout.Duration,
			Settle:    cfg.Scraper.RenderSettle.Duration,
		}, logger)
		deps.Browser = browser
	}
	return scraper.NewEngine(deps), browser
}

// newLocker prefers Redis so several instances never check the same item at
// once; a single instance falls back to an in-process lock.
func newLocker(ctx context.Context, cfg *config.Config) (services.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return locks.NewMemoryLocker(), func() {}, nil
	}
	rl, err := locks.NewRedisLocker(ctx, locks.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return rl, func() { rl.Close() }, nil
}

func newSenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return senders
}

func printReport(report *models.CycleReport, currency string) {
	for _, r := range report.Results {
		if r.OK() {
			fmt.Printf("[OK] %s: %s %s\n", r.ItemName, scraper.FormatPrice(r.Price.Decimal), currency)
			continue
		}
		fmt.Printf("[ERR] %s -> %s\n", r.ItemName, r.Error)
	}
	fmt.Printf("%d ok, %d failed, %d notified\n", report.Succeeded, report.Failed, report.Notified)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

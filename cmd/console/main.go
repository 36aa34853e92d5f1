package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-console/internal/app"
	"github.com/odyssey-erp/odyssey-console/internal/listsync"
	"github.com/odyssey-erp/odyssey-console/internal/loading"
	"github.com/odyssey-erp/odyssey-console/internal/notify"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/remote"
	"github.com/odyssey-erp/odyssey-console/internal/screens"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	location, err := cfg.Location()
	if err != nil {
		logger.Error("load time zone", slog.Any("error", err))
		os.Exit(1)
	}

	catalog, err := screens.LoadCatalog(cfg.ScreensFile)
	if err != nil {
		logger.Error("load screen catalog", slog.Any("error", err))
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.CacheEnabled() {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, list cache disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}
	listCache := cache.NewStore(redisClient, cfg.ListCacheTTL)
	if err := listCache.ListenForInvalidation(ctx, cache.BumpChannel); err != nil {
		logger.Warn("list cache invalidation listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	indicator := loading.NewIndicator(logger, metrics.LoadingGauge())
	center := notify.NewCenter(logger, cfg.NotifyTTL)

	client := remote.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout, logger)
	fetcher := remote.NewCachedFetcher(client, listCache, logger)

	manager, err := screens.NewManager(screens.ManagerConfig{
		Catalog:  catalog,
		Fetcher:  fetcher,
		Loader:   indicator,
		Notifier: center,
		Defaults: screens.EngineDefaults{
			Debounce: cfg.FilterDebounce,
			Location: location,
			Clock:    listsync.SystemClock(),
			Logger:   logger,
			Observer: metrics,
		},
		IdleTTL: cfg.SessionIdleTTL,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("build session manager", slog.Any("error", err))
		os.Exit(1)
	}
	go manager.Run(ctx, cfg.SessionSweepInterval)

	if cfg.ScreensFile != "" {
		if _, err := screens.WatchCatalog(ctx, cfg.ScreensFile, manager, logger); err != nil {
			logger.Warn("screen catalog hot reload disabled", slog.Any("error", err))
		}
	}

	screenHandler := screens.NewHandler(logger, manager, center, indicator, fetcher)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ScreenHandler: screenHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("api", cfg.APIBaseURL),
			slog.Int("screens", len(catalog.List())),
			slog.Bool("cache", listCache.Enabled()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("screen sessions still settling", slog.Any("error", err))
	}
}

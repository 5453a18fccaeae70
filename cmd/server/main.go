package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/visualmatch/console/config"
	httpDelivery "github.com/visualmatch/console/internal/delivery/http"
	"github.com/visualmatch/console/internal/domain"
	"github.com/visualmatch/console/internal/infrastructure/cache"
	"github.com/visualmatch/console/internal/infrastructure/logging"
	"github.com/visualmatch/console/internal/infrastructure/metrics"
	"github.com/visualmatch/console/internal/infrastructure/preferences"
	"github.com/visualmatch/console/internal/infrastructure/searchapi"
	"github.com/visualmatch/console/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Environment, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting Visual Match console",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("cache", cfg.Cache.Type),
		zap.String("api", cfg.API.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize infrastructure dependencies
	blobs, closeBlobs, err := newCache(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize cache", zap.Error(err))
	}
	defer closeBlobs()

	// Enable debug logging of API calls in development
	debug := cfg.API.Debug || cfg.Server.Environment == "development"
	client := searchapi.NewClient(cfg.API.BaseURL,
		searchapi.WithTimeout(cfg.API.Timeout),
		searchapi.WithLogger(logger.Named("searchapi")),
		searchapi.WithDebug(debug),
	)

	m := metrics.New()

	// Initialize usecase layer
	session := usecase.NewSession(client, logger.Named("session"), usecase.SessionConfig{
		ToastTTL: cfg.UI.ToastTTL,
		Recorder: m,
		Text:     client,
		Image:    client,
	})
	defer session.Close()

	filters := usecase.NewFilterController(domain.PatchFrom(session.Filters()), session.SetFilters)

	previews := usecase.NewCachePreviewStore(blobs, cfg.Cache.TTL)
	uploads := usecase.NewUploadController(previews,
		func(ctx context.Context, files []domain.ImageFile) error {
			_, err := session.Submit(ctx, files)
			return err
		},
		usecase.WithMaxPreviews(cfg.Upload.MaxPreviews),
		usecase.WithMaxFileSize(cfg.Upload.MaxFileSize),
		usecase.WithUploadLogger(logger.Named("uploads")),
	)
	defer uploads.Close()

	paste := usecase.NewPasteBus()
	if err := uploads.Mount(paste); err != nil {
		logger.Fatal("failed to mount paste listener", zap.Error(err))
	}

	system := usecase.NewSystemColorScheme(domain.ThemeLight)
	theme := usecase.NewThemeSetting(preferences.NewFileStore(cfg.Preferences.Path), system, logger.Named("theme"))
	theme.OnChange(m.ApplyTheme)
	theme.OnChange(func(t domain.Theme) {
		logger.Info("theme applied", zap.String("theme", string(t)))
	})
	theme.Init()
	defer theme.Close()

	// Startup calls run in the background; only health failures are surfaced
	go func() {
		if err := session.Mount(ctx); err != nil {
			logger.Warn("search API not ready", zap.Error(err))
		}
	}()

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(httpDelivery.HandlerDeps{
		Session:  session,
		Filters:  filters,
		Uploads:  uploads,
		Paste:    paste,
		Previews: previews,
		Theme:    theme,
		System:   system,
		Catalog:  client,
		Logger:   logger.Named("http"),
	})

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler, logger.Named("http"), m)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	session.CancelSearch()
	logger.Info("server gracefully stopped")
}

// newCache builds the preview blob store selected by cache.type
func newCache(ctx context.Context, cfg *config.Config) (domain.CacheRepository, func(), error) {
	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return redisCache, func() { redisCache.Close() }, nil
	}

	memoryCache := cache.NewMemoryCache(cache.WithMaxBytes(cfg.Cache.MaxBytes))
	return memoryCache, func() { memoryCache.Close() }, nil
}

func init() {
	// Set log flags for failures before the zap logger exists
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stderr)
}

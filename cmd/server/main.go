// PhotoSweep Server
//
// Features:
// - Scoped photo review (month ranges or albums)
// - Staged loading: priority batch first, background batches after
// - Memory governor that demotes records outside the review window
// - Deletion ledger with undo and all-or-nothing commit
// - SSE progress events, Prometheus metrics, structured logging (zap)
// - Multi-backend photo stores (local filesystem, PostgreSQL, S3)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/photosweep/photosweep/internal/api"
	"github.com/photosweep/photosweep/internal/config"
	"github.com/photosweep/photosweep/internal/engine"
	"github.com/photosweep/photosweep/internal/events"
	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
	"github.com/photosweep/photosweep/internal/photostore/local"
	"github.com/photosweep/photosweep/internal/photostore/memory"
	"github.com/photosweep/photosweep/internal/photostore/pg"
	s3store "github.com/photosweep/photosweep/internal/photostore/s3"
	"github.com/photosweep/photosweep/internal/scopecache"
	"github.com/photosweep/photosweep/internal/summary"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("PhotoSweep Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("provider", cfg.Provider))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the photo store backend
	provider, err := openProvider(ctx, cfg)
	if err != nil {
		logging.Fatal("photo store init failed", zap.Error(err))
	}
	defer provider.Close()
	logging.Info("photo store ready", zap.String("type", provider.Type()))

	// Open the scope cache (month summaries + done markers)
	var cache *scopecache.Store
	if cfg.CacheDir != "" {
		cache, err = scopecache.Open(cfg.CacheDir)
		if err != nil {
			logging.Fatal("scope cache init failed", zap.Error(err))
		}
		defer cache.Close()
		logging.Info("scope cache ready", zap.String("dir", cfg.CacheDir))
	}

	// SSE broadcaster
	broadcaster := events.NewBroadcaster()

	// Review engine
	eng := engine.New(provider, cache, broadcaster, engine.Options{
		PageSize:            cfg.PageSize,
		PriorityCount:       cfg.PriorityCount,
		PriorityConcurrency: cfg.PriorityConcurrency,
		BatchSize:           cfg.BatchSize,
		KeepWindow:          cfg.KeepWindow,
		CleanupThreshold:    cfg.CleanupThreshold,
		TrimEveryAdvances:   cfg.TrimEveryAdvances,
		TrimInterval:        cfg.TrimInterval,
	})
	eng.Start()
	defer eng.Close()
	logging.Info("review engine started")

	// Month summaries need a scope cache to be useful
	var summaries *summary.Service
	if cache != nil {
		summaries = summary.New(provider, cache)
	}

	// API server
	srv := api.NewServer(eng, summaries)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	logging.Info("HTTP server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("HTTP server error", zap.Error(err))
	}
	logging.Info("shutdown complete")
}

func openProvider(ctx context.Context, cfg *config.Config) (photostore.Provider, error) {
	switch cfg.Provider {
	case "local":
		return local.New(cfg.LibraryPath)
	case "pg":
		return pg.New(cfg.DatabaseURL)
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

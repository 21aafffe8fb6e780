package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justlegal/servetrack/internal"
	"github.com/justlegal/servetrack/internal/blobstore"
	"github.com/justlegal/servetrack/internal/cache"
	"github.com/justlegal/servetrack/internal/docstore"
	"github.com/justlegal/servetrack/internal/handler"
	"github.com/justlegal/servetrack/internal/mailer"
	"github.com/justlegal/servetrack/internal/media"
	"github.com/justlegal/servetrack/internal/metrics"
	"github.com/justlegal/servetrack/internal/service"
	"github.com/justlegal/servetrack/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg)

	// Open the local durable cache
	localCache, err := cache.Open(cfg.CachePath, cfg.CacheMaxBytes, logger)
	if err != nil {
		return fmt.Errorf("cache open failed: %w", err)
	}
	defer localCache.Close()
	localCache.Subscribe(metrics.SetCachedServes)
	logger.Info("Local cache ready", "path", cfg.CachePath)

	// Remote stores
	httpClient := &http.Client{Timeout: 60 * time.Second}

	docs := docstore.NewRESTStore(docstore.RESTConfig{
		Endpoint:   cfg.DocstoreEndpoint,
		ProjectID:  cfg.DocstoreProjectID,
		APIKey:     cfg.DocstoreAPIKey,
		DatabaseID: cfg.DatabaseID,
	}, httpClient, logger)

	objects, err := blobstore.NewS3Store(blobstore.S3Config{
		AccountID:       cfg.StorageAccountID,
		AccessKeyID:     cfg.StorageAccessKey,
		SecretAccessKey: cfg.StorageSecretKey,
		Region:          cfg.StorageRegion,
		PublicURL:       cfg.StoragePublicURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("object store initialization failed: %w", err)
	}

	// Mail transports: serverless function first, direct messaging API
	// as fallback.
	functionTransport := mailer.NewFunctionTransport(mailer.FunctionConfig{
		Endpoint:   cfg.DocstoreEndpoint,
		ProjectID:  cfg.DocstoreProjectID,
		APIKey:     cfg.DocstoreAPIKey,
		FunctionID: cfg.MailFunctionID,
		From:       cfg.MailFrom,
	}, httpClient, logger)
	messagingTransport := mailer.NewMessagingTransport(mailer.MessagingConfig{
		Endpoint:   cfg.DocstoreEndpoint,
		ProjectID:  cfg.DocstoreProjectID,
		APIKey:     cfg.DocstoreAPIKey,
		ProviderID: cfg.MessagingProviderID,
		TopicID:    cfg.MessagingTopicID,
	}, httpClient, logger)

	dispatcher := mailer.NewDispatcher(
		[]mailer.Transport{functionTransport, messagingTransport},
		service.NewServeReader(docs, cfg.ServeCollectionID),
		httpClient,
		cfg.BusinessEmail,
		logger,
	)

	// Background task runner for fire-after work
	workerCfg := worker.DefaultConfig()
	workerCfg.QueueSize = cfg.TaskBuffer
	workerCfg.ShutdownTimeout = cfg.ShutdownTimeout
	runner, err := worker.New(workerCfg, logger)
	if err != nil {
		return fmt.Errorf("task runner initialization failed: %w", err)
	}
	runner.Start(ctx)
	defer runner.Stop()

	// Initialize services
	syncer := service.NewSyncer(docs, cfg.ServeCollectionID, localCache, cfg.SyncLimit, logger)
	clientService := service.NewClientService(docs, cfg.ClientCollection, logger)
	serveService := service.NewServeService(service.Params{
		Docs:            docs,
		ServeCollection: cfg.ServeCollectionID,
		Objects:         objects,
		EvidenceBucket:  cfg.EvidenceBucket,
		ThumbnailBucket: cfg.ThumbnailBucket,
		Thumbnails:      media.NewImagingProcessor(),
		ThumbnailOpt: media.ThumbnailOptions{
			MaxWidth:  cfg.ThumbnailMaxWidth,
			MaxHeight: cfg.ThumbnailMaxHeight,
			Quality:   cfg.ThumbnailQuality,
		},
		Cache:    localCache,
		Notifier: dispatcher,
		Clients:  clientService,
		Runner:   runner,
		Syncer:   syncer,
		Logger:   logger,
	})

	// Warm the read cache; a cold start with the store down is fine.
	if err := syncer.Sync(ctx); err != nil {
		logger.Warn("Initial cache sync failed", "error", err)
	}

	// Initialize handlers
	serveHandler := handler.NewServeHandler(serveService, syncer, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", handler.BasicAuth(cfg.MetricsUsername, cfg.MetricsPassword, promhttp.Handler()))

	// Serve API
	serveHandler.RegisterRoutes(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

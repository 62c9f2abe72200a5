package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jts-services/portal/internal/api"
	"github.com/jts-services/portal/internal/auth"
	"github.com/jts-services/portal/internal/cache"
	"github.com/jts-services/portal/internal/config"
	"github.com/jts-services/portal/internal/drive"
	"github.com/jts-services/portal/internal/infra/postgres"
	"github.com/jts-services/portal/internal/jobs/inmemory"
	"github.com/jts-services/portal/internal/ledger"
	"github.com/jts-services/portal/internal/logger"
	"github.com/jts-services/portal/internal/payments"
	"github.com/jts-services/portal/internal/realtime"
	"github.com/jts-services/portal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("api", "info")
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	bucket := flag.String("bucket", cfg.GCSBucket, "GCS bucket for file storage (or set GCS_BUCKET env)")
	flag.Parse()

	log := logger.New("api", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	var store storage.ObjectStore
	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - files are kept in memory and lost on restart")
		store = storage.NewMemoryStore()
	} else {
		gcs, err := storage.NewGCSStore(ctx, *bucket, cfg.GCSCredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer gcs.Close()
		store = gcs
	}

	var trees cache.TreeCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisTreeCache(cfg.RedisAddr, cfg.RedisPassword, cfg.TreeCacheTTL)
		if err := rc.Ping(ctx); err != nil {
			// trees are rebuilt on every request without it
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, tree cache disabled")
		} else {
			trees = rc
		}
		defer rc.Close()
	}

	folders := postgres.NewFolderRepository(db)
	files := postgres.NewFileRepository(db)
	customers := postgres.NewCustomerRepository(db)
	invoices := postgres.NewInvoiceRepository(db)
	notifications := postgres.NewNotificationRepository(db)

	driveService := drive.NewService(folders, files, store, trees, log)
	driveService.SetURLTTL(cfg.SignedURLTTL)
	ledgerService := ledger.NewService(customers, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{
		BufferSize: cfg.QueueBuffer,
		Workers:    cfg.QueueWorkers,
		MaxRetries: cfg.QueueMaxRetries,
	}, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	processor := payments.NewProcessor(invoices, notifications, log)
	if err := jobQueue.Start(workerCtx, processor.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	hub := realtime.NewHub(log, cfg.AllowedOrigins...)
	listener := realtime.NewListener(db.Pool, hub, log)
	go func() {
		if err := listener.Run(workerCtx); err != nil {
			log.Error().Err(err).Msg("Notification listener stopped")
		}
	}()

	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET not set - payment webhooks will be rejected")
	}

	router := api.NewRouter(api.Deps{
		Drive:          driveService,
		Ledger:         ledgerService,
		Notifications:  notifications,
		Realtime:       hub,
		Publisher:      jobQueue,
		JobStore:       jobStore,
		Verifier:       auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		WebhookSecret:  cfg.WebhookSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		Health:         db,
		Log:            log,
	})

	// WriteTimeout stays zero: uploads, downloads and websockets outlive any
	// fixed deadline.
	server := &http.Server{
		Addr:              ":" + *port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

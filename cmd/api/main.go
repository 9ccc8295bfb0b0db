package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"folio/api/internal/app"
	"folio/api/internal/blob"
	"folio/api/internal/config"
	"folio/api/internal/dispatch"
	"folio/api/internal/email"
	"folio/api/internal/export"
	"folio/api/internal/lifecycle"
	"folio/api/internal/logging"
	"folio/api/internal/metrics"
	"folio/api/internal/revisions"
	"folio/api/internal/search"
	"folio/api/internal/session"
	"folio/api/internal/store"
)

const overdueInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db, dialect, cfg.MigrationsDir); err != nil {
		return err
	}
	dataStore := store.NewSQLStore(db, dialect)

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		return err
	}

	recorder := metrics.New()
	engine := lifecycle.MustDefault()

	deps := app.Deps{
		Store:     dataStore,
		Engine:    engine,
		Revisions: revisions.New(cfg.RevisionsDir),
		Metrics:   recorder,
		Logger:    logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		logger.Info("refresh sessions stored in redis")
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	var sender dispatch.Sender
	if mailer.IsConfigured() {
		sender = mailer
	} else {
		logger.Warn("SMTP not configured; notifications will be reported as undelivered")
	}
	deps.Dispatcher = dispatch.New(sender, cfg.PublicBaseURL, logger.Named("dispatch"), recorder)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		deps.Search = search.NewService(meiliClient, search.NewStoreSearch(dataStore), logger)
	}

	var exportOpts []export.Option
	blobCfg := blob.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}
	if blobCfg.Enabled() {
		artifacts, err := blob.New(blobCfg)
		if err != nil {
			return err
		}
		if err := artifacts.EnsureBucket(ctx); err != nil {
			return err
		}
		exportOpts = append(exportOpts, export.WithUploader(artifacts))
		logger.Info("export uploads enabled", zap.String("bucket", blobCfg.Bucket))
	}
	deps.Export = export.NewService(engine, logger, exportOpts...)

	service := app.New(cfg, deps)

	if meiliClient != nil {
		go func() {
			// The index is rebuilt from the database on every start.
			n, err := service.ReindexSearch(ctx)
			if err != nil {
				logger.Warn("reindex search", zap.Error(err))
				return
			}
			logger.Info("search reindex queued", zap.Int("documents", n))
		}()
	}

	go markOverdueLoop(ctx, service, logger)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Folio API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func markOverdueLoop(ctx context.Context, service *app.Service, logger *zap.Logger) {
	ticker := time.NewTicker(overdueInterval)
	defer ticker.Stop()
	for {
		if _, err := service.MarkOverdue(ctx, ""); err != nil && ctx.Err() == nil {
			logger.Warn("mark overdue", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

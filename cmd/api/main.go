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

	"clientportal/api/internal/app"
	"clientportal/api/internal/blob"
	"clientportal/api/internal/config"
	"clientportal/api/internal/logging"
	"clientportal/api/internal/session"
	"clientportal/api/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	var opts []app.Option
	if strings.TrimSpace(cfg.RedisURL) != "" {
		accounts, err := session.NewRedisStore(cfg.RedisURL, cfg.AccountCacheTTL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer accounts.Close()
		opts = append(opts, app.WithAccountCache(accounts))
		logger.Info("account cache enabled", zap.Duration("ttl", cfg.AccountCacheTTL))
	}
	if strings.TrimSpace(cfg.BlobEndpoint) != "" {
		presigner, err := blob.NewPresigner(blob.Config{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Region:    cfg.BlobRegion,
			Bucket:    cfg.BlobBucket,
			UseSSL:    cfg.BlobUseSSL,
			TTL:       cfg.BlobPresignTTL,
		})
		if err != nil {
			logger.Fatal("blob storage setup failed", zap.Error(err))
		}
		opts = append(opts, app.WithPresigner(presigner))
	}

	service := app.New(cfg, store.NewPostgresStore(db), logger, opts...)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("portal API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seisreview/cct-service/internal/aqms"
	"github.com/seisreview/cct-service/internal/auth"
	"github.com/seisreview/cct-service/internal/catalog"
	"github.com/seisreview/cct-service/internal/config"
	"github.com/seisreview/cct-service/internal/gateway"
	"github.com/seisreview/cct-service/internal/logging"
	"github.com/seisreview/cct-service/internal/persistence/postgres"
	"github.com/seisreview/cct-service/internal/syncer"
	httptransport "github.com/seisreview/cct-service/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("CCT_CONFIG"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	reviewPool, err := postgres.NewPool(ctx, cfg.Review.URL)
	if err != nil {
		log.Fatalf("review db connect failed: %v", err)
	}
	defer reviewPool.Close()

	if err := postgres.EnsureSchema(ctx, reviewPool, cfg.Review.Schemas, logger); err != nil {
		log.Fatalf("review db schema bootstrap failed: %v", err)
	}

	if cfg.Catalog.URL == "" {
		log.Fatal("catalog.url is required")
	}
	catalogPool, err := postgres.NewPool(ctx, cfg.Catalog.URL)
	if err != nil {
		log.Fatalf("catalog db connect failed: %v", err)
	}
	defer catalogPool.Close()

	engine, err := syncer.New(syncer.Deps{
		Reader:           catalog.NewReader(reviewPool, logger),
		Logger:           logger,
		Schemas:          cfg.Review.Schemas,
		PollInterval:     cfg.Sync.PollInterval,
		InitialLoadLimit: cfg.Sync.InitialLoadLimit,
	})
	if err != nil {
		log.Fatalf("sync engine setup failed: %v", err)
	}
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("sync engine start failed: %v", err)
	}
	defer engine.Stop()

	reviewGateway := gateway.New(
		engine,
		aqms.NewWriter(catalogPool, logger),
		catalog.NewReviewWriter(reviewPool, logger),
		logger,
	)

	tokens := make(map[string]auth.Principal, len(cfg.Auth.Tokens))
	for token, grant := range cfg.Auth.Tokens {
		permission := auth.PermissionReadOnly
		if grant.Permission == "read-write" {
			permission = auth.PermissionReadWrite
		}
		tokens[token] = auth.Principal{User: grant.User, Permission: permission}
	}

	handler := httptransport.NewRouter(httptransport.Deps{
		Dispatcher:        reviewGateway,
		Authorizer:        auth.NewStaticAuthorizer(tokens),
		Logger:            logger,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.Server.Addr,
			"schemas", cfg.Review.Schemas,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

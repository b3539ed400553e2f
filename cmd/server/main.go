// Package main provides the commentguard API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kamilpajak/commentguard/internal/api"
	"github.com/kamilpajak/commentguard/internal/auth"
	"github.com/kamilpajak/commentguard/internal/billing"
	"github.com/kamilpajak/commentguard/internal/config"
	"github.com/kamilpajak/commentguard/internal/database"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/logging"
	"github.com/kamilpajak/commentguard/internal/pipeline"
)

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("COMMENTGUARD_CONFIG"), "Path to YAML config file")
		migrateOnly = flag.Bool("migrate", false, "Run migrations and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, *migrateOnly, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, migrateOnly bool, logger *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.Auth.Domain == "" {
		return errors.New("KINDE_DOMAIN is required (e.g., https://yourapp.kinde.com)")
	}

	logger.Info("running database migrations")
	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	if migrateOnly {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	authVerifier, err := auth.NewVerifier(ctx, auth.Config{
		Domain:   cfg.Auth.Domain,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		return err
	}

	keys := cfg.APIKeys()
	if len(keys) == 0 {
		logger.Warn("no provider API keys found; every scan will fail with a configuration error")
	}
	components := pipeline.NewComponents(&cfg, llm.NewRegistry(keys), logger)

	server := api.NewServer(api.Config{
		Store:          db,
		AuthVerifier:   authVerifier,
		Credits:        billing.NewCreditChecker(db, cfg.Pipeline.CreditsPerComment),
		Scanner:        components.Scanner,
		Adjudicator:    components.Adjudicator,
		Processor:      components.Processor,
		Screener:       components,
		DefaultMode:    cfg.Pipeline.DefaultMode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Logger:         logger.Named("api"),
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

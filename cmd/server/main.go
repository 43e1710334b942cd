// Package main is the entry point for the Code Supporter server binary.
//
// Startup order matters: .env and config first, then the logger so every
// later message is structured, then storage selection (document database
// with permanent file fallback), then the HTTP server. Prometheus metrics
// are served on a dedicated side-channel port so the scrape path is not
// reachable through the public API ingress.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/code-supporter/code-supporter/internal/api"
	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/cache"
	"github.com/code-supporter/code-supporter/internal/chat"
	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/safego"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/telemetry"

	// Import storage backends to register them.
	_ "github.com/code-supporter/code-supporter/internal/store/file"
	_ "github.com/code-supporter/code-supporter/internal/store/mongo"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Optional in development; containerized deployments set real env vars.
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("Code Supporter v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return serve(cfg)
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := backend.Close(closeCtx); err != nil {
			slog.Error("storage close failed", "error", err)
		}
	}()

	telemetry.MarkStorageBackend(backend.Kind())
	if cfg.Storage.MongoURI != "" && backend.Kind() == store.KindFile {
		telemetry.StorageFallbacksTotal.Inc()
	}

	stats, err := cache.New(ctx, cfg.Redis.URL, cfg.Redis.StatsTTL)
	if err != nil {
		// The cache is an optimization; run without it rather than refuse to start.
		slog.Warn("usage stats cache unavailable, continuing without it", "error", err)
		stats = nil
	}
	defer func() {
		if err := stats.Close(); err != nil {
			slog.Error("cache close failed", "error", err)
		}
	}()

	deps := api.Dependencies{
		Backend:   backend,
		Completer: chat.NewClient(&cfg.Chat),
		Issuer:    auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Stats:     stats,
	}
	router, bg := api.NewRouter(cfg, deps)
	defer bg.Shutdown()

	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go("metrics-server", func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening",
			"addr", cfg.Server.GetAddress(),
			"storage", backend.Kind(),
			"model", cfg.Chat.Model)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

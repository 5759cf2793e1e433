package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/content-extensions/internal/logger"
	"github.com/tendant/content-extensions/pkg/extensions/api"
	"github.com/tendant/content-extensions/pkg/extensions/config"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	serverConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(serverConfig.LoggerMode())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(serverConfig, log); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(serverConfig *config.ServerConfig, log *logger.Logger) error {
	ctx := context.Background()

	comps, err := serverConfig.BuildService(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer comps.Close()

	// Install whatever manifests are already present so courses can enable them right away.
	report, err := comps.Catalog.Sync(ctx)
	if err != nil {
		log.Warn("Initial catalog sync failed", "error", err)
	} else {
		log.Info("Initial catalog sync",
			"installed", len(report.Installed),
			"updated", len(report.Updated),
			"unchanged", len(report.Unchanged),
			"rejected", len(report.Rejected))
	}

	handler := api.NewExtensionHandler(comps.Service,
		api.WithCatalog(comps.Catalog),
		api.WithLocker(comps.Locker),
		api.WithJWTAuth(comps.JWTAuth),
		api.WithLogger(log.With("component", "http")))

	r := chi.NewRouter()
	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	guarded := r.With()
	if serverConfig.APIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"key1": serverConfig.APIKeySHA256,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize API key middleware: %w", err)
		}
		guarded = r.With(apiKeyMiddleware)
	}
	guarded.Mount("/", handler.Routes())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Content extensions server starting",
			"port", serverConfig.Port,
			"environment", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"manifests", serverConfig.ManifestStorage.Type)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exiting")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"transit-tracking-service/internal/adapters/auth"
	"transit-tracking-service/internal/adapters/repositories"
	"transit-tracking-service/internal/adapters/wsstream"
	"transit-tracking-service/internal/api"
	"transit-tracking-service/internal/config"
	"transit-tracking-service/internal/platform/obs"
	"transit-tracking-service/internal/tracking"
)

// main is the application composition root.
// It wires concrete adapters (SQL, Redis, JWT, websocket) behind ports and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found (using environment variables)")
	}

	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	logger := obs.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := repositories.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	// Demo data for local runs; an existing fleet is never overwritten.
	seeded, err := repositories.SeedIfEmpty(ctx, backend.Repo, cfg.SeedPath)
	if err != nil {
		return err
	}
	logger.Info("backend ready", "driver", cfg.StoreDriver, "seeded", seeded)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := tracking.NewMetrics(reg)
	if err != nil {
		return err
	}

	authority, err := auth.NewJWTAuthority(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	catalog := tracking.NewRouteCatalog(backend.Repo, logger)
	store := tracking.NewStore(backend.Repo, catalog, logger)
	n, err := store.Load(ctx)
	if err != nil {
		return err
	}
	logger.Info("vehicle state loaded", "vehicles", n)

	registry := tracking.NewRegistry()
	dispatcher := tracking.NewDispatcher(registry, logger, metrics)
	gateway := tracking.NewGateway(store, dispatcher, logger, metrics)
	manager := tracking.NewManager(store, catalog, registry, dispatcher, gateway, tracking.ManagerConfig{
		OutboxSize:   cfg.OutboxSize,
		WriteTimeout: cfg.WriteTimeout,
	}, logger, metrics)

	router := api.NewRouter(api.Deps{
		Store:    store,
		Catalog:  catalog,
		Registry: registry,
		Gateway:  gateway,
		Manager:  manager,
		Auth:     authority,
		Stream:   wsstream.Options{PingInterval: cfg.PingInterval, WriteTimeout: cfg.WriteTimeout},
		Gatherer: reg,
		Logger:   logger,
	})

	// No WriteTimeout: stream connections are long lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "connections", manager.Len())
		manager.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

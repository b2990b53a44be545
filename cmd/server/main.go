// Package main is the entry point for the fleet ledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fleetledger/internal/app"
	"fleetledger/internal/config"
	"fleetledger/internal/domain/topup"
	v1 "fleetledger/internal/infrastructure/http/v1"
	"fleetledger/internal/infrastructure/http/v1/middleware"
	"fleetledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
		Service:     "fleetledger-server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required by the API server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting fleetledger server")

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		Tokens:       middleware.NewJWTService(cfg.JWTSecret, 0),
		HealthChecks: a.HealthChecks(),
		Registry:     a.Registry,
		Movements:    a.Movements,
		Balances:     a.Balances,
		Cached:       a.Cached,
		Storno:       a.Storno,
		Rules:        a.Rules,
		Engine:       a.Engine,
		Recalculator: a.Recalculator,
		Development:  cfg.Development(),
	})

	// Small deployments run the scheduler in the API process instead of
	// a separate worker. The engine lock keeps both safe to run together.
	var wg sync.WaitGroup
	if cfg.TopUpEnabled {
		scheduler := topup.NewScheduler(a.Engine, topup.SchedulerConfig{
			Interval:  cfg.TopUpInterval,
			BatchSize: cfg.TopUpBatchSize,
		}, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.AppPort, "topup_scheduler", cfg.TopUpEnabled)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	cancel()
	wg.Wait()
	log.Info("server stopped")
}

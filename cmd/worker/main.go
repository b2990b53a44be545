// Package main is the entry point for the fleet ledger background worker:
// scheduled fuel card top-ups, card balance recalculation and ledger event
// delivery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fleetledger/internal/app"
	"fleetledger/internal/config"
	"fleetledger/internal/domain/topup"
	"fleetledger/internal/infrastructure/storage/postgres"
	"fleetledger/pkg/logger"
)

const outboxPollInterval = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
		Service:     "fleetledger-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting fleetledger worker")

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	worker := NewWorker(a, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the periodic ledger jobs until its context ends.
type Worker struct {
	app    *app.App
	log    *logger.Logger
	relay  *postgres.OutboxRelay
	topups *topup.Scheduler
}

func NewWorker(a *app.App, log *logger.Logger) *Worker {
	log = log.WithComponent("worker")
	return &Worker{
		app: a,
		log: log,
		relay: postgres.NewOutboxRelay(a.TxManager, 100, postgres.OutboxHandlerFunc(
			func(ctx context.Context, msg *postgres.OutboxMessage) error {
				// Downstream consumers tail the structured log stream.
				log.Infow("ledger event",
					"event", msg.EventType,
					"organization_id", msg.OrganizationID,
					"movement_id", msg.AggregateID,
					"payload", string(msg.Payload),
				)
				return nil
			})),
		topups: topup.NewScheduler(a.Engine, topup.SchedulerConfig{
			Interval:   a.Config.TopUpInterval,
			BatchSize:  a.Config.TopUpBatchSize,
			RunOnStart: true,
		}, log),
	}
}

// Run starts the job loops and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		w.topups.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		w.every(ctx, w.app.Config.RecalcInterval, w.recalculate)
	}()
	go func() {
		defer wg.Done()
		w.every(ctx, outboxPollInterval, w.processOutbox)
	}()
	wg.Wait()
}

func (w *Worker) every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (w *Worker) recalculate(ctx context.Context) {
	res, err := w.app.Recalculator.Run(ctx, nil)
	if err != nil {
		w.log.Errorw("fuel card recalculation failed", "error", err)
		return
	}
	w.log.Infow("fuel card balances recalculated", "cards", res.Cards, "updated", res.Updated)
}

func (w *Worker) processOutbox(ctx context.Context) {
	n, err := w.relay.ProcessBatch(ctx)
	if err != nil {
		w.log.Errorw("outbox batch failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Debugw("processed outbox batch", "count", n)
	}
}

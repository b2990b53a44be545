package topup

import (
	"context"
	"time"

	"fleetledger/pkg/logger"
)

// Runner is the engine as seen by the scheduler.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// SchedulerConfig configures the periodic top-up loop.
type SchedulerConfig struct {
	Interval   time.Duration
	BatchSize  int
	RunOnStart bool
}

// Scheduler calls the engine on a fixed interval until its context ends.
// Several schedulers may run in parallel; the engine lock and row locks
// keep their work disjoint.
type Scheduler struct {
	runner Runner
	cfg    SchedulerConfig
	log    *logger.Logger
	now    func() time.Time
}

func NewScheduler(runner Runner, cfg SchedulerConfig, log *logger.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		log:    log.WithComponent("topup-scheduler"),
		now:    time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Infow("top-up scheduler started", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)

	if s.cfg.RunOnStart {
		s.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("top-up scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.runner.Run(ctx, RunRequest{BatchSize: s.cfg.BatchSize, AsOf: s.now()})
	if err != nil {
		if ctx.Err() == nil {
			s.log.Errorw("top-up run failed", "error", err)
		}
		return
	}
	if res.Processed > 0 || len(res.Errors) > 0 {
		s.log.Infow("top-up tick",
			"processed", res.Processed,
			"topped_up", res.ToppedUp,
			"skipped", res.Skipped,
			"errors", len(res.Errors),
		)
	}
}

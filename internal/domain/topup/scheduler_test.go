package topup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fleetledger/pkg/logger"
)

type countingRunner struct {
	mu   sync.Mutex
	reqs []RunRequest
	err  error
}

func (r *countingRunner) Run(_ context.Context, req RunRequest) (*RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	return &RunResult{Processed: 1, ToppedUp: 1}, nil
}

func (r *countingRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func TestScheduler_TicksUntilCancelled(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, SchedulerConfig{Interval: 5 * time.Millisecond, BatchSize: 7, RunOnStart: true}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.calls() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, req := range runner.reqs {
		assert.Equal(t, 7, req.BatchSize)
		assert.False(t, req.AsOf.IsZero())
	}
}

func TestScheduler_SurvivesRunErrors(t *testing.T) {
	runner := &countingRunner{err: errors.New("db down")}
	s := NewScheduler(runner, SchedulerConfig{Interval: time.Millisecond}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return runner.calls() >= 2 }, time.Second, time.Millisecond)
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(&countingRunner{}, SchedulerConfig{}, logger.Nop())
	assert.Equal(t, time.Minute, s.cfg.Interval)
	assert.Equal(t, DefaultBatchSize, s.cfg.BatchSize)
}

package topup

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/core/tx"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/domain/stock"
	"fleetledger/pkg/logger"
)

var tracer = otel.Tracer("fleetledger/topup")

const (
	// LockName is the advisory lock guarding engine runs.
	LockName = "fuel_card_topup"

	DefaultBatchSize = 100

	retryBaseDelay = 5 * time.Minute
	retryMaxDelay  = 6 * time.Hour
)

// RetryDelay is how long a rule that has failed failures times in a row
// waits before it is claimed again: 5m doubling up to 6h.
func RetryDelay(failures int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < failures && d < retryMaxDelay; i++ {
		d *= 2
	}
	return min(d, retryMaxDelay)
}

// LocationResolver is the part of the location registry the engine needs.
type LocationResolver interface {
	GetOrCreateFuelCardLocation(ctx context.Context, orgID, fuelCardID id.ID) (*locations.StockLocation, error)
	ResolveActive(ctx context.Context, orgID, locationID id.ID) (*locations.StockLocation, error)
	DefaultWarehouseLocation(ctx context.Context, orgID id.ID) (*locations.StockLocation, error)
}

// BalanceReader answers point-in-time balances.
type BalanceReader interface {
	BalanceAt(ctx context.Context, locationID, stockItemID id.ID, asOf time.Time) (decimal.Decimal, error)
}

// Transferer posts TRANSFER movements.
type Transferer interface {
	CreateTransfer(ctx context.Context, in stock.TransferInput) (*stock.Movement, error)
}

// RunRequest parameterizes one engine run.
type RunRequest struct {
	BatchSize int
	// AsOf selects rules with next_run_at <= AsOf; zero means now.
	AsOf time.Time
}

// Engine processes due top-up rules. Each rule runs in its own savepoint so
// one failing rule never undoes the others.
type Engine struct {
	rules     Repository
	locs      LocationResolver
	balances  BalanceReader
	movements Transferer
	txm       tx.Manager
	locker    Locker
	now       func() time.Time
}

func NewEngine(
	rules Repository,
	locs LocationResolver,
	balances BalanceReader,
	movements Transferer,
	txm tx.Manager,
	locker Locker,
) *Engine {
	return &Engine{
		rules:     rules,
		locs:      locs,
		balances:  balances,
		movements: movements,
		txm:       txm,
		locker:    locker,
		now:       time.Now,
	}
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// TopUpRef is the ledger external reference of the top-up of ruleID for periodKey.
func TopUpRef(ruleID id.ID, periodKey string) string {
	return fmt.Sprintf("TOPUP:%s:%s", ruleID, periodKey)
}

// Run processes up to BatchSize due rules.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}
	if req.AsOf.IsZero() {
		req.AsOf = e.now()
	}

	ctx, span := tracer.Start(ctx, "topup.run",
		trace.WithAttributes(
			attribute.Int("topup.batch_size", req.BatchSize),
			attribute.String("topup.as_of", req.AsOf.Format(time.RFC3339)),
		))
	defer span.End()

	result := &RunResult{Errors: []RuleError{}}
	acquired, err := e.locker.TryWithLock(ctx, LockName, func(ctx context.Context) error {
		return e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			rules, err := e.rules.ClaimDueRules(ctx, req.AsOf, e.now(), req.BatchSize)
			if err != nil {
				return fmt.Errorf("claim due rules: %w", err)
			}
			for i := range rules {
				e.process(ctx, &rules[i], result)
			}
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !acquired {
		result.LockBusy = true
		logger.Info(ctx, "top-up run skipped, lock held elsewhere")
		return result, nil
	}

	span.SetAttributes(
		attribute.Int("topup.processed", result.Processed),
		attribute.Int("topup.topped_up", result.ToppedUp),
		attribute.Int("topup.errors", len(result.Errors)),
	)
	logger.Info(ctx, "top-up run finished",
		"processed", result.Processed,
		"topped_up", result.ToppedUp,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (e *Engine) process(ctx context.Context, r *Rule, result *RunResult) {
	result.Processed++

	var outcome Outcome
	err := e.txm.RunInSavepoint(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = e.processRule(ctx, r)
		return err
	})
	if err != nil {
		result.Errors = append(result.Errors, RuleError{RuleID: r.ID, Error: err.Error()})
		e.recordFailure(ctx, r, err)
		return
	}

	switch outcome {
	case OutcomeToppedUp:
		result.ToppedUp++
	default:
		result.Skipped++
	}
	logger.Debug(ctx, "top-up rule processed", "rule_id", r.ID, "outcome", outcome)
}

// recordFailure backs the rule off so a rule that keeps failing cannot
// occupy the head of every batch. It runs in its own savepoint: a failed
// write must not abort the claim transaction for the remaining rules.
func (e *Engine) recordFailure(ctx context.Context, r *Rule, cause error) {
	now := e.now()
	retryAfter := now.Add(RetryDelay(r.FailureCount + 1))
	logger.Warn(ctx, "top-up rule failed",
		"rule_id", r.ID,
		"failures", r.FailureCount+1,
		"retry_after", retryAfter,
		"error", cause,
	)
	err := e.txm.RunInSavepoint(ctx, func(ctx context.Context) error {
		return e.rules.RecordFailure(ctx, r.ID, cause.Error(), now, retryAfter)
	})
	if err != nil {
		logger.Error(ctx, "record top-up failure", "rule_id", r.ID, "error", err)
	}
}

func (e *Engine) processRule(ctx context.Context, r *Rule) (Outcome, error) {
	loc, err := LoadLocation(r.Timezone)
	if err != nil {
		return "", err
	}
	periodKey, err := PeriodKey(r.ScheduleType, r.NextRunAt, loc)
	if err != nil {
		return "", err
	}
	next, err := NextRun(r.ScheduleType, r.NextRunAt, loc)
	if err != nil {
		return "", err
	}

	card, err := e.locs.GetOrCreateFuelCardLocation(ctx, r.OrganizationID, r.FuelCardID)
	if err != nil {
		return "", fmt.Errorf("fuel card location: %w", err)
	}

	outcome, err := e.topUp(ctx, r, card, periodKey)
	if err != nil {
		return "", err
	}

	if err := e.rules.AdvanceSchedule(ctx, r.ID, e.now(), next); err != nil {
		return "", fmt.Errorf("advance schedule: %w", err)
	}
	return outcome, nil
}

func (e *Engine) topUp(ctx context.Context, r *Rule, card *locations.StockLocation, periodKey string) (Outcome, error) {
	if r.MinBalanceLiters != nil {
		bal, err := e.balances.BalanceAt(ctx, card.ID, r.StockItemID, r.NextRunAt)
		if err != nil {
			return "", fmt.Errorf("card balance: %w", err)
		}
		if bal.GreaterThanOrEqual(*r.MinBalanceLiters) {
			return OutcomeSkippedThreshold, nil
		}
	}

	source, err := e.source(ctx, r)
	if err != nil {
		return "", err
	}

	rec := &FuelCardTransaction{
		ID:             id.New(),
		OrganizationID: r.OrganizationID,
		FuelCardID:     r.FuelCardID,
		RuleID:         id.Ptr(r.ID),
		Type:           TransactionTopUp,
		PeriodKey:      periodKey,
		AmountLiters:   r.AmountLiters,
		CreatedAt:      e.now(),
	}

	err = e.txm.RunInSavepoint(ctx, func(ctx context.Context) error {
		if err := e.rules.InsertTransaction(ctx, rec); err != nil {
			return err
		}

		docType := stock.DocumentTypeFuelCardTop
		docID := rec.ID.String()
		ref := TopUpRef(r.ID, periodKey)
		mv, err := e.movements.CreateTransfer(ctx, stock.TransferInput{
			MovementInput: stock.MovementInput{
				OrganizationID: r.OrganizationID,
				StockItemID:    r.StockItemID,
				Quantity:       r.AmountLiters,
				OccurredAt:     r.NextRunAt,
				OccurredSeq:    stock.SeqTopUp,
				DocumentType:   &docType,
				DocumentID:     &docID,
				ExternalRef:    &ref,
				Idempotent:     true,
			},
			FromStockLocationID: source.ID,
			ToStockLocationID:   card.ID,
		})
		if err != nil {
			return fmt.Errorf("post top-up transfer: %w", err)
		}
		return e.rules.LinkTransactionMovement(ctx, rec.ID, mv.ID)
	})
	if apperror.IsDuplicate(err) {
		return OutcomeSkippedDuplicate, nil
	}
	if err != nil {
		return "", err
	}
	return OutcomeToppedUp, nil
}

func (e *Engine) source(ctx context.Context, r *Rule) (*locations.StockLocation, error) {
	if r.SourceStockLocationID != nil {
		loc, err := e.locs.ResolveActive(ctx, r.OrganizationID, *r.SourceStockLocationID)
		if err != nil {
			return nil, fmt.Errorf("source location: %w", err)
		}
		return loc, nil
	}
	loc, err := e.locs.DefaultWarehouseLocation(ctx, r.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("default warehouse location: %w", err)
	}
	return loc, nil
}

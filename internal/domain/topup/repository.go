package topup

import (
	"context"
	"time"

	"fleetledger/internal/core/id"
)

// Repository persists top-up rules and fuel card transactions.
type Repository interface {
	CreateRule(ctx context.Context, r *Rule) error
	GetRule(ctx context.Context, orgID, ruleID id.ID) (*Rule, error)
	ListRules(ctx context.Context, orgID id.ID) ([]Rule, error)
	SetRuleActive(ctx context.Context, orgID, ruleID id.ID, active bool, updatedAt time.Time) error

	// ClaimDueRules locks up to limit active rules with next_run_at <= asOf
	// whose retry_after is unset or <= now, skipping rows locked by other
	// workers. Rules without failures come first, then oldest next_run_at.
	// Must run inside a transaction; the locks are held until it ends.
	ClaimDueRules(ctx context.Context, asOf, now time.Time, limit int) ([]Rule, error)

	// AdvanceSchedule stores the outcome of a processed period and clears
	// the failure state.
	AdvanceSchedule(ctx context.Context, ruleID id.ID, lastRunAt, nextRunAt time.Time) error

	// RecordFailure increments failure_count and stores the error and the
	// earliest time the rule may be claimed again.
	RecordFailure(ctx context.Context, ruleID id.ID, message string, failedAt, retryAfter time.Time) error

	// InsertTransaction fails with DUPLICATE_ENTRY when the card already has a
	// transaction of the same type for the period.
	InsertTransaction(ctx context.Context, t *FuelCardTransaction) error

	LinkTransactionMovement(ctx context.Context, transactionID, movementID id.ID) error

	ListTransactions(ctx context.Context, orgID, fuelCardID id.ID) ([]FuelCardTransaction, error)
}

// Locker provides a cluster-wide mutual exclusion scope for singleton jobs.
type Locker interface {
	// TryWithLock runs fn while holding the named lock. When another holder
	// has it, fn is not run and acquired is false.
	TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (acquired bool, err error)
}

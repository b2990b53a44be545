// Package topup runs scheduled fuel-card top-ups: due rules move fuel from a
// warehouse to a card once per schedule period.
package topup

import (
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/id"
)

// Rule schedules a recurring transfer into a fuel card.
type Rule struct {
	ID               id.ID            `db:"id" json:"id"`
	OrganizationID   id.ID            `db:"organization_id" json:"organizationId"`
	FuelCardID       id.ID            `db:"fuel_card_id" json:"fuelCardId"`
	ScheduleType     ScheduleType     `db:"schedule_type" json:"scheduleType"`
	AmountLiters     decimal.Decimal  `db:"amount_liters" json:"amountLiters"`
	MinBalanceLiters *decimal.Decimal `db:"min_balance_liters" json:"minBalanceLiters,omitempty"`
	StockItemID      id.ID            `db:"stock_item_id" json:"stockItemId"`

	// SourceStockLocationID falls back to the organization's default warehouse.
	SourceStockLocationID *id.ID `db:"source_stock_location_id" json:"sourceStockLocationId,omitempty"`

	// Timezone is an IANA name; empty means UTC.
	Timezone  string     `db:"timezone" json:"timezone"`
	IsActive  bool       `db:"is_active" json:"isActive"`
	LastRunAt *time.Time `db:"last_run_at" json:"lastRunAt,omitempty"`
	NextRunAt time.Time  `db:"next_run_at" json:"nextRunAt"`

	// Consecutive failed runs of the current period. The rule is not
	// claimed again before RetryAfter; a successful run clears all three.
	FailureCount int        `db:"failure_count" json:"failureCount"`
	LastError    *string    `db:"last_error" json:"lastError,omitempty"`
	RetryAfter   *time.Time `db:"retry_after" json:"retryAfter,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// TransactionType classifies fuel card transactions.
type TransactionType string

const TransactionTopUp TransactionType = "TOPUP"

// FuelCardTransaction records that a card was handled for a period.
// (organization, card, type, period key) is unique.
type FuelCardTransaction struct {
	ID              id.ID           `db:"id" json:"id"`
	OrganizationID  id.ID           `db:"organization_id" json:"organizationId"`
	FuelCardID      id.ID           `db:"fuel_card_id" json:"fuelCardId"`
	RuleID          *id.ID          `db:"rule_id" json:"ruleId,omitempty"`
	Type            TransactionType `db:"transaction_type" json:"type"`
	PeriodKey       string          `db:"period_key" json:"periodKey"`
	AmountLiters    decimal.Decimal `db:"amount_liters" json:"amountLiters"`
	StockMovementID *id.ID          `db:"stock_movement_id" json:"stockMovementId,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// Outcome of processing one rule.
type Outcome string

const (
	OutcomeToppedUp         Outcome = "TOPPED_UP"
	OutcomeSkippedThreshold Outcome = "SKIPPED_THRESHOLD"
	OutcomeSkippedDuplicate Outcome = "SKIPPED_DUPLICATE"
)

// RuleError reports a rule that failed during a run.
type RuleError struct {
	RuleID id.ID  `json:"ruleId"`
	Error  string `json:"error"`
}

// RunResult summarizes one engine run.
type RunResult struct {
	Processed int         `json:"processed"`
	ToppedUp  int         `json:"toppedUp"`
	Skipped   int         `json:"skipped"`
	Errors    []RuleError `json:"errors"`
	// LockBusy is set when another run held the job lock and nothing was processed.
	LockBusy bool `json:"lockBusy"`
}

// Package stock is the append-only fuel and goods ledger: movements,
// point-in-time balances, and storno reversal of posted documents.
package stock

import (
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/id"
)

// Ordering of movements that share an occurredAt. Lower sequences sort first.
// Storno compensations copy the sequence of the movement they reverse.
const (
	SeqManual  = 10
	SeqWaybill = 15
	SeqTopUp   = 20
)

// Reserved document types.
const (
	DocumentTypeStorno      = "STORNO"
	DocumentTypeFuelCardTop = "FUEL_CARD_TOPUP"
)

// Movement is one immutable ledger entry.
// Only the void columns may change after insert.
type Movement struct {
	ID             id.ID           `db:"id" json:"id"`
	OrganizationID id.ID           `db:"organization_id" json:"organizationId"`
	StockItemID    id.ID           `db:"stock_item_id" json:"stockItemId"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Type           MovementType    `db:"movement_type" json:"movementType"`

	// Single-location variants (INCOME, EXPENSE, ADJUSTMENT).
	StockLocationID *id.ID `db:"stock_location_id" json:"stockLocationId,omitempty"`

	// TRANSFER endpoints.
	FromStockLocationID *id.ID `db:"from_stock_location_id" json:"fromStockLocationId,omitempty"`
	ToStockLocationID   *id.ID `db:"to_stock_location_id" json:"toStockLocationId,omitempty"`

	OccurredAt  time.Time `db:"occurred_at" json:"occurredAt"`
	OccurredSeq int       `db:"occurred_seq" json:"occurredSeq"`

	DocumentType *string `db:"document_type" json:"documentType,omitempty"`
	DocumentID   *string `db:"document_id" json:"documentId,omitempty"`
	ExternalRef  *string `db:"external_ref" json:"externalRef,omitempty"`

	// StornoOfMovementID is set on compensating entries.
	StornoOfMovementID *id.ID `db:"storno_of_movement_id" json:"stornoOfMovementId,omitempty"`

	IsVoid         bool       `db:"is_void" json:"isVoid"`
	VoidedAt       *time.Time `db:"voided_at" json:"voidedAt,omitempty"`
	VoidedByUserID *string    `db:"voided_by_user_id" json:"voidedByUserId,omitempty"`
	VoidReason     *string    `db:"void_reason" json:"voidReason,omitempty"`

	Comment         *string   `db:"comment" json:"comment,omitempty"`
	CreatedByUserID *string   `db:"created_by_user_id" json:"createdByUserId,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// ContributesToBalance reports whether the movement counts towards balances.
// Voided originals and the compensations that reversed them are both excluded,
// so a storno restores every balance to its never-posted value while keeping
// the full history visible.
func (m *Movement) ContributesToBalance() bool {
	return !m.IsVoid && m.StornoOfMovementID == nil
}

// IsStorno reports whether m is a compensating entry.
func (m *Movement) IsStorno() bool {
	return m.StornoOfMovementID != nil
}

// Touches reports whether m affects locationID in any role.
func (m *Movement) Touches(locationID id.ID) bool {
	for _, ref := range []*id.ID{m.StockLocationID, m.FromStockLocationID, m.ToStockLocationID} {
		if ref != nil && *ref == locationID {
			return true
		}
	}
	return false
}

// LocationBalance is the balance of one location for one stock item.
type LocationBalance struct {
	StockLocationID id.ID           `db:"stock_location_id" json:"stockLocationId"`
	Balance         decimal.Decimal `db:"balance" json:"balance"`
}

// MovementFilter selects movements for history listings.
type MovementFilter struct {
	OrganizationID  id.ID
	StockLocationID *id.ID // matches any role
	StockItemID     *id.ID
	DocumentType    *string
	DocumentID      *string
	From            *time.Time // inclusive
	To              *time.Time // inclusive
	IncludeVoid     bool
	Limit           int
	Offset          int
}

// StatementLine is one movement as seen from a single location.
type StatementLine struct {
	Movement       Movement        `json:"movement"`
	Delta          decimal.Decimal `json:"delta"`
	RunningBalance decimal.Decimal `json:"runningBalance"`
	Counted        bool            `json:"counted"`
}

// Statement is the movement history of a location for one stock item.
type Statement struct {
	StockLocationID id.ID           `json:"stockLocationId"`
	StockItemID     id.ID           `json:"stockItemId"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	Opening         decimal.Decimal `json:"opening"`
	Receipt         decimal.Decimal `json:"receipt"`
	Expense         decimal.Decimal `json:"expense"`
	Closing         decimal.Decimal `json:"closing"`
	Lines           []StatementLine `json:"lines"`
}

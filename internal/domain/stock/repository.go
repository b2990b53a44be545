package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/id"
)

// Repository is the ledger store. It only ever inserts movements and flips
// their void columns; balances are always computed from the rows.
type Repository interface {
	// Insert appends a movement. A second movement with the same
	// (organization, externalRef) fails with a DUPLICATE_ENTRY AppError.
	Insert(ctx context.Context, m *Movement) error

	// GetByID returns NotFound for unknown ids and ids of other organizations.
	GetByID(ctx context.Context, orgID, movementID id.ID) (*Movement, error)

	// GetByExternalRef returns NotFound when no movement carries ref.
	GetByExternalRef(ctx context.Context, orgID id.ID, ref string) (*Movement, error)

	List(ctx context.Context, filter MovementFilter) ([]Movement, error)

	// ListByDocument returns the document's movements ordered by
	// occurred_at, occurred_seq, created_at, id.
	ListByDocument(ctx context.Context, orgID id.ID, documentType, documentID string) ([]Movement, error)

	// ListForLocation returns every movement touching locationID for the stock
	// item within [from, to], voided ones included, in ledger order.
	ListForLocation(ctx context.Context, locationID, stockItemID id.ID, from, to time.Time) ([]Movement, error)

	// Void marks non-void movements as voided and returns how many rows changed.
	Void(ctx context.Context, orgID id.ID, movementIDs []id.ID, voidedAt time.Time, userID *string, reason string) (int64, error)

	// BalanceAt sums the contributing movements of locationID with occurred_at <= asOf.
	BalanceAt(ctx context.Context, locationID, stockItemID id.ID, asOf time.Time) (decimal.Decimal, error)

	// BalancesAt returns the balance of every location of the organization in one query.
	BalancesAt(ctx context.Context, orgID, stockItemID id.ID, asOf time.Time) ([]LocationBalance, error)
}

// AuditRecorder is the external audit log the storno service reports into.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditEntry describes a storno for the audit log.
type AuditEntry struct {
	OrganizationID id.ID
	Action         string
	EntityType     string
	EntityID       string
	UserID         *string
	Reason         string
	Payload        any
	RecordedAt     time.Time
}

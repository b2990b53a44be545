package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/core/tx"
	"fleetledger/internal/core/types"
	"fleetledger/internal/domain"
	"fleetledger/internal/domain/locations"
	"fleetledger/pkg/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// LocationResolver is the part of the location registry the ledger needs.
type LocationResolver interface {
	Get(ctx context.Context, orgID, locationID id.ID) (*locations.StockLocation, error)
	ResolveActive(ctx context.Context, orgID, locationID id.ID) (*locations.StockLocation, error)
	Directory() locations.Directory
}

// MovementInput holds the fields shared by every movement variant.
type MovementInput struct {
	OrganizationID id.ID
	StockItemID    id.ID
	Quantity       decimal.Decimal

	// OccurredAt defaults to now, OccurredSeq to SeqManual.
	OccurredAt  time.Time
	OccurredSeq int

	DocumentType *string
	DocumentID   *string
	ExternalRef  *string
	Comment      *string
	UserID       *string

	// Idempotent makes a repeated ExternalRef return the existing movement
	// instead of failing with DUPLICATE_ENTRY.
	Idempotent bool
}

// SingleLocationInput is the input of INCOME, EXPENSE and ADJUSTMENT.
type SingleLocationInput struct {
	MovementInput
	StockLocationID id.ID
}

// TransferInput is the input of TRANSFER.
type TransferInput struct {
	MovementInput
	FromStockLocationID id.ID
	ToStockLocationID   id.ID
}

// MovementService validates and appends ledger movements.
// It never touches denormalized balances.
type MovementService struct {
	repo  Repository
	locs  LocationResolver
	txm   tx.Manager
	hooks *domain.HookRegistry[*Movement]
	now   func() time.Time
}

func NewMovementService(repo Repository, locs LocationResolver, txm tx.Manager) *MovementService {
	return &MovementService{
		repo:  repo,
		locs:  locs,
		txm:   txm,
		hooks: domain.NewHookRegistry[*Movement](),
		now:   time.Now,
	}
}

// Hooks returns the hook registry for external registration.
func (s *MovementService) Hooks() *domain.HookRegistry[*Movement] {
	return s.hooks
}

func (s *MovementService) CreateIncome(ctx context.Context, in SingleLocationInput) (*Movement, error) {
	return s.createSingle(ctx, MovementIncome, in)
}

func (s *MovementService) CreateExpense(ctx context.Context, in SingleLocationInput) (*Movement, error) {
	return s.createSingle(ctx, MovementExpense, in)
}

// CreateAdjustment records a signed correction; quantity may be negative but not zero.
func (s *MovementService) CreateAdjustment(ctx context.Context, in SingleLocationInput) (*Movement, error) {
	return s.createSingle(ctx, MovementAdjustment, in)
}

func (s *MovementService) CreateTransfer(ctx context.Context, in TransferInput) (*Movement, error) {
	m := s.build(MovementTransfer, in.MovementInput)
	m.FromStockLocationID = id.Ptr(in.FromStockLocationID)
	m.ToStockLocationID = id.Ptr(in.ToStockLocationID)
	if err := s.validate(ctx, m); err != nil {
		return nil, err
	}
	return s.append(ctx, m, in.Idempotent)
}

func (s *MovementService) createSingle(ctx context.Context, t MovementType, in SingleLocationInput) (*Movement, error) {
	m := s.build(t, in.MovementInput)
	m.StockLocationID = id.Ptr(in.StockLocationID)
	if err := s.validate(ctx, m); err != nil {
		return nil, err
	}
	return s.append(ctx, m, in.Idempotent)
}

// build truncates timestamps to microseconds, the precision Postgres keeps,
// so a balance as of OccurredAt always includes the movement.
func (s *MovementService) build(t MovementType, in MovementInput) *Movement {
	now := s.now().Truncate(time.Microsecond)
	m := &Movement{
		ID:              id.New(),
		OrganizationID:  in.OrganizationID,
		StockItemID:     in.StockItemID,
		Quantity:        in.Quantity,
		Type:            t,
		OccurredAt:      in.OccurredAt,
		OccurredSeq:     in.OccurredSeq,
		DocumentType:    blankToNil(in.DocumentType),
		DocumentID:      blankToNil(in.DocumentID),
		ExternalRef:     blankToNil(in.ExternalRef),
		Comment:         blankToNil(in.Comment),
		CreatedByUserID: blankToNil(in.UserID),
		CreatedAt:       now,
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = now
	}
	m.OccurredAt = m.OccurredAt.Truncate(time.Microsecond)
	if m.OccurredSeq == 0 {
		m.OccurredSeq = SeqManual
	}
	return m
}

// validate checks the shape and sign rules and that every referenced
// entity belongs to the movement's organization.
func (s *MovementService) validate(ctx context.Context, m *Movement) error {
	if err := m.validateShape(); err != nil {
		return err
	}
	if m.DocumentType != nil && strings.EqualFold(*m.DocumentType, DocumentTypeStorno) {
		return apperror.NewFieldValidation("documentType", "document type STORNO is reserved")
	}

	itemOrg, err := s.locs.Directory().OwnerOrganization(ctx, locations.OwnerStockItem, m.StockItemID)
	if err != nil && !apperror.IsNotFound(err) {
		return fmt.Errorf("resolve stock item: %w", err)
	}
	if err != nil || itemOrg != m.OrganizationID {
		return apperror.NewFieldValidation("stockItemId", "stock item does not belong to the organization").
			WithDetail("stockItemId", m.StockItemID)
	}

	check := func(field string, ref *id.ID) error {
		_, err := s.locs.ResolveActive(ctx, m.OrganizationID, *ref)
		if apperror.IsNotFound(err) {
			return apperror.NewFieldValidation(field, "stock location does not belong to the organization").
				WithDetail("locationId", *ref)
		}
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeValidation {
			return appErr.WithDetail("field", field)
		}
		return err
	}
	if m.Type.Paired() {
		if err := check("fromStockLocationId", m.FromStockLocationID); err != nil {
			return err
		}
		return check("toStockLocationId", m.ToStockLocationID)
	}
	return check("stockLocationId", m.StockLocationID)
}

func (m *Movement) validateShape() error {
	if !m.Type.Valid() {
		return apperror.NewFieldValidation("movementType", fmt.Sprintf("unknown movement type %q", m.Type))
	}
	if id.IsNil(m.OrganizationID) {
		return apperror.NewFieldValidation("organizationId", "organization is required")
	}
	if id.IsNil(m.StockItemID) {
		return apperror.NewFieldValidation("stockItemId", "stock item is required")
	}

	if m.Type.SignedQuantity() {
		if m.Quantity.IsZero() {
			return apperror.NewFieldValidation("quantity", "adjustment quantity must not be zero")
		}
	} else if !m.Quantity.IsPositive() {
		return apperror.NewFieldValidation("quantity", "quantity must be positive")
	}
	if !types.FitsScale(m.Quantity) {
		return apperror.NewFieldValidation("quantity",
			fmt.Sprintf("quantity has more than %d fractional digits", types.QuantityScale))
	}

	if m.Type.Paired() {
		if m.StockLocationID != nil {
			return apperror.NewFieldValidation("stockLocationId", "transfer uses from/to locations")
		}
		if m.FromStockLocationID == nil || id.IsNil(*m.FromStockLocationID) {
			return apperror.NewFieldValidation("fromStockLocationId", "source location is required")
		}
		if m.ToStockLocationID == nil || id.IsNil(*m.ToStockLocationID) {
			return apperror.NewFieldValidation("toStockLocationId", "destination location is required")
		}
		if *m.FromStockLocationID == *m.ToStockLocationID {
			return apperror.NewFieldValidation("toStockLocationId", "transfer source and destination must differ")
		}
		return nil
	}

	if m.FromStockLocationID != nil || m.ToStockLocationID != nil {
		return apperror.NewFieldValidation("stockLocationId", fmt.Sprintf("%s uses a single location", m.Type))
	}
	if m.StockLocationID == nil || id.IsNil(*m.StockLocationID) {
		return apperror.NewFieldValidation("stockLocationId", "stock location is required")
	}
	return nil
}

// append inserts a validated movement. With idempotent set, an existing
// movement with the same external reference is returned instead.
func (s *MovementService) append(ctx context.Context, m *Movement, idempotent bool) (*Movement, error) {
	var (
		result  *Movement
		created bool
	)

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if m.ExternalRef != nil {
			existing, err := s.repo.GetByExternalRef(ctx, m.OrganizationID, *m.ExternalRef)
			switch {
			case err == nil:
				if !idempotent {
					return apperror.NewDuplicate("stock_movement", "externalRef", *m.ExternalRef)
				}
				result = existing
				return nil
			case !apperror.IsNotFound(err):
				return fmt.Errorf("lookup external ref: %w", err)
			}
		}

		err := s.txm.RunInSavepoint(ctx, func(ctx context.Context) error {
			return s.repo.Insert(ctx, m)
		})
		if err != nil {
			if !apperror.IsDuplicate(err) || !idempotent || m.ExternalRef == nil {
				return err
			}
			existing, ferr := s.repo.GetByExternalRef(ctx, m.OrganizationID, *m.ExternalRef)
			if ferr != nil {
				return fmt.Errorf("re-fetch movement after conflict: %w", ferr)
			}
			result = existing
			return nil
		}

		result = m
		created = true
		return s.hooks.Run(ctx, domain.AfterPost, m)
	})
	if err != nil {
		return nil, err
	}

	if created {
		logger.Info(ctx, "stock movement posted",
			"movement_id", m.ID,
			"type", m.Type,
			"stock_item_id", m.StockItemID,
			"quantity", m.Quantity.String(),
		)
	}
	return result, nil
}

// GetMovement returns one movement of the organization.
func (s *MovementService) GetMovement(ctx context.Context, orgID, movementID id.ID) (*Movement, error) {
	return s.repo.GetByID(ctx, orgID, movementID)
}

// ListMovements returns movement history, newest first.
func (s *MovementService) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

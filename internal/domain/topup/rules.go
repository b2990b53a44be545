package topup

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/core/types"
	"fleetledger/internal/domain/locations"
	"fleetledger/pkg/logger"
)

// RuleLocations is what rule management needs from the location registry.
type RuleLocations interface {
	ResolveActive(ctx context.Context, orgID, locationID id.ID) (*locations.StockLocation, error)
	Directory() locations.Directory
}

// CreateRuleInput describes a new top-up rule.
type CreateRuleInput struct {
	OrganizationID        id.ID
	FuelCardID            id.ID
	StockItemID           id.ID
	ScheduleType          ScheduleType
	AmountLiters          decimal.Decimal
	MinBalanceLiters      *decimal.Decimal
	SourceStockLocationID *id.ID
	Timezone              string
	// FirstRunAt defaults to the start of the current period, so a new
	// rule covers the period it was created in.
	FirstRunAt *time.Time
}

// RuleService manages top-up rules.
type RuleService struct {
	repo Repository
	locs RuleLocations
	now  func() time.Time
}

func NewRuleService(repo Repository, locs RuleLocations) *RuleService {
	return &RuleService{repo: repo, locs: locs, now: time.Now}
}

var tooPrecise = fmt.Sprintf("liters have more than %d fractional digits", types.QuantityScale)

func (s *RuleService) CreateRule(ctx context.Context, in CreateRuleInput) (*Rule, error) {
	if !in.ScheduleType.Valid() {
		return nil, apperror.NewFieldValidation("scheduleType", "schedule type must be DAILY, WEEKLY or MONTHLY")
	}
	if !in.AmountLiters.IsPositive() {
		return nil, apperror.NewFieldValidation("amountLiters", "amount must be positive")
	}
	if !types.FitsScale(in.AmountLiters) {
		return nil, apperror.NewFieldValidation("amountLiters", tooPrecise)
	}
	if in.MinBalanceLiters != nil {
		if in.MinBalanceLiters.IsNegative() {
			return nil, apperror.NewFieldValidation("minBalanceLiters", "minimum balance must not be negative")
		}
		if !types.FitsScale(*in.MinBalanceLiters) {
			return nil, apperror.NewFieldValidation("minBalanceLiters", tooPrecise)
		}
	}
	loc, err := LoadLocation(in.Timezone)
	if err != nil {
		return nil, apperror.NewFieldValidation("timezone", err.Error())
	}

	if err := s.checkOwner(ctx, in.OrganizationID, locations.OwnerFuelCard, in.FuelCardID, "fuelCardId"); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, in.OrganizationID, locations.OwnerStockItem, in.StockItemID, "stockItemId"); err != nil {
		return nil, err
	}
	if in.SourceStockLocationID != nil {
		src, err := s.locs.ResolveActive(ctx, in.OrganizationID, *in.SourceStockLocationID)
		if apperror.IsNotFound(err) {
			return nil, apperror.NewFieldValidation("sourceStockLocationId", "source location does not belong to the organization")
		}
		if err != nil {
			return nil, err
		}
		if src.Type == locations.TypeFuelCard && src.OwnerID() == in.FuelCardID {
			return nil, apperror.NewFieldValidation("sourceStockLocationId", "source must differ from the topped-up card")
		}
	}

	now := s.now().Truncate(time.Microsecond)
	next := now
	if in.FirstRunAt != nil {
		next = in.FirstRunAt.Truncate(time.Microsecond)
	} else if next, err = PeriodStart(in.ScheduleType, now, loc); err != nil {
		return nil, apperror.NewInternal(err)
	}

	r := &Rule{
		ID:                    id.New(),
		OrganizationID:        in.OrganizationID,
		FuelCardID:            in.FuelCardID,
		ScheduleType:          in.ScheduleType,
		AmountLiters:          in.AmountLiters,
		MinBalanceLiters:      in.MinBalanceLiters,
		StockItemID:           in.StockItemID,
		SourceStockLocationID: in.SourceStockLocationID,
		Timezone:              in.Timezone,
		IsActive:              true,
		NextRunAt:             next,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.CreateRule(ctx, r); err != nil {
		return nil, err
	}

	logger.Info(ctx, "top-up rule created",
		"rule_id", r.ID,
		"fuel_card_id", r.FuelCardID,
		"schedule", r.ScheduleType,
		"next_run_at", r.NextRunAt,
	)
	return r, nil
}

func (s *RuleService) checkOwner(ctx context.Context, orgID id.ID, kind locations.OwnerKind, ownerID id.ID, field string) error {
	owner, err := s.locs.Directory().OwnerOrganization(ctx, kind, ownerID)
	if err != nil && !apperror.IsNotFound(err) {
		return err
	}
	if err != nil || owner != orgID {
		return apperror.NewFieldValidation(field, string(kind)+" does not belong to the organization")
	}
	return nil
}

func (s *RuleService) GetRule(ctx context.Context, orgID, ruleID id.ID) (*Rule, error) {
	return s.repo.GetRule(ctx, orgID, ruleID)
}

func (s *RuleService) ListRules(ctx context.Context, orgID id.ID) ([]Rule, error) {
	return s.repo.ListRules(ctx, orgID)
}

// SetActive pauses or resumes a rule. A resumed rule keeps its next_run_at
// and catches up one period per run.
func (s *RuleService) SetActive(ctx context.Context, orgID, ruleID id.ID, active bool) (*Rule, error) {
	if err := s.repo.SetRuleActive(ctx, orgID, ruleID, active, s.now()); err != nil {
		return nil, err
	}
	return s.repo.GetRule(ctx, orgID, ruleID)
}

// ListTransactions returns the top-up history of a card.
func (s *RuleService) ListTransactions(ctx context.Context, orgID, fuelCardID id.ID) ([]FuelCardTransaction, error) {
	return s.repo.ListTransactions(ctx, orgID, fuelCardID)
}

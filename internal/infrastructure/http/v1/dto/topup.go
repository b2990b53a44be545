package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/topup"
)

// CreateRuleRequest creates a scheduled top-up rule.
type CreateRuleRequest struct {
	FuelCardID            string           `json:"fuelCardId" binding:"required"`
	StockItemID           string           `json:"stockItemId" binding:"required"`
	ScheduleType          string           `json:"scheduleType" binding:"required"`
	AmountLiters          decimal.Decimal  `json:"amountLiters"`
	MinBalanceLiters      *decimal.Decimal `json:"minBalanceLiters"`
	SourceStockLocationID string           `json:"sourceStockLocationId"`
	Timezone              string           `json:"timezone"`
	FirstRunAt            *time.Time       `json:"firstRunAt"`
}

func (r *CreateRuleRequest) ToInput(orgID id.ID) (topup.CreateRuleInput, error) {
	in := topup.CreateRuleInput{
		OrganizationID: orgID,
		ScheduleType:   topup.ScheduleType(r.ScheduleType),
		Timezone:       r.Timezone,
		FirstRunAt:     r.FirstRunAt,
	}
	var err error
	if in.FuelCardID, err = ParseID("fuelCardId", r.FuelCardID); err != nil {
		return in, err
	}
	if in.StockItemID, err = ParseID("stockItemId", r.StockItemID); err != nil {
		return in, err
	}
	if in.SourceStockLocationID, err = ParseOptionalID("sourceStockLocationId", r.SourceStockLocationID); err != nil {
		return in, err
	}
	if in.AmountLiters, err = ParseQuantity("amountLiters", r.AmountLiters); err != nil {
		return in, err
	}
	if r.MinBalanceLiters != nil {
		minBal, err := ParseQuantity("minBalanceLiters", *r.MinBalanceLiters)
		if err != nil {
			return in, err
		}
		in.MinBalanceLiters = &minBal
	}
	return in, nil
}

// SetActiveRequest toggles a rule.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// RunRequest triggers one engine run.
type RunRequest struct {
	BatchSize int        `json:"batchSize" binding:"min=0"`
	AsOf      *time.Time `json:"asOf"`
}

func (r *RunRequest) ToRequest() topup.RunRequest {
	req := topup.RunRequest{BatchSize: r.BatchSize}
	if r.AsOf != nil {
		req.AsOf = *r.AsOf
	}
	return req
}

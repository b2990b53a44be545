package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
)

// MovementRequest holds the fields shared by every movement variant.
// Quantity accepts a JSON number or string.
type MovementRequest struct {
	StockItemID  string          `json:"stockItemId" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	OccurredAt   *time.Time      `json:"occurredAt"`
	OccurredSeq  int             `json:"occurredSeq"`
	DocumentType *string         `json:"documentType"`
	DocumentID   *string         `json:"documentId"`
	ExternalRef  *string         `json:"externalRef"`
	Comment      *string         `json:"comment"`
}

func (r *MovementRequest) toInput(orgID id.ID, userID string) (stock.MovementInput, error) {
	itemID, err := ParseID("stockItemId", r.StockItemID)
	if err != nil {
		return stock.MovementInput{}, err
	}
	qty, err := ParseQuantity("quantity", r.Quantity)
	if err != nil {
		return stock.MovementInput{}, err
	}
	in := stock.MovementInput{
		OrganizationID: orgID,
		StockItemID:    itemID,
		Quantity:       qty,
		OccurredSeq:    r.OccurredSeq,
		DocumentType:   r.DocumentType,
		DocumentID:     r.DocumentID,
		ExternalRef:    r.ExternalRef,
		Comment:        r.Comment,
	}
	if r.OccurredAt != nil {
		in.OccurredAt = *r.OccurredAt
	}
	if userID != "" {
		in.UserID = &userID
	}
	return in, nil
}

// SingleLocationRequest creates an INCOME, EXPENSE or ADJUSTMENT.
type SingleLocationRequest struct {
	MovementRequest
	StockLocationID string `json:"stockLocationId" binding:"required"`
}

func (r *SingleLocationRequest) ToInput(orgID id.ID, userID string) (stock.SingleLocationInput, error) {
	base, err := r.toInput(orgID, userID)
	if err != nil {
		return stock.SingleLocationInput{}, err
	}
	locID, err := ParseID("stockLocationId", r.StockLocationID)
	if err != nil {
		return stock.SingleLocationInput{}, err
	}
	return stock.SingleLocationInput{MovementInput: base, StockLocationID: locID}, nil
}

// TransferRequest creates a TRANSFER.
type TransferRequest struct {
	MovementRequest
	FromStockLocationID string `json:"fromStockLocationId" binding:"required"`
	ToStockLocationID   string `json:"toStockLocationId" binding:"required"`
}

func (r *TransferRequest) ToInput(orgID id.ID, userID string) (stock.TransferInput, error) {
	base, err := r.toInput(orgID, userID)
	if err != nil {
		return stock.TransferInput{}, err
	}
	from, err := ParseID("fromStockLocationId", r.FromStockLocationID)
	if err != nil {
		return stock.TransferInput{}, err
	}
	to, err := ParseID("toStockLocationId", r.ToStockLocationID)
	if err != nil {
		return stock.TransferInput{}, err
	}
	return stock.TransferInput{MovementInput: base, FromStockLocationID: from, ToStockLocationID: to}, nil
}

// MovementListQuery filters GET /stock/movements.
type MovementListQuery struct {
	LocationID   string `form:"locationId"`
	StockItemID  string `form:"stockItemId"`
	DocumentType string `form:"documentType"`
	DocumentID   string `form:"documentId"`
	From         string `form:"from"`
	To           string `form:"to"`
	IncludeVoid  bool   `form:"includeVoid"`
	Limit        int    `form:"limit" binding:"min=0,max=1000"`
	Offset       int    `form:"offset" binding:"min=0"`
}

func (q *MovementListQuery) ToFilter(orgID id.ID) (stock.MovementFilter, error) {
	f := stock.MovementFilter{
		OrganizationID: orgID,
		IncludeVoid:    q.IncludeVoid,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	var err error
	if f.StockLocationID, err = ParseOptionalID("locationId", q.LocationID); err != nil {
		return f, err
	}
	if f.StockItemID, err = ParseOptionalID("stockItemId", q.StockItemID); err != nil {
		return f, err
	}
	if f.From, err = ParseOptionalTime("from", q.From); err != nil {
		return f, err
	}
	if f.To, err = ParseOptionalTime("to", q.To); err != nil {
		return f, err
	}
	if q.DocumentType != "" {
		f.DocumentType = &q.DocumentType
	}
	if q.DocumentID != "" {
		f.DocumentID = &q.DocumentID
	}
	return f, nil
}

// BalanceResponse is the balance of one location for one item.
type BalanceResponse struct {
	StockLocationID string          `json:"stockLocationId"`
	StockItemID     string          `json:"stockItemId"`
	AsOf            *time.Time      `json:"asOf,omitempty"`
	Balance         decimal.Decimal `json:"balance"`
}

// StornoRequest reverses a posted document.
type StornoRequest struct {
	DocumentType string `json:"documentType" binding:"required"`
	DocumentID   string `json:"documentId" binding:"required"`
	Reason       string `json:"reason"`
}

func (r *StornoRequest) ToRequest(orgID id.ID, userID string) stock.StornoRequest {
	req := stock.StornoRequest{
		OrganizationID: orgID,
		DocumentType:   r.DocumentType,
		DocumentID:     r.DocumentID,
		Reason:         r.Reason,
	}
	if userID != "" {
		req.UserID = &userID
	}
	return req
}

// LocationRequest registers the location of an owner entity.
type LocationRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
}

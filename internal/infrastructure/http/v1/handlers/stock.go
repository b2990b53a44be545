package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/infrastructure/http/v1/dto"
)

// StockHandler serves ledger movements, balances and storno.
type StockHandler struct {
	*BaseHandler
	movements *stock.MovementService
	balances  *stock.BalanceEngine
	cached    *stock.CachedBalances
	storno    *stock.StornoService
	locations *locations.Registry
}

func NewStockHandler(
	base *BaseHandler,
	movements *stock.MovementService,
	balances *stock.BalanceEngine,
	cached *stock.CachedBalances,
	storno *stock.StornoService,
	registry *locations.Registry,
) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		movements:   movements,
		balances:    balances,
		cached:      cached,
		storno:      storno,
		locations:   registry,
	}
}

// CreateIncome handles POST /stock/movements/income
func (h *StockHandler) CreateIncome(c *gin.Context) {
	h.createSingle(c, h.movements.CreateIncome)
}

// CreateExpense handles POST /stock/movements/expense
func (h *StockHandler) CreateExpense(c *gin.Context) {
	h.createSingle(c, h.movements.CreateExpense)
}

// CreateAdjustment handles POST /stock/movements/adjustment
func (h *StockHandler) CreateAdjustment(c *gin.Context) {
	h.createSingle(c, h.movements.CreateAdjustment)
}

type singleCreator func(ctx context.Context, in stock.SingleLocationInput) (*stock.Movement, error)

func (h *StockHandler) createSingle(c *gin.Context, create singleCreator) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.SingleLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(actor.OrganizationID, actor.UserID)
	if err != nil {
		h.Error(c, err)
		return
	}
	m, err := create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// CreateTransfer handles POST /stock/movements/transfer
func (h *StockHandler) CreateTransfer(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(actor.OrganizationID, actor.UserID)
	if err != nil {
		h.Error(c, err)
		return
	}
	m, err := h.movements.CreateTransfer(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// GetMovement handles GET /stock/movements/:id
func (h *StockHandler) GetMovement(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	movementID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	m, err := h.movements.GetMovement(c.Request.Context(), actor.OrganizationID, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// ListMovements handles GET /stock/movements
func (h *StockHandler) ListMovements(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var q dto.MovementListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter(actor.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	items, err := h.movements.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, q.Limit, q.Offset))
}

// GetBalance handles GET /stock/balance?locationId&stockItemId&asOf
func (h *StockHandler) GetBalance(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	loc, err := h.location(c, actor.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	itemID, err := dto.ParseID("stockItemId", c.Query("stockItemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	asOf := time.Now().UTC()
	if v, err := dto.ParseOptionalTime("asOf", c.Query("asOf")); err != nil {
		h.Error(c, err)
		return
	} else if v != nil {
		asOf = *v
	}

	bal, err := h.balances.BalanceAt(c.Request.Context(), loc.ID, itemID, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BalanceResponse{
		StockLocationID: loc.ID.String(),
		StockItemID:     itemID.String(),
		AsOf:            &asOf,
		Balance:         bal,
	})
}

// GetCurrentBalance handles GET /stock/balance/current, served from the cache.
func (h *StockHandler) GetCurrentBalance(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	loc, err := h.location(c, actor.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	itemID, err := dto.ParseID("stockItemId", c.Query("stockItemId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	bal, err := h.cached.Current(c.Request.Context(), loc.ID, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BalanceResponse{
		StockLocationID: loc.ID.String(),
		StockItemID:     itemID.String(),
		Balance:         bal,
	})
}

// GetBalances handles GET /stock/balances?stockItemId&asOf
func (h *StockHandler) GetBalances(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	itemID, err := dto.ParseID("stockItemId", c.Query("stockItemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	asOf := time.Now().UTC()
	if v, err := dto.ParseOptionalTime("asOf", c.Query("asOf")); err != nil {
		h.Error(c, err)
		return
	} else if v != nil {
		asOf = *v
	}

	items, err := h.balances.BalancesAt(c.Request.Context(), actor.OrganizationID, itemID, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, 0, 0))
}

// GetStatement handles GET /stock/statement?locationId&stockItemId&from&to
func (h *StockHandler) GetStatement(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	loc, err := h.location(c, actor.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	itemID, err := dto.ParseID("stockItemId", c.Query("stockItemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	from, err := dto.ParseTime("from", c.Query("from"))
	if err != nil {
		h.Error(c, err)
		return
	}
	to, err := dto.ParseTime("to", c.Query("to"))
	if err != nil {
		h.Error(c, err)
		return
	}

	st, err := h.balances.Statement(c.Request.Context(), loc.ID, itemID, from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, st)
}

// Storno handles POST /stock/storno
func (h *StockHandler) Storno(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.StornoRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.storno.Storno(c.Request.Context(), req.ToRequest(actor.OrganizationID, actor.UserID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// location resolves ?locationId within the caller organization, so balances
// of foreign locations read as not found.
func (h *StockHandler) location(c *gin.Context, orgID id.ID) (*locations.StockLocation, error) {
	locID, err := dto.ParseID("locationId", c.Query("locationId"))
	if err != nil {
		return nil, err
	}
	return h.locations.Get(c.Request.Context(), orgID, locID)
}

// RegisterRoutes registers stock ledger routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/movements/income", h.CreateIncome)
	rg.POST("/movements/expense", h.CreateExpense)
	rg.POST("/movements/transfer", h.CreateTransfer)
	rg.POST("/movements/adjustment", h.CreateAdjustment)
	rg.GET("/movements", h.ListMovements)
	rg.GET("/movements/:id", h.GetMovement)
	rg.GET("/balance", h.GetBalance)
	rg.GET("/balance/current", h.GetCurrentBalance)
	rg.GET("/balances", h.GetBalances)
	rg.GET("/statement", h.GetStatement)
	rg.POST("/storno", h.Storno)
}

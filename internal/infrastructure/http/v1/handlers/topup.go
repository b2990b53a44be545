package handlers

import (
	"github.com/gin-gonic/gin"

	"fleetledger/internal/domain/topup"
	"fleetledger/internal/infrastructure/http/v1/dto"
)

// TopUpHandler serves top-up rules and manual engine runs.
type TopUpHandler struct {
	*BaseHandler
	rules  *topup.RuleService
	engine *topup.Engine
}

func NewTopUpHandler(base *BaseHandler, rules *topup.RuleService, engine *topup.Engine) *TopUpHandler {
	return &TopUpHandler{BaseHandler: base, rules: rules, engine: engine}
}

// CreateRule handles POST /topup/rules
func (h *TopUpHandler) CreateRule(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.CreateRuleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(actor.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	rule, err := h.rules.CreateRule(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rule)
}

// ListRules handles GET /topup/rules
func (h *TopUpHandler) ListRules(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	items, err := h.rules.ListRules(c.Request.Context(), actor.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, 0, 0))
}

// GetRule handles GET /topup/rules/:id
func (h *TopUpHandler) GetRule(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	ruleID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	rule, err := h.rules.GetRule(c.Request.Context(), actor.OrganizationID, ruleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rule)
}

// SetActive handles POST /topup/rules/:id/active
func (h *TopUpHandler) SetActive(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	ruleID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.SetActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rule, err := h.rules.SetActive(c.Request.Context(), actor.OrganizationID, ruleID, *req.Active)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rule)
}

// ListTransactions handles GET /topup/cards/:cardId/transactions
func (h *TopUpHandler) ListTransactions(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	cardID, ok := h.PathID(c, "cardId")
	if !ok {
		return
	}
	items, err := h.rules.ListTransactions(c.Request.Context(), actor.OrganizationID, cardID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, 0, 0))
}

// Run handles POST /topup/run. The engine processes due rules of every
// organization, so the route is restricted to operators.
func (h *TopUpHandler) Run(c *gin.Context) {
	var req dto.RunRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	res, err := h.engine.Run(c.Request.Context(), req.ToRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

func (h *TopUpHandler) RegisterRoutes(rg *gin.RouterGroup, operator gin.HandlerFunc) {
	rg.POST("/rules", h.CreateRule)
	rg.GET("/rules", h.ListRules)
	rg.GET("/rules/:id", h.GetRule)
	rg.POST("/rules/:id/active", h.SetActive)
	rg.GET("/cards/:cardId/transactions", h.ListTransactions)
	rg.POST("/run", operator, h.Run)
}

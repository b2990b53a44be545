package handlers

import (
	"github.com/gin-gonic/gin"

	"fleetledger/internal/domain/fuelcards"
)

// FuelCardHandler triggers the cached card balance recalculation.
type FuelCardHandler struct {
	*BaseHandler
	recalc *fuelcards.Recalculator
}

func NewFuelCardHandler(base *BaseHandler, recalc *fuelcards.Recalculator) *FuelCardHandler {
	return &FuelCardHandler{BaseHandler: base, recalc: recalc}
}

// Recalculate handles POST /fuel-cards/recalculate for the caller organization.
func (h *FuelCardHandler) Recalculate(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orgID := actor.OrganizationID
	res, err := h.recalc.Run(c.Request.Context(), &orgID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/infrastructure/http/v1/dto"
)

// locationTypes maps the route segment to a location type.
var locationTypes = map[string]locations.LocationType{
	"warehouse":    locations.TypeWarehouse,
	"vehicle-tank": locations.TypeVehicleTank,
	"fuel-card":    locations.TypeFuelCard,
}

// LocationHandler serves the stock location registry.
type LocationHandler struct {
	*BaseHandler
	registry *locations.Registry
}

func NewLocationHandler(base *BaseHandler, registry *locations.Registry) *LocationHandler {
	return &LocationHandler{BaseHandler: base, registry: registry}
}

// Create handles POST /stock/locations/:type. Repeating the call for the
// same owner returns the existing location.
func (h *LocationHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	t, known := locationTypes[c.Param("type")]
	if !known {
		h.Error(c, apperror.NewFieldValidation("type", "location type must be warehouse, vehicle-tank or fuel-card"))
		return
	}
	var req dto.LocationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ownerID, err := dto.ParseID("ownerId", req.OwnerID)
	if err != nil {
		h.Error(c, err)
		return
	}

	loc, err := h.registry.GetOrCreate(c.Request.Context(), actor.OrganizationID, t, ownerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loc)
}

// Get handles GET /stock/locations/:id
func (h *LocationHandler) Get(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	locID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	loc, err := h.registry.Get(c.Request.Context(), actor.OrganizationID, locID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loc)
}

// List handles GET /stock/locations
func (h *LocationHandler) List(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	items, err := h.registry.List(c.Request.Context(), actor.OrganizationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, 0, 0))
}

func (h *LocationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:type", h.Create)
}

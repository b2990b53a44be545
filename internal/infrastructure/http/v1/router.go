// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"fleetledger/internal/domain/fuelcards"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/domain/topup"
	"fleetledger/internal/infrastructure/http/v1/handlers"
	"fleetledger/internal/infrastructure/http/v1/middleware"
	"fleetledger/pkg/logger"
)

// RoleOperator may trigger cross-organization jobs.
const RoleOperator = "operator"

// RouterConfig holds the services exposed over HTTP.
type RouterConfig struct {
	Logger       *logger.Logger
	Tokens       middleware.TokenValidator
	HealthChecks map[string]handlers.HealthCheck

	Registry     *locations.Registry
	Movements    *stock.MovementService
	Balances     *stock.BalanceEngine
	Cached       *stock.CachedBalances
	Storno       *stock.StornoService
	Rules        *topup.RuleService
	Engine       *topup.Engine
	Recalculator *fuelcards.Recalculator

	// Development enables gin debug mode.
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.Tokens))
	{
		registerStockRoutes(v1, cfg)
		registerTopUpRoutes(v1, cfg)
		registerFuelCardRoutes(v1, cfg)
	}

	return router
}

func registerStockRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	base := handlers.NewBaseHandler()
	stockGroup := rg.Group("/stock")

	handlers.NewLocationHandler(base, cfg.Registry).RegisterRoutes(stockGroup.Group("/locations"))
	handlers.NewStockHandler(base, cfg.Movements, cfg.Balances, cfg.Cached, cfg.Storno, cfg.Registry).
		RegisterRoutes(stockGroup)
}

func registerTopUpRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewTopUpHandler(handlers.NewBaseHandler(), cfg.Rules, cfg.Engine)
	handler.RegisterRoutes(rg.Group("/topup"), middleware.RequireRole(RoleOperator))
}

func registerFuelCardRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Recalculator == nil {
		return
	}
	handler := handlers.NewFuelCardHandler(handlers.NewBaseHandler(), cfg.Recalculator)
	rg.POST("/fuel-cards/recalculate", handler.Recalculate)
}

package http

import (
	"time"

	"github.com/giftvault-io/giftvault/internal/cache"
	"github.com/giftvault-io/giftvault/internal/http/handlers"
	"github.com/giftvault-io/giftvault/internal/inventory"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps carries everything the router needs.
type Deps struct {
	DB               *gorm.DB
	Inventory        *inventory.Service
	StatsCache       *cache.StatsCache
	JWTSecret        string
	JWTExpiry        time.Duration
	DefaultValidDays int
}

// NewRouter builds the gin engine with all API routes. The /v0/admin group
// serves administrative tooling; the /v1 group is the service boundary the
// checkout orchestrator calls. Both require a bearer token issued by login.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	healthHandler := handlers.NewHealthHandler(deps.DB)
	router.GET("/healthz", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWTSecret, deps.JWTExpiry)
	router.POST("/v0/admin/login", authHandler.Login)

	codesHandler := handlers.NewCodesHandler(deps.Inventory, deps.StatsCache, deps.DefaultValidDays)
	admin := router.Group("/v0/admin", authMiddleware(deps.JWTSecret))
	{
		admin.POST("/codes", codesHandler.Create)
		admin.POST("/codes/batch", codesHandler.BatchCreate)
		admin.GET("/codes", codesHandler.List)
		admin.GET("/codes/:id", codesHandler.Get)
		admin.PUT("/codes/:id/status", codesHandler.SetStatus)
		admin.POST("/sweep", codesHandler.Sweep)
		admin.GET("/stats", codesHandler.Stats)
	}

	redemptionHandler := handlers.NewRedemptionHandler(deps.Inventory)
	v1 := router.Group("/v1", authMiddleware(deps.JWTSecret))
	{
		v1.POST("/allocations", redemptionHandler.Allocate)
		v1.POST("/allocations/release", redemptionHandler.Release)
		v1.POST("/redemptions", redemptionHandler.Redeem)
	}

	return router
}

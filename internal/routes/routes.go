package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/handlers"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/middleware"
)

// Dependencies are the collaborators the router dispatches to
type Dependencies struct {
	Config      *config.Config
	Log         *logger.Logger
	Nodes       handlers.NodeQuerier
	Chains      handlers.ChainAdmin
	Tokens      middleware.TokenValidator
	RateLimiter *middleware.RateLimiter
	// Health reports whether the node store is reachable.
	Health func(ctx context.Context) error
}

// SetupRouter builds the gin engine with every route registered
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Config.Tracing.Enabled {
		router.Use(otelgin.Middleware(deps.Config.Tracing.ServiceName))
	}
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.SecureHeadersMiddleware(
		middleware.DefaultSecureHeadersConfig(deps.Config.Environment == "production")))

	router.GET("/health", healthHandler(deps.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}
	api.Use(middleware.AuthMiddleware(deps.Tokens))

	RegisterNodeRoutes(api, handlers.NewNodeHandler(deps.Nodes, deps.Log))
	RegisterChainRoutes(api, handlers.NewChainHandler(deps.Chains, deps.Log))
	return router
}

// RegisterNodeRoutes registers the node query routes
func RegisterNodeRoutes(api *gin.RouterGroup, h *handlers.NodeHandler) {
	api.GET("/user/nodes/:userId", h.GetUserNodes)
	api.POST("/user/nodes/:userId/filter", h.FilterNodes)
	api.GET("/nodes/top", h.GetTopNodes)
}

// RegisterChainRoutes registers chain joins and the admin chain routes
func RegisterChainRoutes(api *gin.RouterGroup, h *handlers.ChainHandler) {
	api.POST("/chains/:id/join", h.Join)

	admin := api.Group("/chains")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("", h.ListChains)
		admin.POST("", h.CreateChain)
		admin.GET("/slug/:slug", h.GetChainBySlug)
		admin.GET("/:id", h.GetChain)
		admin.PUT("/:id", h.UpdateChain)
		admin.PUT("/:id/pause", h.TogglePause)
		admin.DELETE("/:id", h.DeleteChain)
		admin.PATCH("/:id/status/:status", h.UpdateStatus)
	}
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	}
}

package router

import (
	"evoloop/internal/middleware"
	"evoloop/internal/rest"

	"github.com/labstack/echo/v4"
)

// SetupPublicRoutes wires the serving-snippet endpoints. No JWT: these are
// hit from visitors' browsers and authenticate with the per-site API key,
// checked inside the handlers.
func SetupPublicRoutes(api *echo.Group, assign *rest.AssignHandler, events *rest.EventsHandler) {
	api.GET("/assign", assign.Assign)
	api.POST("/events", events.Track)
}

func SetupSiteRoutes(api *echo.Group, handler *rest.SiteHandler) {
	sites := api.Group("/sites", middleware.AuthMiddleware())

	sites.POST("", handler.Create)
	sites.GET("", handler.List)
	sites.GET("/:id", handler.Get)
	sites.PATCH("/:id", handler.Update)
	sites.DELETE("/:id", handler.Delete)
	sites.GET("/:id/stats", handler.Stats)
	sites.GET("/:id/variants", handler.Variants)
}

func SetupVariantRoutes(api *echo.Group, handler *rest.VariantHandler) {
	variants := api.Group("/variants", middleware.AuthMiddleware())
	variants.POST("", handler.Create)
	variants.PATCH("/:id", handler.Action)

	api.POST("/sites/:id/sweep", handler.Sweep, middleware.AuthMiddleware())
}

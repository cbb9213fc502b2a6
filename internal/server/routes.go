package server

import (
	"github.com/labstack/echo/v4"

	"github.com/callpoint-health/triage/backend/internal/server/middleware"
	"github.com/callpoint-health/triage/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Session routes
	apiRoutes.POST("/sessions", routes.CreateSessionHandler)
	apiRoutes.GET("/sessions", routes.GetSessionsHandler)
	apiRoutes.GET("/sessions/:id", routes.GetSessionHandler)
	apiRoutes.POST("/sessions/:id/turns", routes.ProcessTurnHandler)

	// Archive routes
	apiRoutes.GET("/summaries", routes.GetSummariesHandler)
}

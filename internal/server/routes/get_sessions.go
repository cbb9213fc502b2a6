package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/callpoint-health/triage/backend/internal/server/middleware"
	"github.com/callpoint-health/triage/backend/pkg/convo"
)

// GetSessionsHandler lists all live sessions.
func GetSessionsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	return c.JSON(http.StatusOK, app.Engine.Sessions())
}

// GetSessionHandler returns a single session snapshot.
func GetSessionHandler(c echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing session id"})
	}

	app := c.(*middleware.AppContext).App
	view, err := app.Engine.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, convo.ErrUnknownSession) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, view)
}

package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/callpoint-health/triage/backend/internal/archive"
	"github.com/callpoint-health/triage/backend/internal/server/middleware"
	"github.com/callpoint-health/triage/backend/pkg/logger"
)

// GetSummariesHandler lists archived call summaries, most recent first.
func GetSummariesHandler(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		limit = parsed
	}

	app := c.(*middleware.AppContext).App
	store := archive.NewStore(app.DBConn)
	summaries, err := store.ListCallSummaries(c.Request().Context(), limit)
	if err != nil {
		logger.Error("Failed to list call summaries", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, summaries)
}

package routes

import (
	"errors"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/callpoint-health/triage/backend/internal/server/middleware"
	"github.com/callpoint-health/triage/backend/pkg/convo"
	"github.com/callpoint-health/triage/backend/pkg/logger"
)

// CreateSessionHandler opens a new triage session. The gateway may
// supply its own call id; otherwise one is generated.
func CreateSessionHandler(c echo.Context) error {
	type createSessionBody struct {
		SessionID string `json:"session_id"`
	}

	type createSessionResponse struct {
		Message string             `json:"message"`
		Session *convo.SessionView `json:"session,omitempty"`
	}

	data := new(createSessionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createSessionResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	view, err := app.Engine.CreateSession(data.SessionID)
	if err != nil {
		if errors.Is(err, convo.ErrSessionExists) {
			return c.JSON(http.StatusConflict, createSessionResponse{
				Message: "Session already exists",
			})
		}
		logger.Error("Failed to create session", "err", err)
		return c.JSON(http.StatusInternalServerError, createSessionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusCreated, createSessionResponse{
		Message: "Session created",
		Session: view,
	})
}

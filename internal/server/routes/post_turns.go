package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/callpoint-health/triage/backend/internal/queue"
	"github.com/callpoint-health/triage/backend/internal/server/middleware"
	"github.com/callpoint-health/triage/backend/internal/util"
	"github.com/callpoint-health/triage/backend/pkg/common"
	"github.com/callpoint-health/triage/backend/pkg/convo"
	"github.com/callpoint-health/triage/backend/pkg/logger"
)

// ProcessTurnHandler applies one caller utterance to a session and
// returns the next thing to say. When the turn closes the session, the
// call summary is published to the archive queue.
func ProcessTurnHandler(c echo.Context) error {
	type processTurnBody struct {
		Utterance string `json:"utterance"`
	}

	type processTurnResponse struct {
		Message string             `json:"message,omitempty"`
		Turn    *common.TurnResult `json:"turn,omitempty"`
	}

	sessionID := c.Param("id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, processTurnResponse{
			Message: "Missing session id",
		})
	}

	data := new(processTurnBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, processTurnResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	result, err := app.Engine.ProcessTurn(ctx, sessionID, data.Utterance)
	if err != nil {
		switch {
		case errors.Is(err, convo.ErrUnknownSession):
			return c.JSON(http.StatusNotFound, processTurnResponse{
				Message: "Session not found",
			})
		case errors.Is(err, convo.ErrInvalidStateTransition):
			return c.JSON(http.StatusConflict, processTurnResponse{
				Message: "Session is closed",
			})
		default:
			logger.Error("Failed to process turn", "session", sessionID, "err", err)
			return c.JSON(http.StatusInternalServerError, processTurnResponse{
				Message: "Internal server error",
			})
		}
	}

	// Archival is best effort; the caller still gets their response
	// if the broker stays down through the retries.
	if result.Summary != nil && app.Queue != nil {
		payload, err := json.Marshal(result.Summary)
		if err != nil {
			logger.Error("Failed to encode call summary", "session", sessionID, "err", err)
		} else if err := util.RetryErr(3, func() error {
			return queue.PublishFIFO(app.Queue, queue.ArchiveQueue, payload)
		}); err != nil {
			logger.Error("Failed to publish call summary", "session", sessionID, "err", err)
		}
	}

	return c.JSON(http.StatusOK, processTurnResponse{
		Turn: result,
	})
}

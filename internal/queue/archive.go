package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callpoint-health/triage/backend/internal/archive"
	"github.com/callpoint-health/triage/backend/internal/util"
	"github.com/callpoint-health/triage/backend/pkg/common"
	"github.com/callpoint-health/triage/backend/pkg/logger"
)

// ProcessArchiveMessage persists one call summary delivered on the
// archive queue. Returning an error sends the delivery through the
// retry/DLQ path.
func ProcessArchiveMessage(
	ctx context.Context,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(common.CallSummary)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.SessionID == "" {
		return errors.New("archive message has no session id")
	}

	store := archive.NewStore(conn)
	if err := util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		return store.InsertCallSummary(ctx, data)
	}); err != nil {
		return err
	}

	logger.Info("[Queue] Archived call summary",
		"session", data.SessionID,
		"emergency", data.EmergencyDetected,
		"urgency", data.Urgency,
	)
	return nil
}

// Package archive persists finished call summaries. Summaries travel
// from the API server through the archive queue and land here via the
// worker.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

// Migrate applies pending schema migrations from the given source
// directory (file://... URL) against the database.
func Migrate(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Store reads and writes call summaries.
type Store struct {
	conn *pgxpool.Pool
}

// NewStore wraps a connection pool.
func NewStore(conn *pgxpool.Pool) *Store {
	return &Store{conn: conn}
}

// InsertCallSummary upserts a summary keyed on session id. Redelivered
// queue messages make the write idempotent rather than duplicated.
func (s *Store) InsertCallSummary(ctx context.Context, sum *common.CallSummary) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO call_summaries (
			session_id, correlation_id, final_state, symptoms, turn_count,
			emergency_detected, emergency_rule, top_condition, urgency,
			started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO UPDATE SET
			correlation_id = EXCLUDED.correlation_id,
			final_state = EXCLUDED.final_state,
			symptoms = EXCLUDED.symptoms,
			turn_count = EXCLUDED.turn_count,
			emergency_detected = EXCLUDED.emergency_detected,
			emergency_rule = EXCLUDED.emergency_rule,
			top_condition = EXCLUDED.top_condition,
			urgency = EXCLUDED.urgency,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at`,
		sum.SessionID,
		sum.CorrelationID,
		string(sum.FinalState),
		sum.Symptoms,
		sum.TurnCount,
		sum.EmergencyDetected,
		sum.EmergencyRule,
		sum.TopCondition,
		string(sum.Urgency),
		sum.StartedAt,
		sum.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call summary %s: %w", sum.SessionID, err)
	}
	return nil
}

// ListCallSummaries returns the most recently ended summaries.
func (s *Store) ListCallSummaries(ctx context.Context, limit int) ([]common.CallSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, `
		SELECT session_id, correlation_id, final_state, symptoms, turn_count,
		       emergency_detected, emergency_rule, top_condition, urgency,
		       started_at, ended_at
		FROM call_summaries
		ORDER BY ended_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list call summaries: %w", err)
	}
	defer rows.Close()

	var out []common.CallSummary
	for rows.Next() {
		var sum common.CallSummary
		var finalState, urgency string
		if err := rows.Scan(
			&sum.SessionID,
			&sum.CorrelationID,
			&finalState,
			&sum.Symptoms,
			&sum.TurnCount,
			&sum.EmergencyDetected,
			&sum.EmergencyRule,
			&sum.TopCondition,
			&urgency,
			&sum.StartedAt,
			&sum.EndedAt,
		); err != nil {
			return nil, err
		}
		sum.FinalState = common.SessionState(finalState)
		sum.Urgency = common.UrgencyLevel(urgency)
		out = append(out, sum)
	}
	return out, rows.Err()
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pingwatch/pingwatch/internal/store"
)

type SessionStore struct {
	db *sql.DB
}

// Create requires the device to exist and, if userID is given, to be owned
// by the caller.
func (s *SessionStore) Create(ctx context.Context, deviceID string, prompt *string, userID *string) (*store.Session, error) {
	dev := &DeviceStore{db: s.db}
	if _, err := dev.Get(ctx, deviceID, userID); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO sessions (session_id, device_id, user_id, status, started_at, analysis_prompt)
		 VALUES ($1, $2, $3, 'active', now(), $4)
		 RETURNING session_id, device_id, user_id, status, started_at, stopped_at, analysis_prompt`,
		genID(), deviceID, userID, prompt)
	return scanSession(row)
}

func (s *SessionStore) Get(ctx context.Context, sessionID string, userID *string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, device_id, user_id, status, started_at, stopped_at, analysis_prompt
		 FROM sessions WHERE session_id = $1`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if userID != nil && sess.UserID != nil && *sess.UserID != *userID {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

// Stop is a monotonic close: stopped_at is set only once.
func (s *SessionStore) Stop(ctx context.Context, sessionID string, userID *string) (*store.Session, error) {
	if _, err := s.Get(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE sessions SET status = 'stopped', stopped_at = COALESCE(stopped_at, now())
		 WHERE session_id = $1
		 RETURNING session_id, device_id, user_id, status, started_at, stopped_at, analysis_prompt`,
		sessionID)
	return scanSession(row)
}

func (s *SessionStore) ListByDevice(ctx context.Context, deviceID string, userID *string) ([]*store.Session, error) {
	query := `SELECT session_id, device_id, user_id, status, started_at, stopped_at, analysis_prompt
	          FROM sessions WHERE device_id = $1`
	args := []any{deviceID}
	if userID != nil {
		query += ` AND user_id = $2`
		args = append(args, *userID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*store.Session
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.SessionID, &sess.DeviceID, &sess.UserID, &sess.Status,
			&sess.StartedAt, &sess.StoppedAt, &sess.AnalysisPrompt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*store.Session, error) {
	var sess store.Session
	if err := row.Scan(&sess.SessionID, &sess.DeviceID, &sess.UserID, &sess.Status,
		&sess.StartedAt, &sess.StoppedAt, &sess.AnalysisPrompt); err != nil {
		return nil, err
	}
	return &sess, nil
}

package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pingwatch/pingwatch/internal/store"
)

type EventStore struct {
	db *sql.DB
}

// Create validates that the session exists, that session.device_id ==
// deviceID, and ownership; if eventID is
// given and an Event with that id exists, it must belong to the same
// session (else store.ErrConflict), and the existing row is returned
// (idempotent initiate).
func (s *EventStore) Create(ctx context.Context, in store.CreateEventInput) (*store.Event, error) {
	sess := &SessionStore{db: s.db}
	existingSession, err := sess.Get(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	if existingSession.DeviceID != in.DeviceID {
		return nil, store.ErrNotFound
	}

	if in.EventID != nil && *in.EventID != "" {
		existing, err := s.getRaw(ctx, *in.EventID)
		if err == nil {
			if existing.SessionID != in.SessionID {
				return nil, store.ErrConflict
			}
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	id := genID()
	if in.EventID != nil && *in.EventID != "" {
		id = *in.EventID
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO events (event_id, session_id, user_id, device_id, status, trigger_type,
		                      created_at, duration_seconds, clip_uri, clip_mime, clip_size_bytes,
		                      clip_container, clip_blob_name)
		 VALUES ($1, $2, $3, $4, 'processing', $5, now(), $6, $7, $8, $9, $10, $11)
		 RETURNING `+eventColumns,
		id, in.SessionID, in.UserID, in.DeviceID, in.TriggerType, in.DurationSecs,
		in.ClipURI, in.ClipMime, in.ClipSizeBytes, in.Container, in.BlobName)
	return scanEvent(row)
}

func (s *EventStore) Get(ctx context.Context, eventID string, userID *string) (*store.Event, error) {
	ev, err := s.getRaw(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if userID != nil && ev.UserID != nil && *ev.UserID != *userID {
		return nil, store.ErrNotFound
	}
	return ev, nil
}

func (s *EventStore) getRaw(ctx context.Context, eventID string) (*store.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = $1`, eventID)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *EventStore) ListBySession(ctx context.Context, sessionID string, userID *string) ([]*store.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = $1`
	args := []any{sessionID}
	if userID != nil {
		query += ` AND user_id = $2`
		args = append(args, *userID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*store.Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkClipUploaded sets clip_uploaded_at = now() only if null; clip_etag
// is overwritten when provided. Idempotent.
func (s *EventStore) MarkClipUploaded(ctx context.Context, eventID string, etag *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events
		 SET clip_uploaded_at = COALESCE(clip_uploaded_at, now()),
		     clip_etag = COALESCE($2, clip_etag)
		 WHERE event_id = $1`,
		eventID, etag)
	if err != nil {
		return fmt.Errorf("mark clip uploaded: %w", err)
	}
	return nil
}

// MarkClipUploadedViaLocalAPI switches clip_container to "local" and
// clip_uri to local://{blobName}; idempotent (no-op if already local).
func (s *EventStore) MarkClipUploadedViaLocalAPI(ctx context.Context, eventID, blobName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events
		 SET clip_container = 'local',
		     clip_uri = 'local://' || $2,
		     clip_blob_name = $2
		 WHERE event_id = $1 AND (clip_container IS DISTINCT FROM 'local')`,
		eventID, blobName)
	if err != nil {
		return fmt.Errorf("mark clip uploaded via local api: %w", err)
	}
	return nil
}

// UpdateSummary is terminal: sets status=done and all provided analysis
// fields in one transaction. A further summary call overwrites fields but
// never re-runs inference; that is the caller's concern (the Worker never
// calls twice), so this method always writes.
func (s *EventStore) UpdateSummary(ctx context.Context, eventID string, in store.EventSummaryUpdate) error {
	matchedRules, err := json.Marshal(in.MatchedRules)
	if err != nil {
		return fmt.Errorf("marshal matched_rules: %w", err)
	}
	entities, err := json.Marshal(in.DetectedEntities)
	if err != nil {
		return fmt.Errorf("marshal detected_entities: %w", err)
	}
	actions, err := json.Marshal(in.DetectedActions)
	if err != nil {
		return fmt.Errorf("marshal detected_actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE events
		 SET status = 'done',
		     summary = $2,
		     label = $3,
		     confidence = $4,
		     inference_provider = $5,
		     inference_model = $6,
		     should_notify = $7,
		     alert_reason = $8,
		     matched_rules = $9,
		     detected_entities = $10,
		     detected_actions = $11
		 WHERE event_id = $1`,
		eventID, in.Summary, in.Label, in.Confidence, in.InferenceProvider, in.InferenceModel,
		in.ShouldNotify, in.AlertReason, matchedRules, entities, actions)
	if err != nil {
		return fmt.Errorf("update event summary: %w", err)
	}
	return nil
}

// DeleteProcessingForSession bulk-deletes rows matching
// (session, status=processing[, user_id]) and returns the count. Used by
// force-stop.
func (s *EventStore) DeleteProcessingForSession(ctx context.Context, sessionID string, userID *string) (int, error) {
	query := `DELETE FROM events WHERE session_id = $1 AND status = 'processing'`
	args := []any{sessionID}
	if userID != nil {
		query += ` AND user_id = $2`
		args = append(args, *userID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete processing events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

const eventColumns = `event_id, session_id, user_id, device_id, status, trigger_type, created_at,
	duration_seconds, clip_uri, clip_mime, clip_size_bytes, clip_container, clip_blob_name,
	clip_uploaded_at, clip_etag, summary, label, confidence, inference_provider, inference_model,
	should_notify, alert_reason, matched_rules, detected_entities, detected_actions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row *sql.Row) (*store.Event, error) {
	return scanEventGeneric(row)
}

func scanEventRows(rows *sql.Rows) (*store.Event, error) {
	return scanEventGeneric(rows)
}

func scanEventGeneric(r rowScanner) (*store.Event, error) {
	var ev store.Event
	var matchedRules, entities, actions []byte
	if err := r.Scan(&ev.EventID, &ev.SessionID, &ev.UserID, &ev.DeviceID, &ev.Status, &ev.TriggerType,
		&ev.CreatedAt, &ev.DurationSecs, &ev.ClipURI, &ev.ClipMime, &ev.ClipSizeBytes, &ev.ClipContainer,
		&ev.ClipBlobName, &ev.ClipUploadedAt, &ev.ClipETag, &ev.Summary, &ev.Label, &ev.Confidence,
		&ev.InferenceProvider, &ev.InferenceModel, &ev.ShouldNotify, &ev.AlertReason,
		&matchedRules, &entities, &actions); err != nil {
		return nil, err
	}
	unmarshalStrList(matchedRules, &ev.MatchedRules)
	unmarshalStrList(entities, &ev.DetectedEntities)
	unmarshalStrList(actions, &ev.DetectedActions)
	return &ev, nil
}

func unmarshalStrList(raw []byte, dst *[]string) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

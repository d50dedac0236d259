package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pingwatch/pingwatch/internal/store"
)

type TelegramLinkStore struct {
	db *sql.DB
}

func (s *TelegramLinkStore) Create(ctx context.Context, deviceID string, userID *string, tokenHash string, expiresAt time.Time) (*store.TelegramLinkAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO telegram_link_attempts (attempt_id, device_id, user_id, token_hash, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, 'pending', now(), $5)
		 RETURNING `+linkColumns,
		genID(), deviceID, userID, tokenHash, expiresAt)
	return scanLinkAttempt(row)
}

func (s *TelegramLinkStore) GetByID(ctx context.Context, attemptID string) (*store.TelegramLinkAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM telegram_link_attempts WHERE attempt_id = $1`, attemptID)
	return mustFindLinkAttempt(row)
}

func (s *TelegramLinkStore) GetByTokenHash(ctx context.Context, tokenHash string) (*store.TelegramLinkAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM telegram_link_attempts WHERE token_hash = $1`, tokenHash)
	return mustFindLinkAttempt(row)
}

// MarkExpired implements the pending → expired transition: one-shot,
// refuses to clobber an already-linked attempt (invariant 3).
func (s *TelegramLinkStore) MarkExpired(ctx context.Context, attemptID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE telegram_link_attempts SET status = 'expired'
		 WHERE attempt_id = $1 AND status = 'pending'`, attemptID)
	if err != nil {
		return fmt.Errorf("mark link attempt expired: %w", err)
	}
	return nil
}

// MarkLinked implements the pending → linked transition (invariant 3):
// records chat_id, stamps linked_at, and ensures a NotificationEndpoint
// exists for (provider='telegram', chat_id), within one transaction so the
// device link, attempt transition, and endpoint creation are atomic.
func (s *TelegramLinkStore) MarkLinked(ctx context.Context, attemptID, chatID string, telegramUsername *string) (*store.NotificationEndpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM telegram_link_attempts WHERE attempt_id = $1 FOR UPDATE`, attemptID)
	attempt, err := scanLinkAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("lookup link attempt: %w", err)
	}
	if attempt.Status != store.LinkPending {
		return nil, store.ErrConflict
	}

	epRow := tx.QueryRowContext(ctx,
		`INSERT INTO notification_endpoints (endpoint_id, user_id, provider, chat_id, telegram_username, created_at, linked_at)
		 VALUES ($1, $2, 'telegram', $3, $4, now(), now())
		 ON CONFLICT (provider, chat_id) DO UPDATE SET telegram_username = COALESCE(EXCLUDED.telegram_username, notification_endpoints.telegram_username)
		 RETURNING endpoint_id, user_id, provider, chat_id, telegram_username, created_at, linked_at`,
		genID(), attempt.UserID, chatID, telegramUsername)
	ep, err := scanEndpoint(epRow)
	if err != nil {
		return nil, fmt.Errorf("upsert notification endpoint: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE telegram_link_attempts SET status = 'linked', linked_at = now(), chat_id = $2, telegram_username = $3
		 WHERE attempt_id = $1`, attemptID, chatID, telegramUsername); err != nil {
		return nil, fmt.Errorf("mark link attempt linked: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE devices SET telegram_endpoint_id = $1,
		       telegram_chat_id = $2, telegram_username = $3, telegram_linked_at = now()
		 WHERE device_id = $4`, ep.EndpointID, chatID, telegramUsername, attempt.DeviceID); err != nil {
		return nil, fmt.Errorf("link device to endpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ep, nil
}

const linkColumns = `attempt_id, device_id, user_id, token_hash, status, created_at, expires_at, linked_at, chat_id, telegram_username`

func mustFindLinkAttempt(row *sql.Row) (*store.TelegramLinkAttempt, error) {
	a, err := scanLinkAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("lookup link attempt: %w", err)
	}
	return a, nil
}

func scanLinkAttempt(row *sql.Row) (*store.TelegramLinkAttempt, error) {
	var a store.TelegramLinkAttempt
	if err := row.Scan(&a.AttemptID, &a.DeviceID, &a.UserID, &a.TokenHash, &a.Status, &a.CreatedAt,
		&a.ExpiresAt, &a.LinkedAt, &a.ChatID, &a.TelegramUsername); err != nil {
		return nil, err
	}
	return &a, nil
}

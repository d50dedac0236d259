package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pingwatch/pingwatch/internal/store"
)

type AuthSessionStore struct {
	db *sql.DB
}

func (s *AuthSessionStore) Create(ctx context.Context, userID, tokenHash string, ttl time.Duration) (*store.AuthSession, error) {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO auth_sessions (auth_session_id, user_id, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, now(), $4)
		 RETURNING auth_session_id, user_id, token_hash, created_at, expires_at, revoked_at`,
		genID(), userID, tokenHash, expiresAt)
	return scanAuthSession(row)
}

func (s *AuthSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*store.AuthSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT auth_session_id, user_id, token_hash, created_at, expires_at, revoked_at
		 FROM auth_sessions WHERE token_hash = $1`, tokenHash)
	return scanAuthSession(row)
}

func (s *AuthSessionStore) Revoke(ctx context.Context, authSessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET revoked_at = now() WHERE auth_session_id = $1 AND revoked_at IS NULL`,
		authSessionID)
	if err != nil {
		return fmt.Errorf("revoke auth session: %w", err)
	}
	return nil
}

func scanAuthSession(row *sql.Row) (*store.AuthSession, error) {
	var a store.AuthSession
	if err := row.Scan(&a.AuthSessionID, &a.UserID, &a.TokenHash, &a.CreatedAt, &a.ExpiresAt, &a.RevokedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pingwatch/pingwatch/internal/store"
)

type UserStore struct {
	db *sql.DB
}

// GetOrCreate upserts a User by email first (when present), falling back to
// userID.
func (s *UserStore) GetOrCreate(ctx context.Context, userID, email *string) (*store.User, error) {
	if email != nil && *email != "" {
		row := s.db.QueryRowContext(ctx,
			`SELECT user_id, email, created_at FROM users WHERE email = $1`, *email)
		u, err := scanUser(row)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup user by email: %w", err)
		}
	} else if userID != nil && *userID != "" {
		if u, err := s.GetByID(ctx, *userID); err == nil {
			return u, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	id := genID()
	if userID != nil && *userID != "" {
		id = *userID
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (user_id, email, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET email = COALESCE(EXCLUDED.email, users.email)
		 RETURNING user_id, email, created_at`,
		id, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, created_at FROM users WHERE user_id = $1`, userID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.UserID, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

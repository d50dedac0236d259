package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pingwatch/pingwatch/internal/store"
)

type EndpointStore struct {
	db *sql.DB
}

func (s *EndpointStore) GetByDeviceID(ctx context.Context, deviceID string) (*store.NotificationEndpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT e.endpoint_id, e.user_id, e.provider, e.chat_id, e.telegram_username, e.created_at, e.linked_at
		 FROM notification_endpoints e
		 JOIN devices d ON d.telegram_endpoint_id = e.endpoint_id
		 WHERE d.device_id = $1`, deviceID)
	ep, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get endpoint by device: %w", err)
	}
	return ep, nil
}

func (s *EndpointStore) GetOrCreate(ctx context.Context, provider, chatID string, userID *string, telegramUsername *string) (*store.NotificationEndpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO notification_endpoints (endpoint_id, user_id, provider, chat_id, telegram_username, created_at, linked_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (provider, chat_id) DO UPDATE SET telegram_username = COALESCE(EXCLUDED.telegram_username, notification_endpoints.telegram_username)
		 RETURNING endpoint_id, user_id, provider, chat_id, telegram_username, created_at, linked_at`,
		genID(), userID, provider, chatID, telegramUsername)
	return scanEndpoint(row)
}

func scanEndpoint(row *sql.Row) (*store.NotificationEndpoint, error) {
	var e store.NotificationEndpoint
	if err := row.Scan(&e.EndpointID, &e.UserID, &e.Provider, &e.ChatID, &e.TelegramUsername, &e.CreatedAt, &e.LinkedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

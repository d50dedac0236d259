package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pingwatch/pingwatch/internal/store"
)

type DeviceStore struct {
	db *sql.DB
}

// RegisterDevice: if deviceID is given and exists, return the existing row
// only if it is unowned or already owned by the caller, claiming it (one
// shot, sticky) when unowned; otherwise store.ErrNotFound, never leaking
// existence across tenants. If deviceID is absent, mint a new id.
func (s *DeviceStore) RegisterDevice(ctx context.Context, deviceID, label, userID *string) (*store.Device, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if deviceID != nil && *deviceID != "" {
		row := tx.QueryRowContext(ctx,
			`SELECT device_id, user_id, label, created_at, telegram_endpoint_id,
			        telegram_chat_id, telegram_username, telegram_linked_at
			 FROM devices WHERE device_id = $1 FOR UPDATE`, *deviceID)
		existing, err := scanDevice(row)
		if err == nil {
			if existing.UserID != nil && userID != nil && *existing.UserID != *userID {
				return nil, store.ErrNotFound
			}
			if existing.UserID == nil && userID != nil {
				if _, err := tx.ExecContext(ctx,
					`UPDATE devices SET user_id = $1 WHERE device_id = $2`, *userID, *deviceID); err != nil {
					return nil, fmt.Errorf("claim device: %w", err)
				}
				existing.UserID = userID
			}
			if label != nil {
				if _, err := tx.ExecContext(ctx,
					`UPDATE devices SET label = $1 WHERE device_id = $2`, *label, *deviceID); err != nil {
					return nil, fmt.Errorf("update device label: %w", err)
				}
				existing.Label = label
			}
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("commit: %w", err)
			}
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup device: %w", err)
		}
	}

	id := genID()
	if deviceID != nil && *deviceID != "" {
		id = *deviceID
	}
	row := tx.QueryRowContext(ctx,
		`INSERT INTO devices (device_id, user_id, label, created_at)
		 VALUES ($1, $2, $3, now())
		 RETURNING device_id, user_id, label, created_at, telegram_endpoint_id,
		           telegram_chat_id, telegram_username, telegram_linked_at`,
		id, userID, label)
	d, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return d, nil
}

func (s *DeviceStore) Get(ctx context.Context, deviceID string, userID *string) (*store.Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT device_id, user_id, label, created_at, telegram_endpoint_id,
		        telegram_chat_id, telegram_username, telegram_linked_at
		 FROM devices WHERE device_id = $1`, deviceID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	if userID != nil && d.UserID != nil && *d.UserID != *userID {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (s *DeviceStore) SetTelegramEndpoint(ctx context.Context, deviceID, endpointID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET telegram_endpoint_id = $1 WHERE device_id = $2`, endpointID, deviceID)
	if err != nil {
		return fmt.Errorf("set telegram endpoint: %w", err)
	}
	return nil
}

func scanDevice(row *sql.Row) (*store.Device, error) {
	var d store.Device
	if err := row.Scan(&d.DeviceID, &d.UserID, &d.Label, &d.CreatedAt, &d.TelegramEndpointID,
		&d.TelegramChatID, &d.TelegramUsername, &d.TelegramLinkedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

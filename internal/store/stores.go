package store

import (
	"context"
	"time"
)

// UserStore manages the User table. Users are created lazily at first
// dev-login and are never deleted.
type UserStore interface {
	GetOrCreate(ctx context.Context, userID, email *string) (*User, error)
	GetByID(ctx context.Context, userID string) (*User, error)
}

// AuthSessionStore manages bearer-token sessions.
type AuthSessionStore interface {
	Create(ctx context.Context, userID, tokenHash string, ttl time.Duration) (*AuthSession, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*AuthSession, error)
	Revoke(ctx context.Context, authSessionID string) error
}

// DeviceStore manages device registration/claiming.
type DeviceStore interface {
	// RegisterDevice reuses and claims an existing unowned device, refuses
	// (ErrNotFound) across tenants, and mints a new id when deviceID is
	// empty.
	RegisterDevice(ctx context.Context, deviceID, label, userID *string) (*Device, error)
	Get(ctx context.Context, deviceID string, userID *string) (*Device, error)
	SetTelegramEndpoint(ctx context.Context, deviceID, endpointID string) error
}

// SessionStore manages recording sessions.
type SessionStore interface {
	Create(ctx context.Context, deviceID string, prompt *string, userID *string) (*Session, error)
	Get(ctx context.Context, sessionID string, userID *string) (*Session, error)
	Stop(ctx context.Context, sessionID string, userID *string) (*Session, error)
	ListByDevice(ctx context.Context, deviceID string, userID *string) ([]*Session, error)
}

// EventStore manages clip events.
type EventStore interface {
	Create(ctx context.Context, in CreateEventInput) (*Event, error)
	Get(ctx context.Context, eventID string, userID *string) (*Event, error)
	ListBySession(ctx context.Context, sessionID string, userID *string) ([]*Event, error)
	MarkClipUploaded(ctx context.Context, eventID string, etag *string) error
	MarkClipUploadedViaLocalAPI(ctx context.Context, eventID, blobName string) error
	UpdateSummary(ctx context.Context, eventID string, in EventSummaryUpdate) error
	DeleteProcessingForSession(ctx context.Context, sessionID string, userID *string) (int, error)
}

type CreateEventInput struct {
	EventID       *string
	SessionID     string
	DeviceID      string
	TriggerType   string
	DurationSecs  float64
	ClipURI       string
	ClipMime      string
	ClipSizeBytes int64
	Container     *string
	BlobName      *string
	UserID        *string
}

// TelegramLinkStore manages TelegramLinkAttempt state transitions.
type TelegramLinkStore interface {
	Create(ctx context.Context, deviceID string, userID *string, tokenHash string, expiresAt time.Time) (*TelegramLinkAttempt, error)
	GetByID(ctx context.Context, attemptID string) (*TelegramLinkAttempt, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*TelegramLinkAttempt, error)
	MarkExpired(ctx context.Context, attemptID string) error
	MarkLinked(ctx context.Context, attemptID, chatID string, telegramUsername *string) (*NotificationEndpoint, error)
}

// NotificationEndpointStore manages messenger delivery targets.
type NotificationEndpointStore interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*NotificationEndpoint, error)
	GetOrCreate(ctx context.Context, provider, chatID string, userID *string, telegramUsername *string) (*NotificationEndpoint, error)
}

// Stores aggregates every persistence contract the API and Worker depend on.
type Stores struct {
	Users         UserStore
	AuthSessions  AuthSessionStore
	Devices       DeviceStore
	Sessions      SessionStore
	Events        EventStore
	TelegramLinks TelegramLinkStore
	Endpoints     NotificationEndpointStore
}

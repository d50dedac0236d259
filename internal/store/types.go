// Package store defines Ping Watch's persistence contracts: typed CRUD over
// Users, AuthSessions, Devices, Sessions, Events, TelegramLinkAttempts, and
// NotificationEndpoints, with ownership scoping threaded through every call
// that touches user-owned rows.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by store methods when a row does not exist, or
// exists but is owned by a different user; callers map both cases to a
// single NotFound at the API boundary so cross-tenant requests cannot
// distinguish "absent" from "not yours".
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a mutation would violate a uniqueness or
// idempotency invariant (e.g. reusing an event_id under a different session).
var ErrConflict = errors.New("store: conflict")

type User struct {
	UserID    string
	Email     *string
	CreatedAt time.Time
}

type AuthSession struct {
	AuthSessionID string
	UserID        string
	TokenHash     string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	RevokedAt     *time.Time
}

// Valid reports whether the session is currently usable for authentication.
func (a *AuthSession) Valid(now time.Time) bool {
	if a.RevokedAt != nil {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return false
	}
	return true
}

type Device struct {
	DeviceID           string
	UserID             *string
	Label              *string
	CreatedAt          time.Time
	TelegramEndpointID *string

	// Legacy mirror fields, retained for backward-compatible reads and as the
	// source rows the notification_endpoints backfill migration consumes.
	TelegramChatID   *string
	TelegramUsername *string
	TelegramLinkedAt *time.Time
}

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionStopped SessionStatus = "stopped"
)

type Session struct {
	SessionID      string
	DeviceID       string
	UserID         *string
	Status         SessionStatus
	StartedAt      time.Time
	StoppedAt      *time.Time
	AnalysisPrompt *string
}

type EventStatus string

const (
	EventProcessing EventStatus = "processing"
	EventDone       EventStatus = "done"
)

type Event struct {
	EventID      string
	SessionID    string
	UserID       *string
	DeviceID     string
	Status       EventStatus
	TriggerType  string
	CreatedAt    time.Time
	DurationSecs float64

	ClipURI        string
	ClipMime       string
	ClipSizeBytes  int64
	ClipContainer  *string
	ClipBlobName   *string
	ClipUploadedAt *time.Time
	ClipETag       *string

	Summary    *string
	Label      *string
	Confidence *float64

	InferenceProvider *string
	InferenceModel    *string

	ShouldNotify     *bool
	AlertReason      *string
	MatchedRules     []string
	DetectedEntities []string
	DetectedActions  []string
}

type LinkAttemptStatus string

const (
	LinkPending LinkAttemptStatus = "pending"
	LinkLinked  LinkAttemptStatus = "linked"
	LinkExpired LinkAttemptStatus = "expired"
)

type TelegramLinkAttempt struct {
	AttemptID        string
	DeviceID         string
	UserID           *string
	TokenHash        string
	Status           LinkAttemptStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
	LinkedAt         *time.Time
	ChatID           *string
	TelegramUsername *string
}

type NotificationEndpoint struct {
	EndpointID       string
	UserID           *string
	Provider         string
	ChatID           string
	TelegramUsername *string
	CreatedAt        time.Time
	LinkedAt         time.Time
}

// EventSummaryUpdate carries the analysis fields a Worker writes back when
// an event reaches its terminal state. UpdateSummary applies every field in
// one transaction.
type EventSummaryUpdate struct {
	Summary           string
	Label             string
	Confidence        float64
	InferenceProvider string
	InferenceModel    string
	ShouldNotify      bool
	AlertReason       string
	MatchedRules      []string
	DetectedEntities  []string
	DetectedActions   []string
}

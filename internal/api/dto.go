package api

import (
	"time"

	"github.com/pingwatch/pingwatch/internal/store"
)

// dto.go converts store types to their snake_case wire shapes. Store types
// stay idiomatic Go (PascalCase, no json tags) so
// this is the one seam where wire shape and domain shape diverge.

type deviceDTO struct {
	DeviceID           string    `json:"device_id"`
	UserID             *string   `json:"user_id,omitempty"`
	Label              *string   `json:"label,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	TelegramEndpointID *string   `json:"telegram_endpoint_id,omitempty"`
}

func newDeviceDTO(d *store.Device) deviceDTO {
	return deviceDTO{
		DeviceID:           d.DeviceID,
		UserID:             d.UserID,
		Label:              d.Label,
		CreatedAt:          d.CreatedAt,
		TelegramEndpointID: d.TelegramEndpointID,
	}
}

type sessionDTO struct {
	SessionID      string     `json:"session_id"`
	DeviceID       string     `json:"device_id"`
	UserID         *string    `json:"user_id,omitempty"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
	AnalysisPrompt *string    `json:"analysis_prompt,omitempty"`
}

func newSessionDTO(s *store.Session) sessionDTO {
	return sessionDTO{
		SessionID:      s.SessionID,
		DeviceID:       s.DeviceID,
		UserID:         s.UserID,
		Status:         string(s.Status),
		StartedAt:      s.StartedAt,
		StoppedAt:      s.StoppedAt,
		AnalysisPrompt: s.AnalysisPrompt,
	}
}

type eventDTO struct {
	EventID      string    `json:"event_id"`
	SessionID    string    `json:"session_id"`
	UserID       *string   `json:"user_id,omitempty"`
	DeviceID     string    `json:"device_id"`
	Status       string    `json:"status"`
	TriggerType  string    `json:"trigger_type"`
	CreatedAt    time.Time `json:"created_at"`
	DurationSecs float64   `json:"duration_seconds"`

	ClipURI        string     `json:"clip_uri"`
	ClipMime       string     `json:"clip_mime"`
	ClipSizeBytes  int64      `json:"clip_size_bytes"`
	ClipContainer  *string    `json:"clip_container,omitempty"`
	ClipBlobName   *string    `json:"clip_blob_name,omitempty"`
	ClipUploadedAt *time.Time `json:"clip_uploaded_at,omitempty"`
	ClipETag       *string    `json:"clip_etag,omitempty"`

	Summary    *string  `json:"summary,omitempty"`
	Label      *string  `json:"label,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`

	InferenceProvider *string `json:"inference_provider,omitempty"`
	InferenceModel    *string `json:"inference_model,omitempty"`

	ShouldNotify     *bool    `json:"should_notify,omitempty"`
	AlertReason      *string  `json:"alert_reason,omitempty"`
	MatchedRules     []string `json:"matched_rules,omitempty"`
	DetectedEntities []string `json:"detected_entities,omitempty"`
	DetectedActions  []string `json:"detected_actions,omitempty"`
}

func newEventDTO(e *store.Event) eventDTO {
	return eventDTO{
		EventID:      e.EventID,
		SessionID:    e.SessionID,
		UserID:       e.UserID,
		DeviceID:     e.DeviceID,
		Status:       string(e.Status),
		TriggerType:  e.TriggerType,
		CreatedAt:    e.CreatedAt,
		DurationSecs: e.DurationSecs,

		ClipURI:        e.ClipURI,
		ClipMime:       e.ClipMime,
		ClipSizeBytes:  e.ClipSizeBytes,
		ClipContainer:  e.ClipContainer,
		ClipBlobName:   e.ClipBlobName,
		ClipUploadedAt: e.ClipUploadedAt,
		ClipETag:       e.ClipETag,

		Summary:    e.Summary,
		Label:      e.Label,
		Confidence: e.Confidence,

		InferenceProvider: e.InferenceProvider,
		InferenceModel:    e.InferenceModel,

		ShouldNotify:     e.ShouldNotify,
		AlertReason:      e.AlertReason,
		MatchedRules:     e.MatchedRules,
		DetectedEntities: e.DetectedEntities,
		DetectedActions:  e.DetectedActions,
	}
}

type linkAttemptDTO struct {
	AttemptID        string     `json:"attempt_id"`
	DeviceID         string     `json:"device_id"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	LinkedAt         *time.Time `json:"linked_at,omitempty"`
	ChatID           *string    `json:"chat_id,omitempty"`
	TelegramUsername *string    `json:"telegram_username,omitempty"`
}

func newLinkAttemptDTO(a *store.TelegramLinkAttempt) linkAttemptDTO {
	return linkAttemptDTO{
		AttemptID:        a.AttemptID,
		DeviceID:         a.DeviceID,
		Status:           string(a.Status),
		CreatedAt:        a.CreatedAt,
		ExpiresAt:        a.ExpiresAt,
		LinkedAt:         a.LinkedAt,
		ChatID:           a.ChatID,
		TelegramUsername: a.TelegramUsername,
	}
}

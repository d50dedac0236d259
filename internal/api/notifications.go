package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mymmrac/telego"

	"github.com/pingwatch/pingwatch/internal/pingerr"
	"github.com/pingwatch/pingwatch/internal/store"
)

func (s *Server) handleTelegramReadiness(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, pingerr.BadRequest("device_id query parameter is required"))
		return
	}
	status, _, err := s.linker.Readiness(r.Context(), deviceID, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type telegramLinkStartRequest struct {
	DeviceID string `json:"device_id"`
}

type telegramLinkStartResponse struct {
	AttemptID  string `json:"attempt_id"`
	ConnectURL string `json:"connect_url"`
	ExpiresAt  string `json:"expires_at"`
}

func (s *Server) handleTelegramLinkStart(w http.ResponseWriter, r *http.Request) {
	var req telegramLinkStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pingerr.BadRequest("invalid JSON body"))
		return
	}
	if req.DeviceID == "" {
		writeError(w, pingerr.BadRequest("device_id is required"))
		return
	}

	attempt, connectURL, err := s.linker.StartLink(r.Context(), req.DeviceID, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, telegramLinkStartResponse{
		AttemptID:  attempt.AttemptID,
		ConnectURL: connectURL,
		ExpiresAt:  attempt.ExpiresAt.Format(httpTimeFormat),
	})
}

// handleTelegramLinkStatus implements GET /notifications/telegram/link/status.
// Polling while the attempt is pending drives the fallback getUpdates pull.
func (s *Server) handleTelegramLinkStatus(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attempt_id")
	if attemptID == "" {
		writeError(w, pingerr.BadRequest("attempt_id query parameter is required"))
		return
	}
	attempt, err := s.linker.PollStatus(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLinkAttemptDTO(attempt))
}

// handleTelegramWebhook implements POST /notifications/telegram/webhook:
// optional secret header check, then the push confirmation
// path. Returns 200 whatever the token match outcome; a wrong secret gets
// 401 and a linker or store failure its mapped error status.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Telegram.WebhookSecret != "" {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.cfg.Telegram.WebhookSecret {
			writeError(w, pingerr.Unauthorized("invalid webhook secret"))
			return
		}
	}

	var update telego.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := s.linker.HandleWebhook(r.Context(), update); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTelegramTarget implements GET /notifications/telegram/target:
// device-to-chat resolution consumed by the notification dispatcher.
func (s *Server) handleTelegramTarget(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, pingerr.BadRequest("device_id query parameter is required"))
		return
	}

	endpoint, err := s.stores.Endpoints.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"linked": false})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"linked":            true,
		"chat_id":           endpoint.ChatID,
		"telegram_username": endpoint.TelegramUsername,
	})
}

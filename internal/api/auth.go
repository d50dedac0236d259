package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pingwatch/pingwatch/internal/pingerr"
)

type devLoginRequest struct {
	UserID *string `json:"user_id,omitempty"`
	Email  *string `json:"email,omitempty"`
}

type devLoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newBearerToken() (token, hash string, err error) {
	buf := make([]byte, 32) // 256 bits
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, hashToken(token), nil
}

// handleDevLogin upserts a User by email first then by id, and mints an
// AuthSession with a fresh 256-bit token. TTL is bounded [5min, 30 days]
// by config.Load's clampAuthTokenTTL.
func (s *Server) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Auth.DevLoginEnabled {
		writeError(w, pingerr.NotFound("dev login is disabled"))
		return
	}

	var req devLoginRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			writeError(w, pingerr.BadRequest("invalid JSON body"))
			return
		}
	}

	user, err := s.stores.Users.GetOrCreate(r.Context(), req.UserID, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	token, tokenHash, err := newBearerToken()
	if err != nil {
		writeError(w, pingerr.Internal("generate bearer token", err))
		return
	}

	sess, err := s.stores.AuthSessions.Create(r.Context(), user.UserID, tokenHash, s.cfg.Auth.TokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := devLoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      user.UserID,
	}
	if sess.ExpiresAt != nil {
		resp.ExpiresAt = *sess.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

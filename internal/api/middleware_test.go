package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/store"
)

type fakeAuthSessions struct {
	byHash map[string]*store.AuthSession
}

func (f *fakeAuthSessions) Create(ctx context.Context, userID, tokenHash string, ttl time.Duration) (*store.AuthSession, error) {
	return nil, nil
}

func (f *fakeAuthSessions) GetByTokenHash(ctx context.Context, tokenHash string) (*store.AuthSession, error) {
	sess, ok := f.byHash[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

func (f *fakeAuthSessions) Revoke(ctx context.Context, authSessionID string) error { return nil }

func newTestServer(authRequired bool, sessions map[string]*store.AuthSession) *Server {
	return &Server{
		cfg: &config.Config{Auth: config.AuthConfig{Required: authRequired}},
		stores: &store.Stores{
			AuthSessions: &fakeAuthSessions{byHash: sessions},
		},
	}
}

func TestAuthMiddleware_PublicRouteAlwaysPasses(t *testing.T) {
	s := newTestServer(true, nil)
	called := false
	h := s.authMiddleware(true, func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h(httptest.NewRecorder(), req)

	assert.True(t, called)
}

func TestAuthMiddleware_RequiredAndMissingToken(t *testing.T) {
	s := newTestServer(true, nil)
	called := false
	h := s.authMiddleware(false, func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_NotRequiredAndMissingTokenIsAnonymous(t *testing.T) {
	s := newTestServer(false, nil)
	var gotUserID string
	h := s.authMiddleware(false, func(w http.ResponseWriter, r *http.Request) {
		gotUserID = userIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	h(httptest.NewRecorder(), req)

	assert.Empty(t, gotUserID)
}

func TestAuthMiddleware_ValidTokenScopesRequest(t *testing.T) {
	tokenHash := hashToken("good-token")
	s := newTestServer(true, map[string]*store.AuthSession{
		tokenHash: {AuthSessionID: "as-1", UserID: "user-123"},
	})

	var gotUserID string
	h := s.authMiddleware(false, func(w http.ResponseWriter, r *http.Request) {
		gotUserID = userIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, "user-123", gotUserID)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_ExpiredTokenRequiredRejects(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	tokenHash := hashToken("stale-token")
	s := newTestServer(true, map[string]*store.AuthSession{
		tokenHash: {AuthSessionID: "as-2", UserID: "user-456", ExpiresAt: &past},
	})

	h := s.authMiddleware(false, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run for an expired token when auth is required")
	})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOriginAllowed(t *testing.T) {
	cases := []struct {
		origin string
		allow  bool
	}{
		{"http://localhost:5173", true},
		{"http://127.0.0.1:3000", true},
		{"http://192.168.1.20:8080", true},
		{"https://example.com", false},
		{"https://my-tunnel.example.net", true},
	}
	tunnels := []string{"example.net"}
	for _, c := range cases {
		assert.Equal(t, c.allow, originAllowed(c.origin, tunnels), c.origin)
	}
}

func TestWriteError_MapsStoreNotFoundTo404(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, store.ErrNotFound)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// Package api implements the ingestion + control HTTP surface: auth,
// device registration, session lifecycle, event upload
// initiate/relay/finalize/summary, and Telegram linking.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pingwatch/pingwatch/internal/blob"
	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/queue"
	"github.com/pingwatch/pingwatch/internal/store"
	"github.com/pingwatch/pingwatch/internal/telegram"
	"github.com/pingwatch/pingwatch/internal/tracing"
	"github.com/pingwatch/pingwatch/internal/upgrade"
)

// Server is the control-plane HTTP server.
type Server struct {
	cfg    *config.Config
	db     *sql.DB
	stores *store.Stores
	blob   *blob.Gateway
	queue  *queue.Queue
	linker *telegram.Linker
	tracer *tracing.Provider

	mux        *http.ServeMux
	httpServer *http.Server
}

// New constructs a Server. tracer may be a no-op Provider.
func New(cfg *config.Config, db *sql.DB, stores *store.Stores, blobGW *blob.Gateway, q *queue.Queue, linker *telegram.Linker, tracer *tracing.Provider) *Server {
	return &Server{cfg: cfg, db: db, stores: stores, blob: blobGW, queue: q, linker: linker, tracer: tracer}
}

// CheckSchema runs the startup schema guardrail. Callers should refuse to
// serve on error.
func (s *Server) CheckSchema(ctx context.Context) error {
	status, err := upgrade.CheckSchema(ctx, s.db)
	if err != nil {
		return fmt.Errorf("schema guardrail check: %w", err)
	}
	if !status.Compatible {
		return fmt.Errorf("%s", upgrade.FormatError(status))
	}
	return nil
}

// BuildMux registers every route once and caches the mux.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /auth/dev/login", s.tracingMiddleware(s.authMiddleware(true, s.handleDevLogin)))

	mux.HandleFunc("POST /devices/register", s.tracingMiddleware(s.authMiddleware(false, s.handleRegisterDevice)))

	mux.HandleFunc("POST /sessions/start", s.tracingMiddleware(s.authMiddleware(false, s.handleSessionStart)))
	mux.HandleFunc("POST /sessions/stop", s.tracingMiddleware(s.authMiddleware(false, s.handleSessionStop)))
	mux.HandleFunc("POST /sessions/force-stop", s.tracingMiddleware(s.authMiddleware(false, s.handleSessionForceStop)))
	mux.HandleFunc("GET /sessions", s.tracingMiddleware(s.authMiddleware(false, s.handleListSessions)))

	mux.HandleFunc("POST /events/upload/initiate", s.tracingMiddleware(s.authMiddleware(false, s.handleUploadInitiate)))
	mux.HandleFunc("PUT /events/{id}/upload", s.tracingMiddleware(s.authMiddleware(false, s.handleRelayUpload)))
	mux.HandleFunc("POST /events/{id}/upload/finalize", s.tracingMiddleware(s.authMiddleware(false, s.handleUploadFinalize)))
	mux.HandleFunc("POST /events/{id}/summary", s.tracingMiddleware(s.authMiddleware(false, s.handleEventSummaryWrite)))
	mux.HandleFunc("GET /events/{id}/summary", s.tracingMiddleware(s.authMiddleware(false, s.handleEventSummaryRead)))
	mux.HandleFunc("GET /events", s.tracingMiddleware(s.authMiddleware(false, s.handleListEvents)))

	mux.HandleFunc("GET /notifications/telegram/readiness", s.tracingMiddleware(s.authMiddleware(false, s.handleTelegramReadiness)))
	mux.HandleFunc("POST /notifications/telegram/link/start", s.tracingMiddleware(s.authMiddleware(false, s.handleTelegramLinkStart)))
	mux.HandleFunc("GET /notifications/telegram/link/status", s.tracingMiddleware(s.authMiddleware(false, s.handleTelegramLinkStatus)))
	mux.HandleFunc("POST /notifications/telegram/webhook", s.tracingMiddleware(s.authMiddleware(true, s.handleTelegramWebhook)))
	mux.HandleFunc("GET /notifications/telegram/target", s.tracingMiddleware(s.authMiddleware(false, s.handleTelegramTarget)))

	s.mux = mux
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves on cfg.HTTPAddr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	handler := corsMiddleware(s.tunnelDomains(), s.BuildMux())
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: handler,
	}

	slog.Info("api server starting", "addr", s.cfg.HTTPAddr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *Server) tunnelDomains() []string {
	return s.cfg.CORSTunnelDomains
}

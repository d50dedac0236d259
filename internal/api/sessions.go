package api

import (
	"encoding/json"
	"net/http"

	"github.com/pingwatch/pingwatch/internal/pingerr"
)

type sessionStartRequest struct {
	DeviceID       string  `json:"device_id"`
	AnalysisPrompt *string `json:"analysis_prompt,omitempty"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pingerr.BadRequest("invalid JSON body"))
		return
	}
	if req.DeviceID == "" {
		writeError(w, pingerr.BadRequest("device_id is required"))
		return
	}

	sess, err := s.stores.Sessions.Create(r.Context(), req.DeviceID, req.AnalysisPrompt, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionDTO(sess))
}

type sessionIDRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	var req sessionIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pingerr.BadRequest("invalid JSON body"))
		return
	}
	sess, err := s.stores.Sessions.Stop(r.Context(), req.SessionID, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionDTO(sess))
}

type forceStopResponse struct {
	Status                  string `json:"status"`
	DroppedProcessingEvents int    `json:"dropped_processing_events"`
	DroppedQueuedJobs       int    `json:"dropped_queued_jobs"`
}

// handleSessionForceStop implements POST /sessions/force-stop: close the
// session, then best-effort cancel queued jobs and purge still-processing
// events, all scoped to the caller.
func (s *Server) handleSessionForceStop(w http.ResponseWriter, r *http.Request) {
	var req sessionIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pingerr.BadRequest("invalid JSON body"))
		return
	}

	userID := userIDPtr(r.Context())
	if _, err := s.stores.Sessions.Stop(r.Context(), req.SessionID, userID); err != nil {
		writeError(w, err)
		return
	}

	droppedJobs := s.queue.CancelSessionJobs(r.Context(), req.SessionID)
	droppedEvents, err := s.stores.Events.DeleteProcessingForSession(r.Context(), req.SessionID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, forceStopResponse{
		Status:                  "stopped",
		DroppedProcessingEvents: droppedEvents,
		DroppedQueuedJobs:       droppedJobs,
	})
}

// handleListSessions implements GET /sessions?device_id=, ownership-scoped.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, pingerr.BadRequest("device_id query parameter is required"))
		return
	}
	sessions, err := s.stores.Sessions.ListByDevice(r.Context(), deviceID, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, newSessionDTO(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/pingwatch/pingwatch/internal/pingerr"
	"github.com/pingwatch/pingwatch/internal/queue"
	"github.com/pingwatch/pingwatch/internal/store"
)

type uploadInitiateRequest struct {
	EventID       *string `json:"event_id,omitempty"`
	SessionID     string  `json:"session_id"`
	DeviceID      string  `json:"device_id"`
	TriggerType   string  `json:"trigger_type"`
	DurationSecs  float64 `json:"duration_seconds"`
	ClipMime      string  `json:"clip_mime"`
	ClipSizeBytes int64   `json:"clip_size_bytes"`
}

type uploadInitiateResponse struct {
	Event     eventDTO `json:"event"`
	UploadURL string   `json:"upload_url"`
	BlobURL   string   `json:"blob_url"`
	ExpiresAt string   `json:"expires_at"`
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// handleUploadInitiate implements POST /events/upload/initiate: mints or
// reuses event_id, asks the blob gateway for an upload target
// (cloud preferred, relay fallback), reserves the Event row, idempotent on
// event_id.
func (s *Server) handleUploadInitiate(w http.ResponseWriter, r *http.Request) {
	var req uploadInitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pingerr.BadRequest("invalid JSON body"))
		return
	}
	if req.SessionID == "" || req.DeviceID == "" || req.ClipMime == "" {
		writeError(w, pingerr.BadRequest("session_id, device_id, and clip_mime are required"))
		return
	}

	eventID := ""
	if req.EventID != nil {
		eventID = *req.EventID
	}
	if eventID == "" {
		eventID = uuid.Must(uuid.NewV7()).String()
	}

	target, err := s.blob.Initiate(r.Context(), req.SessionID, eventID, req.ClipMime, requestBaseURL(r))
	if err != nil {
		writeError(w, err)
		return
	}

	event, err := s.stores.Events.Create(r.Context(), store.CreateEventInput{
		EventID:       &eventID,
		SessionID:     req.SessionID,
		DeviceID:      req.DeviceID,
		TriggerType:   req.TriggerType,
		DurationSecs:  req.DurationSecs,
		ClipURI:       target.BlobURL,
		ClipMime:      req.ClipMime,
		ClipSizeBytes: req.ClipSizeBytes,
		Container:     &target.Container,
		BlobName:      &target.BlobName,
		UserID:        userIDPtr(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadInitiateResponse{
		Event:     newEventDTO(event),
		UploadURL: target.UploadURL,
		BlobURL:   target.BlobURL,
		ExpiresAt: target.ExpiresAt.Format(httpTimeFormat),
	})
}

const httpTimeFormat = "2006-01-02T15:04:05Z07:00"

// handleRelayUpload implements PUT /events/{id}/upload, relay mode only. Writes bytes under the configured local root (rejecting
// any path that escapes it with 400 before a byte is written), flips the
// event to local mode, and returns the ETag header.
func (s *Server) handleRelayUpload(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	event, err := s.stores.Events.Get(r.Context(), eventID, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if event.ClipBlobName == nil || *event.ClipBlobName == "" {
		writeError(w, pingerr.BadRequest("event has no reserved blob name"))
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, pingerr.BadRequest("failed to read upload body"))
		return
	}

	etag, err := s.blob.WriteRelay(*event.ClipBlobName, data)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.stores.Events.MarkClipUploadedViaLocalAPI(r.Context(), eventID, *event.ClipBlobName); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("etag", etag)
	w.WriteHeader(http.StatusCreated)
}

type uploadFinalizeRequest struct {
	ETag *string `json:"etag,omitempty"`
}

type uploadFinalizeResponse struct {
	Status string  `json:"status"`
	JobID  *string `json:"job_id,omitempty"`
}

// handleUploadFinalize implements POST /events/{id}/upload/finalize:
// stamps clip_uploaded_at once, then best-effort enqueues a
// processing job, retrying a failed enqueue up to
// Worker.FinalizeEnqueueRetries more times. Enqueue failures never fail the
// request.
func (s *Server) handleUploadFinalize(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	var req uploadFinalizeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	userID := userIDPtr(r.Context())
	event, err := s.stores.Events.Get(r.Context(), eventID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.stores.Events.MarkClipUploaded(r.Context(), eventID, req.ETag); err != nil {
		writeError(w, err)
		return
	}

	var analysisPrompt string
	if sess, err := s.stores.Sessions.Get(r.Context(), event.SessionID, userID); err == nil && sess.AnalysisPrompt != nil {
		analysisPrompt = *sess.AnalysisPrompt
	}

	container := ""
	if event.ClipContainer != nil {
		container = *event.ClipContainer
	}
	blobName := ""
	if event.ClipBlobName != nil {
		blobName = *event.ClipBlobName
	}

	payload := queue.ClipUploadedPayload{
		EventID:        eventID,
		SessionID:      event.SessionID,
		DeviceID:       event.DeviceID,
		ClipBlobName:   blobName,
		ClipContainer:  container,
		ClipMime:       event.ClipMime,
		AnalysisPrompt: analysisPrompt,
	}
	jobID := s.queue.Enqueue(r.Context(), queue.FnProcessClipUploaded, payload)
	for i := 0; jobID == nil && i < s.cfg.Worker.FinalizeEnqueueRetries; i++ {
		jobID = s.queue.Enqueue(r.Context(), queue.FnProcessClipUploaded, payload)
	}

	writeJSON(w, http.StatusOK, uploadFinalizeResponse{Status: "accepted", JobID: jobID})
}

// eventSummaryRequest mirrors store.EventSummaryUpdate's wire shape; used
// by the worker's writeback call.
type eventSummaryRequest struct {
	Summary           string   `json:"summary"`
	Label             string   `json:"label"`
	Confidence        float64  `json:"confidence"`
	InferenceProvider string   `json:"inference_provider"`
	InferenceModel    string   `json:"inference_model"`
	ShouldNotify      bool     `json:"should_notify"`
	AlertReason       string   `json:"alert_reason"`
	MatchedRules      []string `json:"matched_rules"`
	DetectedEntities  []string `json:"detected_entities"`
	DetectedActions   []string `json:"detected_actions"`
}

// handleEventSummaryWrite implements POST /events/{id}/summary, the
// worker's single atomic commit point. Terminal; a second call overwrites
// fields but never re-runs inference (the worker never calls this twice
// per event).
func (s *Server) handleEventSummaryWrite(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	var req eventSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pingerr.BadRequest("invalid JSON body"))
		return
	}

	if err := s.stores.Events.UpdateSummary(r.Context(), eventID, store.EventSummaryUpdate{
		Summary:           req.Summary,
		Label:             req.Label,
		Confidence:        req.Confidence,
		InferenceProvider: req.InferenceProvider,
		InferenceModel:    req.InferenceModel,
		ShouldNotify:      req.ShouldNotify,
		AlertReason:       req.AlertReason,
		MatchedRules:      req.MatchedRules,
		DetectedEntities:  req.DetectedEntities,
		DetectedActions:   req.DetectedActions,
	}); err != nil {
		writeError(w, err)
		return
	}

	event, err := s.stores.Events.Get(r.Context(), eventID, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventDTO(event))
}

func (s *Server) handleEventSummaryRead(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	event, err := s.stores.Events.Get(r.Context(), eventID, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventDTO(event))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, pingerr.BadRequest("session_id query parameter is required"))
		return
	}
	events, err := s.stores.Events.ListBySession(r.Context(), sessionID, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, newEventDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingwatch/pingwatch/internal/blob"
	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/inference"
	"github.com/pingwatch/pingwatch/internal/notify"
	"github.com/pingwatch/pingwatch/internal/queue"
	"github.com/pingwatch/pingwatch/internal/tracing"
)

// summaryRecorder captures every POST /events/{id}/summary body the
// Processor writes back, standing in for the control API.
type summaryRecorder struct {
	mu    sync.Mutex
	posts []summaryRequest
}

func (r *summaryRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body summaryRequest
		_ = json.NewDecoder(req.Body).Decode(&body)
		r.mu.Lock()
		r.posts = append(r.posts, body)
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (r *summaryRecorder) last() summaryRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts[len(r.posts)-1]
}

func (r *summaryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts)
}

func newTestProcessor(t *testing.T, apiBaseURL string, testMode bool) *Processor {
	t.Helper()
	tracer, err := tracing.Init(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)

	cfg := config.WorkerConfig{APIBaseURL: apiBaseURL, TestMode: testMode}
	blobGW := blob.New(config.BlobConfig{LocalUploadDir: t.TempDir()})
	router := inference.New(config.InferenceConfig{}) // no tokens configured: no providers available
	notifier := notify.New(config.NotificationConfig{}, config.TelegramConfig{}, nil, nil)

	return New(cfg, 3, nil, blobGW, router, notifier, tracer)
}

func jobWithPayload(t *testing.T, p queue.ClipUploadedPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return &queue.Job{JobID: "job-1", Payload: raw}
}

func TestProcessJob_GuardMissingEventID(t *testing.T) {
	rec := &summaryRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	p := newTestProcessor(t, srv.URL, false)
	job := jobWithPayload(t, queue.ClipUploadedPayload{SessionID: "sess-1"})

	p.ProcessJob(context.Background(), job)

	assert.Equal(t, 0, rec.count(), "guard failure must not write back any summary")
}

func TestProcessJob_TestMode(t *testing.T) {
	rec := &summaryRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	p := newTestProcessor(t, srv.URL, true)
	job := jobWithPayload(t, queue.ClipUploadedPayload{EventID: "evt-1", SessionID: "sess-1", DeviceID: "dev-1"})

	p.ProcessJob(context.Background(), job)

	require.Equal(t, 1, rec.count())
	got := rec.last()
	assert.Equal(t, "test", got.Label)
	assert.True(t, got.ShouldNotify)
}

func TestProcessJob_DownloadFailureWritesErrorSummary(t *testing.T) {
	rec := &summaryRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	p := newTestProcessor(t, srv.URL, false)
	job := jobWithPayload(t, queue.ClipUploadedPayload{
		EventID:       "evt-2",
		SessionID:     "sess-1",
		DeviceID:      "dev-1",
		ClipContainer: "local",
		ClipBlobName:  "sessions/sess-1/events/evt-2.webm", // never written: download must fail
		ClipMime:      "video/webm",
	})

	p.ProcessJob(context.Background(), job)

	require.Equal(t, 1, rec.count())
	got := rec.last()
	assert.Equal(t, "error", got.Label)
	assert.Equal(t, 0.0, got.Confidence)
	assert.False(t, got.ShouldNotify)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	// PollInterval deliberately outlives the context so the ticker branch
	// (which would dereference a nil queue in this no-DB test) never fires;
	// this only exercises the ctx.Done() exit path.
	p := newTestProcessor(t, "http://unused.invalid", false)
	p.cfg.PollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.NoError(t, err)
}

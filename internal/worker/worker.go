// Package worker implements the clip-processing worker: a sequential
// per-process job consumer that downloads a clip, extracts frames, runs
// inference, and writes the verdict back to the control API, synchronously
// dispatching notifications when the verdict says to.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pingwatch/pingwatch/internal/blob"
	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/inference"
	"github.com/pingwatch/pingwatch/internal/notify"
	"github.com/pingwatch/pingwatch/internal/queue"
	"github.com/pingwatch/pingwatch/internal/tracing"
)

// Processor runs the per-job pipeline. One Processor is safe for exactly one
// goroutine: within a worker, jobs are processed strictly sequentially, so
// Run never dequeues the next job until the current one has reached a
// terminal writeback.
type Processor struct {
	cfg       config.WorkerConfig
	numFrames int
	queue     *queue.Queue
	blob      *blob.Gateway
	router    *inference.Router
	notifier  *notify.Dispatcher
	tracer    *tracing.Provider
	http      *http.Client
}

func New(cfg config.WorkerConfig, numFrames int, q *queue.Queue, blobGW *blob.Gateway, router *inference.Router, notifier *notify.Dispatcher, tracer *tracing.Provider) *Processor {
	return &Processor{
		cfg:       cfg,
		numFrames: numFrames,
		queue:     q,
		blob:      blobGW,
		router:    router,
		notifier:  notifier,
		tracer:    tracer,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Run polls the queue until ctx is canceled, processing jobs strictly
// sequentially.
func (p *Processor) Run(ctx context.Context) error {
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain dequeues and processes jobs until the queue is empty, so a burst of
// uploads is not throttled to one job per poll interval.
func (p *Processor) drain(ctx context.Context) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			slog.Warn("worker: dequeue failed", "error", err)
			return
		}
		if job == nil {
			return
		}
		p.ProcessJob(ctx, job)
		p.queue.MarkDone(ctx, job.JobID)
	}
}

// ProcessJob runs the per-job pipeline end to end. It never returns an
// error to the caller: every failure after the event_id guard ends in a
// best-effort error writeback so the Event reaches terminal `done`; a job
// without an event_id is logged and dropped with no writeback.
func (p *Processor) ProcessJob(ctx context.Context, job *queue.Job) {
	ctx, span := p.tracer.StartSpan(ctx, "worker.process_job")
	defer span.End()

	var payload queue.ClipUploadedPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.EventID == "" {
		slog.Error("worker: guard failed, missing event_id", "job_id", job.JobID)
		return
	}

	log := slog.With("event_id", payload.EventID, "session_id", payload.SessionID)

	if p.cfg.TestMode {
		log.Info("worker: test mode, writing fixed summary")
		p.writeback(ctx, payload.EventID, inference.Result{
			Label:        "test",
			Summary:      "test",
			Confidence:   1.0,
			Provider:     "test",
			Model:        "test",
			ShouldNotify: true,
			AlertReason:  "test mode",
		})
		p.dispatchNotify(ctx, payload, nil, inference.Result{ShouldNotify: true, Label: "test", Summary: "test"})
		return
	}

	data, err := p.download(ctx, payload)
	if err != nil {
		log.Error("worker: download failed, writing terminal error summary", "error", err)
		p.writeback(ctx, payload.EventID, errorResult(err))
		return
	}

	frames := p.extractFrames(ctx, data)

	rules := p.router.NormalizeAlertInstructions(ctx, payload.AnalysisPrompt)
	result, err := p.analyze(ctx, payload, rules, data, frames)
	if err != nil {
		log.Error("worker: inference failed, writing terminal error summary", "error", err)
		p.writeback(ctx, payload.EventID, errorResult(err))
		return
	}

	p.writeback(ctx, payload.EventID, result)

	if result.ShouldNotify {
		p.dispatchNotify(ctx, payload, data, result)
	}
}

func (p *Processor) download(ctx context.Context, payload queue.ClipUploadedPayload) ([]byte, error) {
	_, span := p.tracer.StartSpan(ctx, "worker.download")
	defer span.End()
	return p.blob.Download(ctx, payload.ClipContainer, payload.ClipBlobName)
}

// extractFrames is best-effort: a failure here is logged but never aborts
// the job, since the primary inference path is video-mode.
func (p *Processor) extractFrames(ctx context.Context, data []byte) []string {
	_, span := p.tracer.StartSpan(ctx, "worker.extract_frames")
	defer span.End()
	return ExtractFramesAsDataURIs(data, p.numFrames)
}

func (p *Processor) analyze(ctx context.Context, payload queue.ClipUploadedPayload, rules inference.RuleSet, data []byte, frames []string) (inference.Result, error) {
	ctx, span := p.tracer.StartSpan(ctx, "worker.inference")
	defer span.End()
	return p.router.AnalyzeClip(ctx, payload.AnalysisPrompt, rules, payload.ClipMime, data, frames)
}

func errorResult(err error) inference.Result {
	return inference.Result{
		Label:        "error",
		Summary:      fmt.Sprintf("processing failed: %v", err),
		Confidence:   0.0,
		Provider:     "none",
		ShouldNotify: false,
		AlertReason:  "processing error",
	}
}

type summaryRequest struct {
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

// writeback POSTs /events/{id}/summary, the single atomic commit point.
// Best-effort: a writeback failure is logged, not retried; reprocessing is
// an operator action.
func (p *Processor) writeback(ctx context.Context, eventID string, result inference.Result) {
	ctx, span := p.tracer.StartSpan(ctx, "worker.writeback")
	defer span.End()

	body, err := json.Marshal(summaryRequest{
		Summary:           result.Summary,
		Label:             result.Label,
		Confidence:        result.Confidence,
		InferenceProvider: result.Provider,
		InferenceModel:    result.Model,
		ShouldNotify:      result.ShouldNotify,
		AlertReason:       result.AlertReason,
		MatchedRules:      orEmpty(result.MatchedRules),
		DetectedEntities:  orEmpty(result.DetectedEntities),
		DetectedActions:   orEmpty(result.DetectedActions),
	})
	if err != nil {
		slog.Error("worker: marshal summary writeback failed", "event_id", eventID, "error", err)
		return
	}

	url := p.cfg.APIBaseURL + "/events/" + eventID + "/summary"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("worker: build summary writeback request failed", "event_id", eventID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		slog.Error("worker: summary writeback unreachable", "event_id", eventID, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		slog.Error("worker: summary writeback rejected", "event_id", eventID, "status", resp.StatusCode)
	}
}

func (p *Processor) dispatchNotify(ctx context.Context, payload queue.ClipUploadedPayload, clipData []byte, result inference.Result) {
	ctx, span := p.tracer.StartSpan(ctx, "worker.notify")
	defer span.End()

	confidence := result.Confidence
	p.notifier.Dispatch(ctx, notify.Payload{
		EventID:           payload.EventID,
		SessionID:         payload.SessionID,
		DeviceID:          payload.DeviceID,
		Summary:           result.Summary,
		Label:             result.Label,
		Confidence:        &confidence,
		AlertReason:       result.AlertReason,
		InferenceProvider: result.Provider,
		InferenceModel:    result.Model,
		ClipMime:          payload.ClipMime,
		ClipData:          clipData,
		ShouldNotify:      result.ShouldNotify,
		MatchedRules:      result.MatchedRules,
		DetectedEntities:  result.DetectedEntities,
		DetectedActions:   result.DetectedActions,
	})
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

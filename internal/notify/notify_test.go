package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingwatch/pingwatch/internal/config"
)

// webhookRecorder captures every webhook POST the Dispatcher sends, standing
// in for the operator's NOTIFY_WEBHOOK_URL endpoint.
type webhookRecorder struct {
	mu     sync.Mutex
	bodies []map[string]any
	secret string
	status int
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		r.mu.Lock()
		r.bodies = append(r.bodies, body)
		r.secret = req.Header.Get("X-Ping-Watch-Webhook-Secret")
		r.mu.Unlock()
		status := r.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func (r *webhookRecorder) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[len(r.bodies)-1]
}

type staticResolver struct {
	chatID string
}

func (s *staticResolver) ResolveChatID(ctx context.Context, deviceID string) (string, bool, error) {
	return s.chatID, s.chatID != "", nil
}

// fakeTelegramAPI answers the Bot API wire protocol just enough for a
// sendMessage call to succeed or fail on demand.
func fakeTelegramAPI(t *testing.T, fail bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":500,"description":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":987654321,"type":"private"}}}`))
	}))
}

func newTelegramDispatcher(t *testing.T, apiURL, webhookURL string) *Dispatcher {
	t.Helper()
	bot, err := telego.NewBot("123456:ABCDEF-test-token-00000000000000000", telego.WithAPIServer(apiURL))
	require.NoError(t, err)
	return New(
		config.NotificationConfig{WebhookURL: webhookURL},
		config.TelegramConfig{},
		bot,
		&staticResolver{chatID: "987654321"},
	)
}

func ptr(f float64) *float64 { return &f }

func TestBuildAlertText_NilConfidenceRendersNA(t *testing.T) {
	text := buildAlertText(Payload{EventID: "evt-1", Label: "person", Summary: "someone at the door"})
	assert.Contains(t, text, "Confidence: n/a")
}

func TestBuildAlertText_RoundsConfidenceToWholePercent(t *testing.T) {
	cases := []struct {
		confidence float64
		want       string
	}{
		{0.924, "Confidence: 92%"},
		{0.926, "Confidence: 93%"},
		{1.0, "Confidence: 100%"},
		{0.0, "Confidence: 0%"},
	}
	for _, c := range cases {
		text := buildAlertText(Payload{EventID: "evt-1", Confidence: ptr(c.confidence)})
		assert.Contains(t, text, c.want, "confidence %v", c.confidence)
	}
}

func TestBuildAlertText_FixedOrderAndOptionalLines(t *testing.T) {
	text := buildAlertText(Payload{
		EventID:     "evt-1",
		Summary:     "a dog ran by",
		Confidence:  ptr(0.8),
		AlertReason: "matched dog rule",
		ClipURI:     "local://sessions/s/events/e.webm",
	})
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Ping Watch alert", lines[0])
	assert.Equal(t, "Event: evt-1", lines[1])
	assert.Equal(t, "Label: unknown", lines[2]) // empty label degrades to unknown
	assert.Equal(t, "Confidence: 80%", lines[3])
	assert.Equal(t, "Summary: a dog ran by", lines[4])
	assert.Equal(t, "Reason: matched dog rule", lines[5])
	assert.Equal(t, "Clip: local://sessions/s/events/e.webm", lines[6])
}

func TestBuildAlertText_OmitsEmptyReasonAndClipLines(t *testing.T) {
	text := buildAlertText(Payload{EventID: "evt-1", Label: "person", Summary: "s"})
	assert.NotContains(t, text, "Reason:")
	assert.NotContains(t, text, "Clip:")
}

func TestDispatch_ShouldNotifyFalseIsNoop(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	d := New(config.NotificationConfig{WebhookURL: srv.URL}, config.TelegramConfig{}, nil, nil)
	got := d.Dispatch(context.Background(), Payload{EventID: "evt-1", ShouldNotify: false})

	assert.Equal(t, Delivered{}, got)
	assert.Equal(t, 0, rec.count())
}

func TestDispatch_WebhookCarriesPayloadAndSecret(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	d := New(
		config.NotificationConfig{WebhookURL: srv.URL, WebhookSecret: "hush"},
		config.TelegramConfig{}, nil, nil,
	)
	got := d.Dispatch(context.Background(), Payload{
		EventID:      "evt-1",
		SessionID:    "sess-1",
		Label:        "person",
		Summary:      "someone at the door",
		Confidence:   ptr(0.9),
		ShouldNotify: true,
	})

	assert.Equal(t, Delivered{WebhookSent: true}, got)
	require.Equal(t, 1, rec.count())
	body := rec.last()
	assert.Equal(t, "evt-1", body["event_id"])
	assert.Equal(t, "person", body["label"])
	assert.Equal(t, 0.9, body["confidence"])
	assert.Equal(t, "hush", rec.secret)
}

func TestDispatch_TelegramFailureDoesNotBlockWebhook(t *testing.T) {
	tg := fakeTelegramAPI(t, true)
	defer tg.Close()
	rec := &webhookRecorder{}
	hook := httptest.NewServer(rec.handler())
	defer hook.Close()

	d := newTelegramDispatcher(t, tg.URL, hook.URL)
	got := d.Dispatch(context.Background(), Payload{EventID: "evt-1", DeviceID: "dev-1", ShouldNotify: true})

	assert.Equal(t, Delivered{TelegramSent: false, WebhookSent: true}, got)
	assert.Equal(t, 1, rec.count())
}

func TestDispatch_WebhookFailureDoesNotUndoTelegram(t *testing.T) {
	tg := fakeTelegramAPI(t, false)
	defer tg.Close()
	rec := &webhookRecorder{status: http.StatusBadGateway}
	hook := httptest.NewServer(rec.handler())
	defer hook.Close()

	d := newTelegramDispatcher(t, tg.URL, hook.URL)
	got := d.Dispatch(context.Background(), Payload{EventID: "evt-1", DeviceID: "dev-1", ShouldNotify: true})

	assert.Equal(t, Delivered{TelegramSent: true, WebhookSent: false}, got)
}

func TestDispatch_NoChannelsConfigured(t *testing.T) {
	d := New(config.NotificationConfig{}, config.TelegramConfig{}, nil, nil)
	got := d.Dispatch(context.Background(), Payload{EventID: "evt-1", ShouldNotify: true})
	assert.Equal(t, Delivered{}, got)
}

func TestHTTPChatResolver_ResolvesAndMisses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("device_id") == "dev-1" {
			_ = json.NewEncoder(w).Encode(map[string]any{"linked": true, "chat_id": "987654321"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := &HTTPChatResolver{BaseURL: srv.URL}

	chatID, ok, err := r.ResolveChatID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "987654321", chatID)

	_, ok, err = r.ResolveChatID(context.Background(), "dev-unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

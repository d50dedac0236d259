// Package notify implements best-effort outbound alert delivery over
// Telegram and a generic webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/pingwatch/pingwatch/internal/config"
)

// Payload carries everything a single alert delivery needs.
type Payload struct {
	EventID           string
	SessionID         string
	Summary           string
	Label             string
	Confidence        *float64
	AlertReason       string
	InferenceProvider string
	InferenceModel    string
	ClipURI           string
	ClipMime          string
	ClipData          []byte
	DeviceID          string
	ShouldNotify      bool
	MatchedRules      []string
	DetectedEntities  []string
	DetectedActions   []string
}

// Delivered reports which channels actually sent.
type Delivered struct {
	TelegramSent bool `json:"telegram_sent"`
	WebhookSent  bool `json:"webhook_sent"`
}

// ChatResolver looks up the Telegram chat ID bound to a device, normally
// via GET /notifications/telegram/target. In-process deployments can supply a
// direct store-backed resolver instead of an HTTP round-trip.
type ChatResolver interface {
	ResolveChatID(ctx context.Context, deviceID string) (string, bool, error)
}

// HTTPChatResolver calls the control API's notifications/telegram/target
// endpoint.
type HTTPChatResolver struct {
	BaseURL string
	Client  *http.Client
}

func (r *HTTPChatResolver) ResolveChatID(ctx context.Context, deviceID string) (string, bool, error) {
	url := strings.TrimRight(r.BaseURL, "/") + "/notifications/telegram/target?device_id=" + deviceID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}
	var data struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", false, err
	}
	chatID := strings.TrimSpace(data.ChatID)
	return chatID, chatID != "", nil
}

// Dispatcher sends alert-worthy events to configured channels.
type Dispatcher struct {
	cfg      config.NotificationConfig
	telegram config.TelegramConfig
	bot      *telego.Bot
	resolver ChatResolver
	http     *http.Client
	limiter  *rate.Limiter
}

// New builds a Dispatcher. bot may be nil if the Telegram token is unset,
// in which case Telegram delivery is always skipped.
func New(cfg config.NotificationConfig, tgCfg config.TelegramConfig, bot *telego.Bot, resolver ChatResolver) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		telegram: tgCfg,
		bot:      bot,
		resolver: resolver,
		http:     &http.Client{Timeout: cfg.Timeout},
		// Telegram's Bot API allows ~30 messages/second globally; alerts
		// are rare, so 5/sec with a small burst stays well under it.
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// Dispatch performs best-effort delivery to every configured channel: a
// failure on one channel never blocks the other, and a should_notify=false
// payload is a pure no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) Delivered {
	var delivered Delivered

	telegramConfigured := d.bot != nil
	webhookConfigured := d.cfg.WebhookURL != ""
	slog.Info("notification dispatch requested",
		"event_id", p.EventID, "should_notify", p.ShouldNotify,
		"telegram_configured", telegramConfigured, "webhook_configured", webhookConfigured)

	if !p.ShouldNotify {
		slog.Info("skipping outbound notifications: should_notify=false", "event_id", p.EventID)
		return delivered
	}
	if !telegramConfigured && !webhookConfigured {
		slog.Warn("no outbound notification channels configured", "event_id", p.EventID)
		return delivered
	}

	sent, err := d.sendTelegram(ctx, p)
	if err != nil {
		slog.Warn("telegram notification failed", "event_id", p.EventID, "error", err)
	}
	delivered.TelegramSent = sent

	sent, err = d.sendWebhook(ctx, p)
	if err != nil {
		slog.Warn("webhook notification failed", "event_id", p.EventID, "error", err)
	}
	delivered.WebhookSent = sent

	slog.Info("notification dispatch finished", "event_id", p.EventID,
		"telegram_sent", delivered.TelegramSent, "webhook_sent", delivered.WebhookSent)
	return delivered
}

func (d *Dispatcher) sendTelegram(ctx context.Context, p Payload) (bool, error) {
	if d.bot == nil {
		return false, nil
	}
	var chatID string
	if p.DeviceID != "" && d.resolver != nil {
		resolved, ok, err := d.resolver.ResolveChatID(ctx, p.DeviceID)
		if err != nil {
			slog.Warn("failed to resolve telegram target", "event_id", p.EventID, "device_id", p.DeviceID, "error", err)
		} else if ok {
			chatID = resolved
		}
	}
	if chatID == "" {
		slog.Info("no telegram chat target resolved", "event_id", p.EventID, "device_id", p.DeviceID)
		return false, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return false, err
	}

	caption := buildAlertText(p)
	chat := tu.ID(mustParseChatID(chatID))

	if d.telegram.SendVideo && len(p.ClipData) > 0 {
		mime := normalizeVideoMime(p.ClipMime)
		filename := fmt.Sprintf("clip-%s%s", p.EventID, extensionForMime(mime))
		video := tu.Video(chat, tu.File(tu.NameReader(bytes.NewReader(p.ClipData), filename)))
		video.Caption = caption
		video.SupportsStreaming = true
		if _, err := d.bot.SendVideo(ctx, video); err != nil {
			return false, err
		}
		return true, nil
	}

	msg := tu.Message(chat, caption)
	msg.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
	if _, err := d.bot.SendMessage(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) sendWebhook(ctx context.Context, p Payload) (bool, error) {
	if d.cfg.WebhookURL == "" {
		return false, nil
	}

	body := map[string]any{
		"event_id":           p.EventID,
		"session_id":         p.SessionID,
		"should_notify":      p.ShouldNotify,
		"label":              p.Label,
		"confidence":         p.Confidence,
		"summary":            p.Summary,
		"alert_reason":       p.AlertReason,
		"matched_rules":      orEmpty(p.MatchedRules),
		"detected_entities":  orEmpty(p.DetectedEntities),
		"detected_actions":   orEmpty(p.DetectedActions),
		"inference_provider": p.InferenceProvider,
		"inference_model":    p.InferenceModel,
		"clip_uri":           p.ClipURI,
		"clip_mime":          normalizeVideoMime(p.ClipMime),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(raw))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.WebhookSecret != "" {
		req.Header.Set("X-Ping-Watch-Webhook-Secret", d.cfg.WebhookSecret)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return true, nil
}

// buildAlertText lays out the fixed-order caption shared by sendVideo and
// sendMessage.
func buildAlertText(p Payload) string {
	confidence := "n/a"
	if p.Confidence != nil {
		confidence = fmt.Sprintf("%d%%", int(*p.Confidence*100+0.5))
	}
	label := p.Label
	if label == "" {
		label = "unknown"
	}
	lines := []string{
		"Ping Watch alert",
		"Event: " + p.EventID,
		"Label: " + label,
		"Confidence: " + confidence,
		"Summary: " + p.Summary,
	}
	if p.AlertReason != "" {
		lines = append(lines, "Reason: "+p.AlertReason)
	}
	if p.ClipURI != "" {
		lines = append(lines, "Clip: "+p.ClipURI)
	}
	return strings.Join(lines, "\n")
}

func normalizeVideoMime(mime string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	if base == "" {
		return "video/webm"
	}
	return base
}

func extensionForMime(mime string) string {
	switch mime {
	case "video/mp4":
		return ".mp4"
	default:
		return ".webm"
	}
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func mustParseChatID(s string) int64 {
	var id int64
	_, _ = fmt.Sscanf(s, "%d", &id)
	return id
}

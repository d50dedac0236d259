// Package telegram implements the device-to-chat linking protocol:
// the link-attempt state machine, token hashing, webhook ingress, and
// fallback long-poll pull.
package telegram

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/store"
)

// ReadinessStatus is the device's Telegram-binding status exposed by
// GET /notifications/telegram/readiness.
type ReadinessStatus string

const (
	ReadinessNotConfigured   ReadinessStatus = "not_configured"
	ReadinessUnknownDevice   ReadinessStatus = "unknown_device"
	ReadinessNeedsUserAction ReadinessStatus = "needs_user_action"
	ReadinessReady           ReadinessStatus = "ready"
	ReadinessError           ReadinessStatus = "error"
)

// Linker owns link-attempt lifecycle and the long-poll fallback pull.
type Linker struct {
	cfg     config.TelegramConfig
	bot     *telego.Bot
	links   store.TelegramLinkStore
	devices store.DeviceStore

	pollMu     sync.Mutex
	pollOffset int
}

// New constructs a Linker. bot is nil when TELEGRAM_BOT_TOKEN is unset, in
// which case Readiness reports ReadinessNotConfigured, no replies are sent
// and no updates are pulled.
func New(cfg config.TelegramConfig, bot *telego.Bot, links store.TelegramLinkStore, devices store.DeviceStore) *Linker {
	return &Linker{cfg: cfg, bot: bot, links: links, devices: devices}
}

// Configured reports whether a bot token is present.
func (l *Linker) Configured() bool {
	return l.bot != nil
}

// newToken mints a >=192-bit URL-safe random token and its SHA-256 hash.
// Only the hash is ever persisted; a 10-hex-char fingerprint of the hash may
// be logged, never the raw token.
func newToken() (token, hash string, err error) {
	buf := make([]byte, 24) // 192 bits
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(token))
	hash = hex.EncodeToString(sum[:])
	return token, hash, nil
}

func fingerprint(tokenHash string) string {
	if len(tokenHash) < 10 {
		return tokenHash
	}
	return tokenHash[:10]
}

// StartLink begins a link attempt for deviceID, returning the attempt and a
// connect URL for the user to open.
func (l *Linker) StartLink(ctx context.Context, deviceID string, userID *string) (*store.TelegramLinkAttempt, string, error) {
	token, tokenHash, err := newToken()
	if err != nil {
		return nil, "", err
	}
	expiresAt := time.Now().UTC().Add(l.cfg.LinkTokenTTL)
	attempt, err := l.links.Create(ctx, deviceID, userID, tokenHash, expiresAt)
	if err != nil {
		return nil, "", err
	}
	slog.Info("telegram link attempt started", "device_id", deviceID, "attempt_id", attempt.AttemptID, "token_fingerprint", fingerprint(tokenHash))
	return attempt, l.connectURL(token), nil
}

// connectURL builds the deep link the user opens to confirm, templating
// {start_payload}/{token} when present in the onboarding URL, else appending
// ?start=<token> preserving any existing query.
func (l *Linker) connectURL(token string) string {
	base := l.cfg.OnboardingURL
	if base == "" {
		base = "https://t.me/" // no bot username configured; best-effort
	}
	if strings.Contains(base, "{start_payload}") {
		return strings.ReplaceAll(base, "{start_payload}", token)
	}
	if strings.Contains(base, "{token}") {
		return strings.ReplaceAll(base, "{token}", token)
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?start=" + token
	}
	q := u.Query()
	q.Set("start", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Status reports the current attempt status, lazily transitioning a
// pending attempt to expired when past expiry.
func (l *Linker) Status(ctx context.Context, attemptID string) (*store.TelegramLinkAttempt, error) {
	attempt, err := l.links.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == store.LinkPending && time.Now().UTC().After(attempt.ExpiresAt) {
		if err := l.links.MarkExpired(ctx, attemptID); err != nil {
			return nil, err
		}
		attempt.Status = store.LinkExpired
	}
	return attempt, nil
}

// Readiness computes the device's Telegram-binding state.
func (l *Linker) Readiness(ctx context.Context, deviceID string, userID *string) (ReadinessStatus, *store.NotificationEndpoint, error) {
	if !l.Configured() {
		return ReadinessNotConfigured, nil, nil
	}
	device, err := l.devices.Get(ctx, deviceID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ReadinessUnknownDevice, nil, nil
		}
		return ReadinessError, nil, err
	}
	if device.TelegramEndpointID == nil {
		return ReadinessNeedsUserAction, nil, nil
	}
	return ReadinessReady, nil, nil
}

// incomingMessage is the minimal shape extracted from a Telegram Update,
// whether delivered via webhook push or getUpdates pull.
type incomingMessage struct {
	chatID           int64
	text             string
	telegramUsername *string
}

// HandleWebhook processes a single POST /notifications/telegram/webhook
// body, the push confirmation path: a valid token
// against a PENDING attempt atomically links; malformed/unknown tokens get a
// polite reply (webhook path only) with no state change.
func (l *Linker) HandleWebhook(ctx context.Context, update telego.Update) error {
	msg := extractMessage(update)
	if msg == nil {
		return nil
	}
	return l.handleIncoming(ctx, *msg, true)
}

// pullUpdates drives a best-effort getUpdates long-poll pass, retrying once
// via deleteWebhook on a 409 ("webhook active"), processing every update with
// user feedback suppressed so a concurrently delivered webhook does not
// double-message the user.
func (l *Linker) pullUpdates(ctx context.Context) {
	l.pollMu.Lock()
	defer l.pollMu.Unlock()

	updates, err := l.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:  l.pollOffset,
		Timeout: 0,
	})
	if err != nil {
		if isConflict(err) {
			_ = l.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{})
			updates, err = l.bot.GetUpdates(ctx, &telego.GetUpdatesParams{Offset: l.pollOffset, Timeout: 0})
		}
		if err != nil {
			slog.Warn("telegram link pull failed", "error", err)
			return
		}
	}

	for _, u := range updates {
		if u.UpdateID >= l.pollOffset {
			l.pollOffset = u.UpdateID + 1
		}
		msg := extractMessage(u)
		if msg == nil {
			continue
		}
		if err := l.handleIncoming(ctx, *msg, l.cfg.PullConfirm); err != nil {
			slog.Warn("telegram link pull: handling update failed", "error", err)
		}
	}
}

func isConflict(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "409") || strings.Contains(strings.ToLower(err.Error()), "conflict")
}

func extractMessage(u telego.Update) *incomingMessage {
	m := u.Message
	if m == nil {
		m = u.EditedMessage
	}
	if m == nil || m.Text == "" {
		return nil
	}
	out := &incomingMessage{chatID: m.Chat.ID, text: m.Text}
	if m.From != nil && m.From.Username != "" {
		username := m.From.Username
		out.telegramUsername = &username
	}
	return out
}

// handleIncoming implements the shared message handler for both the webhook
// push path and the pull fallback: parse "/start <token>", look up a
// PENDING attempt by the token's hash, and atomically link on match.
func (l *Linker) handleIncoming(ctx context.Context, msg incomingMessage, sendFeedback bool) error {
	token, ok := parseStartCommand(msg.text)
	if !ok {
		return nil
	}

	sum := sha256.Sum256([]byte(token))
	tokenHash := hex.EncodeToString(sum[:])

	attempt, err := l.links.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if sendFeedback {
				l.reply(ctx, msg.chatID, "That link isn't valid or has expired. Start a new link from the Ping Watch app.")
			}
			return nil
		}
		return err
	}
	if attempt.Status != store.LinkPending {
		if sendFeedback {
			l.reply(ctx, msg.chatID, "That link has already been used.")
		}
		return nil
	}
	if time.Now().UTC().After(attempt.ExpiresAt) {
		_ = l.links.MarkExpired(ctx, attempt.AttemptID)
		if sendFeedback {
			l.reply(ctx, msg.chatID, "That link has expired. Start a new link from the Ping Watch app.")
		}
		return nil
	}

	chatID := fmt.Sprintf("%d", msg.chatID)
	if _, err := l.links.MarkLinked(ctx, attempt.AttemptID, chatID, msg.telegramUsername); err != nil {
		return err
	}
	slog.Info("telegram link confirmed", "attempt_id", attempt.AttemptID, "device_id", attempt.DeviceID, "chat_id", chatID)

	if sendFeedback {
		l.reply(ctx, msg.chatID, "Ping Watch is now linked to this chat. You'll receive alerts here.")
	}
	return nil
}

func (l *Linker) reply(ctx context.Context, chatID int64, text string) {
	if l.bot == nil {
		return
	}
	if _, err := l.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		slog.Warn("telegram link reply failed", "chat_id", chatID, "error", err)
	}
}

// parseStartCommand extracts the token from a "/start <token>" message,
// accepting an optional @botname suffix on the command.
func parseStartCommand(text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return "", false
	}
	cmd := strings.ToLower(fields[0])
	if cmd != "/start" && !strings.HasPrefix(cmd, "/start@") {
		return "", false
	}
	token := strings.TrimSpace(fields[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// PollStatus drives the pull fallback and then re-reads attempt status,
// matching GET /notifications/telegram/link/status's documented side effect
// while an attempt is still PENDING.
func (l *Linker) PollStatus(ctx context.Context, attemptID string) (*store.TelegramLinkAttempt, error) {
	attempt, err := l.Status(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == store.LinkPending && l.Configured() {
		l.pullUpdates(ctx)
		attempt, err = l.Status(ctx, attemptID)
		if err != nil {
			return nil, err
		}
	}
	return attempt, nil
}

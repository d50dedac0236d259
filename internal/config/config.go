// Package config loads Ping Watch's configuration: a baseline of defaults,
// optionally overlaid by a JSON5 file for non-secret tunables, then overlaid
// by environment variables for everything secret or operationally
// significant. Env always wins.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type DatabaseConfig struct {
	// PostgresDSN is never read from a config file; secrets are env-only.
	PostgresDSN string `json:"-"`
}

type AuthConfig struct {
	Required        bool
	DevLoginEnabled bool
	TokenTTL        time.Duration
}

type BlobConfig struct {
	Endpoint            string `json:"-"`
	AccountName         string
	AccountKey          string `json:"-"`
	Container           string
	AutoCreateContainer bool
	SASExpirySeconds    int
	SASVersion          string
	SASProtocol         string
	RequestTimeout      time.Duration
	LocalUploadDir      string
}

type InferenceConfig struct {
	NumFrames       int
	FramesDir       string
	PrimaryModel    string
	PrimaryToken    string `json:"-"`
	PrimaryBaseURL  string
	FallbackModel   string
	FallbackToken   string `json:"-"`
	FallbackBaseURL string
	RequestTimeout  time.Duration
}

type TelegramConfig struct {
	APIBaseURL    string
	BotToken      string `json:"-"`
	WebhookSecret string `json:"-"`
	OnboardingURL string
	LinkTokenTTL  time.Duration
	SendVideo     bool
	PullConfirm   bool
}

type NotificationConfig struct {
	Timeout       time.Duration
	WebhookURL    string
	WebhookSecret string `json:"-"`
}

type WorkerConfig struct {
	LogLevel               string
	TestMode               bool
	FinalizeEnqueueRetries int
	APIBaseURL             string
	PollInterval           time.Duration
}

type QueueConfig struct {
	Name string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type Config struct {
	Database     DatabaseConfig
	Auth         AuthConfig
	Blob         BlobConfig
	Inference    InferenceConfig
	Telegram     TelegramConfig
	Notification NotificationConfig
	Worker       WorkerConfig
	Queue        QueueConfig
	Telemetry    TelemetryConfig

	HTTPAddr          string
	CORSTunnelDomains []string
}

// Default returns the baseline configuration before any file or environment
// overlay.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			Required:        true,
			DevLoginEnabled: true,
			TokenTTL:        24 * time.Hour,
		},
		Blob: BlobConfig{
			Container:           "clips",
			AutoCreateContainer: true,
			SASExpirySeconds:    900,
			SASVersion:          "2020-10-02",
			SASProtocol:         "http",
			RequestTimeout:      2 * time.Second,
			LocalUploadDir:      "./data/clips",
		},
		Inference: InferenceConfig{
			NumFrames:      3,
			FramesDir:      "./data/frames",
			PrimaryModel:   "zai-org/GLM-4.6V-FP8:zai-org",
			FallbackModel:  "nvidia/nemotron-nano-12b-v2-vl",
			RequestTimeout: 60 * time.Second,
		},
		Telegram: TelegramConfig{
			APIBaseURL:   "https://api.telegram.org",
			LinkTokenTTL: 15 * time.Minute,
			SendVideo:    true,
			PullConfirm:  false,
		},
		Notification: NotificationConfig{
			Timeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			LogLevel:               "info",
			FinalizeEnqueueRetries: 0,
			APIBaseURL:             "http://localhost:8080",
			PollInterval:           2 * time.Second,
		},
		Queue: QueueConfig{
			Name: "clip_uploaded",
		},
		HTTPAddr: ":8080",
	}
}

// Load builds the effective configuration: defaults, an optional JSON5 file
// overlay (path may be empty), then environment variables, which always win.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := overlayJSON5File(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envStr(&cfg.Database.PostgresDSN, "PINGWATCH_POSTGRES_DSN")

	envBool(&cfg.Auth.Required, "PINGWATCH_AUTH_REQUIRED")
	envBool(&cfg.Auth.DevLoginEnabled, "PINGWATCH_DEV_LOGIN_ENABLED")
	envDurationSeconds(&cfg.Auth.TokenTTL, "PINGWATCH_AUTH_TOKEN_TTL_SECONDS")
	clampAuthTokenTTL(cfg)

	envStr(&cfg.Blob.Endpoint, "AZURITE_BLOB_ENDPOINT")
	envStr(&cfg.Blob.AccountName, "AZURITE_ACCOUNT_NAME")
	envStr(&cfg.Blob.AccountKey, "AZURITE_ACCOUNT_KEY")
	envStr(&cfg.Blob.Container, "AZURITE_CLIPS_CONTAINER")
	envBool(&cfg.Blob.AutoCreateContainer, "AZURITE_AUTO_CREATE_CONTAINER")
	envInt(&cfg.Blob.SASExpirySeconds, "AZURITE_SAS_EXPIRY_SECONDS")
	envStr(&cfg.Blob.SASVersion, "AZURITE_SAS_VERSION")
	envStr(&cfg.Blob.SASProtocol, "AZURITE_SAS_PROTOCOL")
	envDurationSeconds(&cfg.Blob.RequestTimeout, "AZURITE_REQUEST_TIMEOUT_SECONDS")
	envStr(&cfg.Blob.LocalUploadDir, "PINGWATCH_LOCAL_UPLOAD_DIR")

	envInt(&cfg.Inference.NumFrames, "INFERENCE_NUM_FRAMES")
	envStr(&cfg.Inference.FramesDir, "INFERENCE_FRAMES_DIR")
	envStr(&cfg.Inference.PrimaryModel, "PINGWATCH_PRIMARY_MODEL")
	envStr(&cfg.Inference.PrimaryToken, "HF_TOKEN")
	if cfg.Inference.PrimaryToken == "" {
		envStr(&cfg.Inference.PrimaryToken, "HF_API_TOKEN")
	}
	envStr(&cfg.Inference.PrimaryBaseURL, "PINGWATCH_PRIMARY_BASE_URL")
	envStr(&cfg.Inference.FallbackModel, "PINGWATCH_FALLBACK_MODEL")
	envStr(&cfg.Inference.FallbackToken, "NVIDIA_API_KEY")
	if cfg.Inference.FallbackToken == "" {
		envStr(&cfg.Inference.FallbackToken, "NV_API_KEY")
	}
	envStr(&cfg.Inference.FallbackBaseURL, "PINGWATCH_FALLBACK_BASE_URL")
	envDurationSeconds(&cfg.Inference.RequestTimeout, "PINGWATCH_INFERENCE_TIMEOUT_SECONDS")

	envStr(&cfg.Telegram.APIBaseURL, "TELEGRAM_API_BASE_URL")
	envStr(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	envStr(&cfg.Telegram.WebhookSecret, "TELEGRAM_WEBHOOK_SECRET")
	envStr(&cfg.Telegram.OnboardingURL, "TELEGRAM_ONBOARDING_URL")
	envDurationSeconds(&cfg.Telegram.LinkTokenTTL, "PINGWATCH_LINK_TOKEN_TTL_SECONDS")
	envBool(&cfg.Telegram.SendVideo, "TELEGRAM_SEND_VIDEO")
	envBool(&cfg.Telegram.PullConfirm, "PINGWATCH_LINK_PULL_CONFIRM")

	envDurationSeconds(&cfg.Notification.Timeout, "NOTIFICATION_TIMEOUT_SECONDS")
	envStr(&cfg.Notification.WebhookURL, "NOTIFY_WEBHOOK_URL")
	envStr(&cfg.Notification.WebhookSecret, "NOTIFY_WEBHOOK_SECRET")

	envStr(&cfg.Worker.LogLevel, "WORKER_LOG_LEVEL")
	envBool(&cfg.Worker.TestMode, "PING_WATCH_TEST_MODE")
	envInt(&cfg.Worker.FinalizeEnqueueRetries, "PINGWATCH_FINALIZE_ENQUEUE_RETRIES")
	envStr(&cfg.Worker.APIBaseURL, "PINGWATCH_API_BASE_URL")
	envDurationSeconds(&cfg.Worker.PollInterval, "PINGWATCH_WORKER_POLL_INTERVAL_SECONDS")

	envStr(&cfg.Queue.Name, "PINGWATCH_QUEUE_NAME")

	envBool(&cfg.Telemetry.Enabled, "PINGWATCH_OTEL_ENABLED")
	envStr(&cfg.Telemetry.OTLPEndpoint, "PINGWATCH_OTEL_ENDPOINT")
	envStr(&cfg.Telemetry.ServiceName, "PINGWATCH_OTEL_SERVICE_NAME")

	envStr(&cfg.HTTPAddr, "PINGWATCH_HTTP_ADDR")
	envStringList(&cfg.CORSTunnelDomains, "PINGWATCH_CORS_TUNNEL_DOMAINS")
}

func envStringList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

// clampAuthTokenTTL bounds the token TTL to [5 min, 30 days].
func clampAuthTokenTTL(cfg *Config) {
	const minTTL = 5 * time.Minute
	const maxTTL = 30 * 24 * time.Hour
	if cfg.Auth.TokenTTL < minTTL {
		cfg.Auth.TokenTTL = minTTL
	}
	if cfg.Auth.TokenTTL > maxTTL {
		cfg.Auth.TokenTTL = maxTTL
	}
}

func envStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	*dst = isTruthy(v)
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envDurationSeconds(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(f * float64(time.Second))
	}
}

// isTruthy accepts the usual env-var spellings of true.
func isTruthy(v string) bool {
	switch v {
	case "1", "true", "True", "TRUE", "yes", "Yes", "YES", "on", "On", "ON":
		return true
	default:
		return false
	}
}

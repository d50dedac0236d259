package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pingwatch/pingwatch/internal/config"
)

func TestParseStartCommand(t *testing.T) {
	cases := []struct {
		text      string
		wantToken string
		wantOK    bool
	}{
		{"/start abc123", "abc123", true},
		{"/start@pingwatch_bot abc123", "abc123", true},
		{"  /start   abc123  ", "abc123", true},
		{"/help", "", false},
		{"hello there", "", false},
		{"/start", "", false},
	}
	for _, c := range cases {
		token, ok := parseStartCommand(c.text)
		assert.Equal(t, c.wantOK, ok, c.text)
		assert.Equal(t, c.wantToken, token, c.text)
	}
}

func TestLinker_ConnectURL_StartPayloadTemplate(t *testing.T) {
	l := New(config.TelegramConfig{OnboardingURL: "https://t.me/pingwatch_bot?start={start_payload}"}, nil, nil, nil)
	got := l.connectURL("tok-1")
	assert.Equal(t, "https://t.me/pingwatch_bot?start=tok-1", got)
}

func TestLinker_ConnectURL_AppendsStartQueryParam(t *testing.T) {
	l := New(config.TelegramConfig{OnboardingURL: "https://t.me/pingwatch_bot"}, nil, nil, nil)
	got := l.connectURL("tok-2")
	assert.Equal(t, "https://t.me/pingwatch_bot?start=tok-2", got)
}

func TestLinker_Configured(t *testing.T) {
	l := New(config.TelegramConfig{}, nil, nil, nil)
	assert.False(t, l.Configured())
}

func TestFingerprint_TruncatesHash(t *testing.T) {
	assert.Equal(t, "abcdefghij", fingerprint("abcdefghijklmnop"))
	assert.Equal(t, "short", fingerprint("short"))
}

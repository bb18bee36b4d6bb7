package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ARK_MODEL", "ARK_API_KEY", "SPEECH_APP_ID", "SPEECH_ACCESS_TOKEN", "COACH_TIMEOUT", "COACH_MUTE", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.AI.Enabled() {
		t.Fatal("AI must be disabled without credentials")
	}
	if cfg.Speech.Enabled {
		t.Fatal("speech must be disabled without credentials")
	}
	if cfg.Coach.Timeout != 0 {
		t.Fatalf("expected no request timeout by default, got %s", cfg.Coach.Timeout)
	}
	if cfg.Coach.Endpoint == "" || cfg.Coach.UserID == "" {
		t.Fatal("expected coach defaults to be populated")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("ARK_MODEL", "ep-test")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("COACH_TIMEOUT", "15")
	t.Setenv("COACH_MUTE", "true")
	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_ACCESS_TOKEN", "token")
	t.Setenv("COACH_TONE_LLM", "1")
	t.Setenv("COACH_HISTORY_LIMIT", "-4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if !cfg.AI.Enabled() {
		t.Fatal("expected AI enabled")
	}
	if !cfg.Speech.Enabled {
		t.Fatal("expected speech enabled")
	}
	if cfg.Coach.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Coach.Timeout)
	}
	if !cfg.Coach.Mute {
		t.Fatal("expected mute")
	}
	if !cfg.AI.ToneLLM || cfg.AI.HistoryLimit != 0 {
		t.Fatalf("unexpected AI overrides: tone=%v history=%d", cfg.AI.ToneLLM, cfg.AI.HistoryLimit)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{key: "PORT", value: "80 80"},
		{key: "COACH_TIMEOUT", value: "soon"},
		{key: "COACH_MUTE", value: "maybe"},
		{key: "ARK_TEMPERATURE", value: "hot"},
		{key: "COACH_TONE_LLM", value: "sometimes"},
		{key: "COACH_HISTORY_LIMIT", value: "ten"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

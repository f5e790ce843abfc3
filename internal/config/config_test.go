package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.DispatchMode != DispatchDirect {
		t.Fatalf("DispatchMode = %q, want %q", cfg.DispatchMode, DispatchDirect)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
}

func TestLoadPortFallback(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":3000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":3000")
	}
}

func TestLoadExplicitBindAddrWinsOverPort(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "3000")
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
}

func TestLoadRejectsBadDispatchMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("DISPATCH_MODE", "broadcast")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for bad DISPATCH_MODE")
	}
}

func TestLoadRejectsTinyIdleTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AGENT_IDLE_TIMEOUT", "200ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for sub-second AGENT_IDLE_TIMEOUT")
	}
}

func TestValidateLiveRequiresTransportURL(t *testing.T) {
	cfg := Config{
		DeepgramAPIKey:   "dg",
		OpenAIAPIKey:     "oa",
		ElevenLabsAPIKey: "xi",
	}
	if err := cfg.ValidateLive(); err == nil {
		t.Fatalf("ValidateLive() expected error for missing LIVEKIT_URL")
	}

	cfg.LiveKitURL = "wss://example.livekit.cloud"
	if err := cfg.ValidateLive(); err != nil {
		t.Fatalf("ValidateLive() error = %v", err)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"DISPATCH_MODE",
		"LIVEKIT_URL",
		"VOICE_PROVIDER",
		"DEEPGRAM_API_KEY",
		"DEEPGRAM_WS_URL",
		"DEEPGRAM_MODEL",
		"DEEPGRAM_LANGUAGE",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_TTS_VOICE_ID",
		"ELEVENLABS_TTS_MODEL_ID",
		"DATABASE_URL",
		"AGENT_IDLE_TIMEOUT",
		"JOB_POLL_INTERVAL",
		"PORT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

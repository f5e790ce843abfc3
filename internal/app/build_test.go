package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/antoniostano/agentdispatch/internal/config"
)

func testConfig(mode string) config.Config {
	return config.Config{
		BindAddr:         ":0",
		MetricsNamespace: fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		DispatchMode:     mode,
		VoiceProvider:    "mock",
		IdleTimeout:      time.Minute,
		PollInterval:     2 * time.Second,
	}
}

func TestBuildDirectMode(t *testing.T) {
	res, err := Build(context.Background(), testConfig(config.DispatchDirect))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer res.Cleanup()

	if res.API == nil || res.Dispatcher == nil || res.Store == nil {
		t.Fatal("incomplete build result")
	}
	if res.Poller != nil {
		t.Fatal("direct mode must not build a poller")
	}
	if res.Config.VoiceProvider != "mock" {
		t.Fatalf("resolved provider = %q", res.Config.VoiceProvider)
	}
}

func TestBuildQueueModeHasPoller(t *testing.T) {
	res, err := Build(context.Background(), testConfig(config.DispatchQueue))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer res.Cleanup()

	if res.Poller == nil {
		t.Fatal("queue mode needs a poller")
	}
}

func TestBuildRejectsUnknownVoiceProvider(t *testing.T) {
	cfg := testConfig(config.DispatchDirect)
	cfg.VoiceProvider = "whisper"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown VOICE_PROVIDER")
	}
}

func TestResolveVoiceStackAutoFallsBackToMock(t *testing.T) {
	cfg := testConfig(config.DispatchDirect)
	cfg.VoiceProvider = "auto"
	stack, err := resolveVoiceStack(cfg)
	if err != nil {
		t.Fatalf("resolveVoiceStack: %v", err)
	}
	if stack.resolvedProvider != "mock" {
		t.Fatalf("resolved = %q, want mock without credentials", stack.resolvedProvider)
	}
}

func TestResolveVoiceStackLiveRequiresCredentials(t *testing.T) {
	cfg := testConfig(config.DispatchDirect)
	cfg.VoiceProvider = "live"
	if _, err := resolveVoiceStack(cfg); err == nil {
		t.Fatal("expected error when live credentials are missing")
	}
}

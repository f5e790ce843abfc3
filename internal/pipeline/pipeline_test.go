package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *captureSink) PublishData(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *captureSink) envelopes(t *testing.T) []agentAudioEnvelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agentAudioEnvelope, 0, len(s.payloads))
	for _, p := range s.payloads {
		var env agentAudioEnvelope
		if err := json.Unmarshal(p, &env); err != nil {
			t.Fatalf("bad sink payload %q: %v", p, err)
		}
		out = append(out, env)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestPipelineSpeaksGreetingOnStart(t *testing.T) {
	ctx := context.Background()
	provider := NewMockProvider()
	sink := &captureSink{}
	p := New(provider, provider, provider, sink, Config{SessionID: "s1"})
	defer p.Close()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, func() bool { return len(sink.envelopes(t)) >= 1 })
	envs := sink.envelopes(t)
	if envs[0].Type != "agent_audio" || envs[0].AudioBase64 == "" {
		t.Fatalf("unexpected first envelope: %+v", envs[0])
	}
}

func TestPipelineRepliesToCommittedTranscript(t *testing.T) {
	ctx := context.Background()
	provider := NewMockProvider()
	sink := &captureSink{}
	p := New(provider, provider, provider, sink, Config{SessionID: "s1"})
	defer p.Close()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return len(sink.envelopes(t)) >= 1 })

	if err := p.SendAudio(ctx, "YXVkaW8=", 16000, true); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}

	// Greeting plus the brain's reply to the committed transcript.
	waitFor(t, func() bool { return len(sink.envelopes(t)) >= 2 })
}

func TestPipelineStartTwiceFails(t *testing.T) {
	ctx := context.Background()
	provider := NewMockProvider()
	p := New(provider, provider, provider, &captureSink{}, Config{SessionID: "s1"})
	defer p.Close()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatalf("second Start() should fail")
	}
}

func TestPipelineSayBeforeStartFails(t *testing.T) {
	provider := NewMockProvider()
	p := New(provider, provider, provider, &captureSink{}, Config{SessionID: "s1"})
	if err := p.Say(context.Background(), "hello"); err == nil {
		t.Fatalf("Say() before Start() should fail")
	}
}

func TestSanitizeSpeechText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello **world**", "Hello world"},
		{"see https://example.com/docs for details", "see for details"},
		{"run `go test` now", "run now"},
		{"[docs](https://example.com)", "docs"},
		{"plain text", "plain text"},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := sanitizeSpeechText(tc.in); got != tc.want {
			t.Fatalf("sanitizeSpeechText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

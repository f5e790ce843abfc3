package pipeline

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
)

// MockProvider is the local fallback used when no provider keys are
// configured. It implements STT, TTS and the brain.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) StartSession(_ context.Context, _ string) (STTSession, <-chan STTEvent, error) {
	events := make(chan STTEvent, 64)
	return &mockSTTSession{events: events}, events, nil
}

func (p *MockProvider) StartStream(_ context.Context, _, _ string) (TTSStream, error) {
	return &mockTTSStream{events: make(chan TTSEvent, 128)}, nil
}

func (p *MockProvider) Reply(_ context.Context, _ []Message, userText string) (string, error) {
	return "You said: " + userText, nil
}

type mockSTTSession struct {
	mu     sync.Mutex
	events chan STTEvent
	closed bool
}

func (s *mockSTTSession) SendAudioChunk(_ context.Context, audioBase64 string, _ int, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if audioBase64 != "" {
		s.events <- STTEvent{Type: STTEventPartial, Text: "...", Confidence: 0.5}
	}
	if commit {
		s.events <- STTEvent{Type: STTEventCommitted, Text: "simulated voice input", Confidence: 0.7}
	}
	return nil
}

func (s *mockSTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

type mockTTSStream struct {
	mu     sync.Mutex
	events chan TTSEvent
	closed bool
}

func (s *mockTTSStream) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || strings.TrimSpace(text) == "" {
		return nil
	}
	s.events <- TTSEvent{
		Type:        TTSEventAudio,
		AudioBase64: base64.StdEncoding.EncodeToString([]byte(text)),
		Format:      "mock_text_bytes",
	}
	return nil
}

func (s *mockTTSStream) CloseInput(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.events <- TTSEvent{Type: TTSEventFinal}
	return nil
}

func (s *mockTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *mockTTSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

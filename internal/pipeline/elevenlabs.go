package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/agentdispatch/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	OutputFormat string
}

// ElevenLabsProvider streams text into the stream-input TTS websocket
// and emits base64 audio chunks.
type ElevenLabsProvider struct {
	cfg ElevenLabsConfig
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	return &ElevenLabsProvider{cfg: cfg}
}

func (p *ElevenLabsProvider) StartStream(ctx context.Context, voiceID, modelID string) (TTSStream, error) {
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("voice_id is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "eleven_multilingual_v2"
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", modelID)
	q.Set("output_format", p.cfg.OutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	s := &elevenStream{conn: conn, events: make(chan TTSEvent, 512)}
	go s.readLoop()
	// Prime the stream as documented for stream-input flows.
	_ = s.writeJSON(map[string]any{"text": " "})
	return s, nil
}

type elevenStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan TTSEvent
}

func (s *elevenStream) SendText(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.writeJSON(map[string]any{
		"text":                   text,
		"try_trigger_generation": true,
	})
}

func (s *elevenStream) CloseInput(_ context.Context) error {
	// An empty text message flushes and ends generation.
	return s.writeJSON(map[string]any{"text": ""})
}

func (s *elevenStream) Events() <-chan TTSEvent { return s.events }

func (s *elevenStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		retErr = s.conn.Close()
		close(s.events)
	})
	return retErr
}

func (s *elevenStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *elevenStream) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw struct {
			Audio       string `json:"audio"`
			IsFinal     bool   `json:"isFinal"`
			Error       string `json:"error"`
			MessageType string `json:"message_type"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if raw.Audio != "" {
			s.events <- TTSEvent{Type: TTSEventAudio, AudioBase64: raw.Audio, Format: "base64_audio"}
		}
		if raw.IsFinal {
			s.events <- TTSEvent{Type: TTSEventFinal}
		}
		if raw.Error != "" {
			s.events <- TTSEvent{
				Type:      TTSEventError,
				Code:      raw.MessageType,
				Detail:    raw.Error,
				Retryable: reliability.IsRetryableStreamError(raw.MessageType),
			}
		}
	}
}

func (s *elevenStream) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.events)
	})
}

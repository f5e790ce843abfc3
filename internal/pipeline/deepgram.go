package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/agentdispatch/internal/reliability"
)

type DeepgramConfig struct {
	APIKey    string
	WSBaseURL string
	Model     string
	Language  string
}

// DeepgramProvider streams audio to Deepgram's realtime listen
// endpoint and emits partial/committed transcripts.
type DeepgramProvider struct {
	cfg DeepgramConfig
}

func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.deepgram.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "nova-2"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en"
	}
	return &DeepgramProvider{cfg: cfg}
}

func (p *DeepgramProvider) StartSession(ctx context.Context, _ string) (STTSession, <-chan STTEvent, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/listen")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model", p.cfg.Model)
	q.Set("language", p.cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan STTEvent, 256)
	s := &deepgramSession{conn: conn, events: events}
	go s.readLoop()
	return s, events, nil
}

type deepgramSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan STTEvent
}

func (s *deepgramSession) SendAudioChunk(_ context.Context, audioBase64 string, _ int, commit bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if audioBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(audioBase64)
		if err != nil {
			return fmt.Errorf("decode audio chunk: %w", err)
		}
		if err := s.conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			return err
		}
	}
	if commit {
		return s.conn.WriteJSON(map[string]any{"type": "Finalize"})
	}
	return nil
}

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

func (s *deepgramSession) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var res deepgramResult
		if err := json.Unmarshal(data, &res); err != nil {
			continue
		}
		switch res.Type {
		case "Results":
			if len(res.Channel.Alternatives) == 0 {
				continue
			}
			alt := res.Channel.Alternatives[0]
			if strings.TrimSpace(alt.Transcript) == "" {
				continue
			}
			eventType := STTEventPartial
			if res.IsFinal {
				eventType = STTEventCommitted
			}
			s.events <- STTEvent{Type: eventType, Text: alt.Transcript, Confidence: alt.Confidence}
		case "Metadata", "UtteranceEnd", "SpeechStarted", "":
			// control events
		default:
			s.events <- STTEvent{
				Type:      STTEventError,
				Code:      res.Type,
				Detail:    res.Description,
				Retryable: reliability.IsRetryableStreamError(strings.ToLower(res.Type)),
			}
		}
	}
}

func (s *deepgramSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		retErr = s.conn.Close()
		close(s.events)
	})
	return retErr
}

func (s *deepgramSession) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.events)
	})
}

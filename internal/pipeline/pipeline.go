package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// DefaultSystemPrompt seeds the conversation when a call request does
// not carry its own initial prompt.
const DefaultSystemPrompt = "You are a voice assistant. Your interface with users is voice. " +
	"Use short and concise responses, and avoid unpronounceable punctuation."

// DefaultGreeting is spoken as soon as the pipeline starts.
const DefaultGreeting = "Hey, how can I help you today"

// AudioSink receives synthesized agent audio. A room connection
// satisfies this.
type AudioSink interface {
	PublishData(ctx context.Context, payload []byte) error
}

type Config struct {
	SessionID     string
	VoiceID       string
	ModelID       string
	InitialPrompt string
	Greeting      string
}

// Pipeline wires speech-to-text, the language model and text-to-speech
// into one conversational loop for a single session.
type Pipeline struct {
	stt   STTProvider
	tts   TTSProvider
	brain Brain
	sink  AudioSink
	cfg   Config

	mu      sync.Mutex
	history []Message
	session STTSession
	stream  TTSStream
	cancel  context.CancelFunc
	started bool
}

func New(stt STTProvider, tts TTSProvider, brain Brain, sink AudioSink, cfg Config) *Pipeline {
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	prompt := cfg.InitialPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return &Pipeline{
		stt:     stt,
		tts:     tts,
		brain:   brain,
		sink:    sink,
		cfg:     cfg,
		history: []Message{{Role: "system", Content: prompt}},
	}
}

// Start opens the provider streams and begins the conversational loop.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("pipeline already started")
	}
	p.started = true
	p.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())

	session, sttEvents, err := p.stt.StartSession(ctx, p.cfg.SessionID)
	if err != nil {
		cancel()
		return fmt.Errorf("start stt session: %w", err)
	}
	stream, err := p.tts.StartStream(ctx, p.cfg.VoiceID, p.cfg.ModelID)
	if err != nil {
		cancel()
		_ = session.Close()
		return fmt.Errorf("start tts stream: %w", err)
	}

	p.mu.Lock()
	p.session = session
	p.stream = stream
	p.cancel = cancel
	p.mu.Unlock()

	go p.forwardAudio(runCtx, stream.Events())
	go p.consumeTranscripts(runCtx, sttEvents)

	return p.Say(ctx, p.cfg.Greeting)
}

// SendAudio feeds caller audio into the transcription stream.
func (p *Pipeline) SendAudio(ctx context.Context, audioBase64 string, sampleRate int, commit bool) error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return fmt.Errorf("pipeline not started")
	}
	return session.SendAudioChunk(ctx, audioBase64, sampleRate, commit)
}

// Say synthesizes one line of agent speech.
func (p *Pipeline) Say(ctx context.Context, text string) error {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("pipeline not started")
	}
	clean := sanitizeSpeechText(text)
	if clean == "" {
		return nil
	}
	return stream.SendText(ctx, clean)
}

func (p *Pipeline) consumeTranscripts(ctx context.Context, events <-chan STTEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case STTEventCommitted:
				p.handleTurn(ctx, ev.Text)
			case STTEventError:
				log.Printf("session %s: stt error %s: %s", p.cfg.SessionID, ev.Code, ev.Detail)
			}
		}
	}
}

func (p *Pipeline) handleTurn(ctx context.Context, userText string) {
	p.mu.Lock()
	history := append([]Message{}, p.history...)
	p.mu.Unlock()

	reply, err := p.brain.Reply(ctx, history, userText)
	if err != nil {
		log.Printf("session %s: brain error: %v", p.cfg.SessionID, err)
		return
	}

	p.mu.Lock()
	p.history = append(p.history,
		Message{Role: "user", Content: userText},
		Message{Role: "assistant", Content: reply},
	)
	p.mu.Unlock()

	if err := p.Say(ctx, reply); err != nil {
		log.Printf("session %s: tts error: %v", p.cfg.SessionID, err)
	}
}

type agentAudioEnvelope struct {
	Type        string `json:"type"`
	AudioBase64 string `json:"audio_base_64"`
	Format      string `json:"format"`
}

func (p *Pipeline) forwardAudio(ctx context.Context, events <-chan TTSEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case TTSEventAudio:
				payload, err := json.Marshal(agentAudioEnvelope{
					Type:        "agent_audio",
					AudioBase64: ev.AudioBase64,
					Format:      ev.Format,
				})
				if err != nil {
					continue
				}
				if err := p.sink.PublishData(ctx, payload); err != nil {
					log.Printf("session %s: publish audio: %v", p.cfg.SessionID, err)
				}
			case TTSEventError:
				log.Printf("session %s: tts error %s: %s", p.cfg.SessionID, ev.Code, ev.Detail)
			}
		}
	}
}

// Close tears the provider streams down. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	cancel := p.cancel
	session := p.session
	stream := p.stream
	p.cancel = nil
	p.session = nil
	p.stream = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var firstErr error
	if session != nil {
		if err := session.Close(); err != nil {
			firstErr = err
		}
	}
	if stream != nil {
		if err := stream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

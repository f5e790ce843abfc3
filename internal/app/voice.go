package app

import (
	"fmt"
	"log"
	"strings"

	"github.com/antoniostano/agentdispatch/internal/config"
	"github.com/antoniostano/agentdispatch/internal/dispatch"
	"github.com/antoniostano/agentdispatch/internal/pipeline"
	"github.com/antoniostano/agentdispatch/internal/room"
)

type voiceStack struct {
	connector        room.Connector
	providers        dispatch.Providers
	resolvedProvider string
}

func resolveVoiceStack(cfg config.Config) (voiceStack, error) {
	voiceMode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if voiceMode == "" {
		voiceMode = "auto"
	}

	buildLive := func() voiceStack {
		stt := pipeline.NewDeepgramProvider(pipeline.DeepgramConfig{
			APIKey:    cfg.DeepgramAPIKey,
			WSBaseURL: cfg.DeepgramWSURL,
			Model:     cfg.DeepgramModel,
			Language:  cfg.DeepgramLanguage,
		})
		tts := pipeline.NewElevenLabsProvider(pipeline.ElevenLabsConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			WSBaseURL: cfg.ElevenLabsWSBaseURL,
		})
		brain := pipeline.NewOpenAIBrain(pipeline.OpenAIBrainConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		log.Printf("voice provider: live (deepgram + openai + elevenlabs)")
		return voiceStack{
			connector: room.NewLiveKitConnector(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret),
			providers: dispatch.Providers{
				STT:     stt,
				TTS:     tts,
				Brain:   brain,
				VoiceID: cfg.ElevenLabsTTSVoice,
				ModelID: cfg.ElevenLabsTTSModel,
			},
			resolvedProvider: "live",
		}
	}

	buildMock := func() voiceStack {
		p := pipeline.NewMockProvider()
		return voiceStack{
			connector:        room.NewMockConnector(),
			providers:        dispatch.Providers{STT: p, TTS: p, Brain: p},
			resolvedProvider: "mock",
		}
	}

	switch voiceMode {
	case "live":
		if err := cfg.ValidateLive(); err != nil {
			return voiceStack{}, fmt.Errorf("VOICE_PROVIDER=live: %w", err)
		}
		return buildLive(), nil
	case "mock":
		log.Printf("voice provider: mock")
		return buildMock(), nil
	case "auto":
		if cfg.ValidateLive() == nil {
			return buildLive(), nil
		}
		log.Printf("voice provider: mock (live provider credentials incomplete)")
		return buildMock(), nil
	default:
		return voiceStack{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|live|mock)", cfg.VoiceProvider)
	}
}

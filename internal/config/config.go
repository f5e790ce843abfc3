package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DispatchMode selects how accepted calls are turned into sessions.
const (
	DispatchDirect = "direct"
	DispatchQueue  = "queue"
)

// Config contains all runtime settings for the agent dispatch service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DispatchMode string

	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	VoiceProvider string

	DeepgramAPIKey   string
	DeepgramWSURL    string
	DeepgramModel    string
	DeepgramLanguage string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsTTSVoice  string
	ElevenLabsTTSModel  string

	DatabaseURL string

	IdleTimeout  time.Duration
	PollInterval time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "agentdispatch"),
		DispatchMode:        strings.ToLower(envOrDefault("DISPATCH_MODE", DispatchDirect)),
		LiveKitURL:          stringsTrimSpace("LIVEKIT_URL"),
		LiveKitAPIKey:       stringsTrimSpace("LIVEKIT_API_KEY"),
		LiveKitAPISecret:    stringsTrimSpace("LIVEKIT_API_SECRET"),
		VoiceProvider:       envOrDefault("VOICE_PROVIDER", "auto"),
		DeepgramAPIKey:      stringsTrimSpace("DEEPGRAM_API_KEY"),
		DeepgramWSURL:       envOrDefault("DEEPGRAM_WS_URL", "wss://api.deepgram.com"),
		DeepgramModel:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
		DeepgramLanguage:    envOrDefault("DEEPGRAM_LANGUAGE", "en"),
		OpenAIAPIKey:        stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:       envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:         envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSVoice:  envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel:  envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:     15 * time.Second,
		// Sessions tear themselves down after this long with no participants.
		IdleTimeout:  60 * time.Second,
		PollInterval: 2 * time.Second,
	}

	// Hosted platforms hand out the port as PORT; explicit APP_BIND_ADDR wins.
	if port := stringsTrimSpace("PORT"); port != "" && os.Getenv("APP_BIND_ADDR") == "" {
		cfg.BindAddr = ":" + port
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.IdleTimeout, err = durationFromEnv("AGENT_IDLE_TIMEOUT", cfg.IdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval, err = durationFromEnv("JOB_POLL_INTERVAL", cfg.PollInterval)
	if err != nil {
		return Config{}, err
	}

	switch cfg.DispatchMode {
	case DispatchDirect, DispatchQueue:
	default:
		return Config{}, fmt.Errorf("DISPATCH_MODE must be %q or %q, got %q", DispatchDirect, DispatchQueue, cfg.DispatchMode)
	}
	if cfg.IdleTimeout < time.Second {
		return Config{}, fmt.Errorf("AGENT_IDLE_TIMEOUT must be at least 1s")
	}
	if cfg.PollInterval < 100*time.Millisecond {
		return Config{}, fmt.Errorf("JOB_POLL_INTERVAL must be at least 100ms")
	}

	return cfg, nil
}

// ValidateLive checks the settings that only matter when real providers
// are in play. Mock deployments skip this on purpose.
func (c Config) ValidateLive() error {
	if strings.TrimSpace(c.LiveKitURL) == "" {
		return fmt.Errorf("LIVEKIT_URL is required")
	}
	if strings.TrimSpace(c.DeepgramAPIKey) == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(c.ElevenLabsAPIKey) == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

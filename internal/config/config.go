package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ActivationMode selects how utterances qualify for backend processing.
type ActivationMode string

const (
	ModeWakeWord     ActivationMode = "wake_word"
	ModeAlwaysActive ActivationMode = "always_active"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Discord
	DiscordToken   string
	GuildID        string
	VoiceChannelID string

	// STT provider: "deepgram" or "whisper"
	STTProvider      string
	DeepgramAPIKey   string
	DeepgramModel    string
	DeepgramLanguage string
	WhisperURL       string
	WhisperAPIKey    string
	STTConnectTimeout time.Duration

	// TTS provider: "openai" or "edge"
	TTSProvider  string
	OpenAIAPIKey string
	TTSModel     string
	TTSVoice     string
	TTSSpeed     float64
	EdgeVoice    string

	// Activation
	ActivationMode   ActivationMode
	WakeWords        []string
	AgentName        string
	ActivationWindow time.Duration

	// Backend dispatch
	BackendURL      string
	BackendToken    string
	BackendModel    string
	BackendFallback string
	BackendTimeout  time.Duration

	// Behavior
	EnableBargeIn    bool
	SpeakerIdleEvict time.Duration

	// Control surface (MCP over websocket); empty disables it.
	ControlAddr string
}

// Load builds a Config from the environment, applying defaults. It does not
// validate provider credentials; see Validate.
func Load() Config {
	cfg := Config{
		DiscordToken:      os.Getenv("DISCORD_BOT_TOKEN"),
		GuildID:           os.Getenv("GUILD_ID"),
		VoiceChannelID:    os.Getenv("VOICE_CHANNEL_ID"),
		STTProvider:       envDefault("STT_PROVIDER", "deepgram"),
		DeepgramAPIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     envDefault("DEEPGRAM_MODEL", "nova-3"),
		DeepgramLanguage:  envDefault("DEEPGRAM_LANGUAGE", "en-US"),
		WhisperURL:        envDefault("WHISPER_URL", "https://api.openai.com/v1/audio/transcriptions"),
		WhisperAPIKey:     os.Getenv("OPENAI_API_KEY"),
		STTConnectTimeout: envDurationMs("STT_CONNECT_TIMEOUT_MS", 10*time.Second),
		TTSProvider:       envDefault("TTS_PROVIDER", "openai"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		TTSModel:          envDefault("TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice:          envDefault("TTS_VOICE", "nova"),
		TTSSpeed:          envFloat("TTS_SPEED", 1.0),
		EdgeVoice:         envDefault("EDGE_TTS_VOICE", "en-US-AriaNeural"),
		ActivationMode:    ActivationMode(envDefault("ACTIVATION_MODE", string(ModeWakeWord))),
		WakeWords:         envList("WAKE_WORDS", []string{"hey claw", "ok claw"}),
		AgentName:         strings.ToLower(strings.TrimSpace(os.Getenv("AGENT_NAME"))),
		ActivationWindow:  envDurationMs("ACTIVATION_WINDOW_MS", 30*time.Second),
		BackendURL:        os.Getenv("BACKEND_URL"),
		BackendToken:      os.Getenv("BACKEND_AUTH_TOKEN"),
		BackendModel:      os.Getenv("BACKEND_MODEL"),
		BackendFallback:   os.Getenv("BACKEND_FALLBACK_MODEL"),
		BackendTimeout:    envDurationMs("BACKEND_TIMEOUT_MS", 15*time.Second),
		EnableBargeIn:     envBool("ENABLE_BARGE_IN", true),
		SpeakerIdleEvict:  envDurationMs("SPEAKER_IDLE_MS", 60*time.Second),
		ControlAddr:       os.Getenv("CONTROL_ADDR"),
	}
	return cfg
}

// Validate checks cross-field requirements that must fail at startup rather
// than mid-session.
func (c Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN required")
	}
	switch c.ActivationMode {
	case ModeWakeWord, ModeAlwaysActive:
	default:
		return fmt.Errorf("invalid ACTIVATION_MODE %q", c.ActivationMode)
	}
	switch c.STTProvider {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY required for STT_PROVIDER=deepgram")
		}
	case "whisper":
		if c.WhisperAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY required for STT_PROVIDER=whisper")
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}
	switch c.TTSProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY required for TTS_PROVIDER=openai")
		}
	case "edge":
		// binary presence is checked by the edge provider constructor
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}
	return nil
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToLower(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func envDurationMs(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

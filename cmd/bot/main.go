package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/discord-voice-pilot/internal/audio"
	"github.com/discord-voice-pilot/internal/backend"
	"github.com/discord-voice-pilot/internal/config"
	"github.com/discord-voice-pilot/internal/control"
	"github.com/discord-voice-pilot/internal/discord"
	"github.com/discord-voice-pilot/internal/logging"
	"github.com/discord-voice-pilot/internal/pipeline"
	"github.com/discord-voice-pilot/internal/stt"
	"github.com/discord-voice-pilot/internal/tts"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logging.Init()
	sugar := logging.Sugar()
	if sugar == nil {
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Construct providers up front so a bad credential or missing binary
	// fails at startup, not on the first utterance.
	sttProvider, err := newSTTProvider(cfg)
	if err != nil {
		sugar.Fatalf("stt provider: %v", err)
	}
	ttsProvider, err := newTTSProvider(cfg)
	if err != nil {
		sugar.Fatalf("tts provider: %v", err)
	}
	dispatcher := backend.NewClient(cfg.BackendURL, cfg.BackendToken,
		cfg.BackendModel, cfg.BackendFallback, cfg.BackendTimeout)

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		sugar.Fatalf("discordgo.New: %v", err)
	}
	// Guilds + GuildVoiceStates cover voice state tracking and channel
	// membership; no privileged intents needed.
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if err := dg.Open(); err != nil {
		sugar.Fatalf("discord session open: %v", err)
	}
	sugar.Infow("discord session opened", "intents", dg.Identify.Intents)

	gateway := discord.NewGateway(dg, func(ctx context.Context, sink audio.Sink) (*pipeline.Pipeline, error) {
		return pipeline.New(ctx, pipeline.Options{
			SessionKey: cfg.GuildID,
			STT:        sttProvider,
			TTS:        ttsProvider,
			Backend:    dispatcher,
			Sink:       sink,
			Activation: pipeline.ActivationConfig{
				Mode:      cfg.ActivationMode,
				WakeWords: cfg.WakeWords,
				AgentName: cfg.AgentName,
				Window:    cfg.ActivationWindow,
			},
			EnableBargeIn: cfg.EnableBargeIn,
			SpeakerIdle:   cfg.SpeakerIdleEvict,
		}), nil
	})

	if err := discord.RegisterCommands(ctx, dg, gateway, "", cfg.GuildID); err != nil {
		sugar.Warnf("command registration failed: %v", err)
	}

	// Auto-join when a channel is configured, so the bot is live without a
	// slash command after restarts.
	if cfg.GuildID != "" && cfg.VoiceChannelID != "" {
		if err := gateway.Join(ctx, cfg.GuildID, cfg.VoiceChannelID); err != nil {
			sugar.Warnf("auto-join failed: %v", err)
		}
	}

	var ctl *control.Server
	if cfg.ControlAddr != "" {
		ctl = control.NewServer(cfg.ControlAddr, gateway)
		go func() {
			if err := ctl.ListenAndServe(); err != nil {
				sugar.Warnf("control server: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Infow("shutdown signal received")

	cancel()
	gateway.Leave()
	if ctl != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = ctl.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	if err := dg.Close(); err != nil {
		sugar.Warnf("discord session close: %v", err)
	}
	if l := zap.L(); l != nil {
		_ = l.Sync()
	}
	sugar.Info("shutdown complete")
}

func newSTTProvider(cfg config.Config) (stt.Provider, error) {
	switch cfg.STTProvider {
	case "whisper":
		return stt.NewWhisper(cfg.WhisperAPIKey, stt.WhisperOptions{
			URL:      cfg.WhisperURL,
			Language: cfg.DeepgramLanguage,
		})
	default:
		return stt.NewDeepgram(cfg.DeepgramAPIKey, stt.DeepgramOptions{
			Model:          cfg.DeepgramModel,
			Language:       cfg.DeepgramLanguage,
			ConnectTimeout: cfg.STTConnectTimeout,
		})
	}
}

func newTTSProvider(cfg config.Config) (tts.Provider, error) {
	switch cfg.TTSProvider {
	case "edge":
		return tts.NewEdge(cfg.EdgeVoice)
	default:
		return tts.NewOpenAI(cfg.OpenAIAPIKey, tts.OpenAIOptions{
			Model: cfg.TTSModel,
			Voice: cfg.TTSVoice,
			Speed: cfg.TTSSpeed,
		})
	}
}

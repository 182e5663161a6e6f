package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-pilot/internal/config"
	"github.com/discord-voice-pilot/internal/logging"
)

var commandDefs = []*discordgo.ApplicationCommand{
	{
		Name:        "join",
		Description: "Join a voice channel and start listening",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "Voice channel to join (defaults to yours)",
				ChannelTypes: []discordgo.ChannelType{
					discordgo.ChannelTypeGuildVoice,
				},
				Required: false,
			},
		},
	},
	{
		Name:        "leave",
		Description: "Leave the current voice channel",
	},
	{
		Name:        "mode",
		Description: "Set the activation mode",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "Activation mode",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "wake word", Value: string(config.ModeWakeWord)},
					{Name: "always active", Value: string(config.ModeAlwaysActive)},
				},
			},
		},
	},
	{
		Name:        "status",
		Description: "Show the voice session status",
	},
}

// RegisterCommands creates the slash commands and installs the interaction
// handler routing them to the gateway. appID "" uses the session's own
// application; guildID "" registers globally.
func RegisterCommands(ctx context.Context, dg *discordgo.Session, g *Gateway, appID, guildID string) error {
	if appID == "" && dg.State != nil && dg.State.User != nil {
		appID = dg.State.User.ID
	}
	for _, def := range commandDefs {
		if _, err := dg.ApplicationCommandCreate(appID, guildID, def); err != nil {
			return fmt.Errorf("register /%s: %w", def.Name, err)
		}
	}
	dg.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		handleCommand(ctx, s, ic, g)
	})
	logging.Infow("commands registered", "count", len(commandDefs), "guild_id", guildID)
	return nil
}

func handleCommand(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate, g *Gateway) {
	data := ic.ApplicationCommandData()
	var reply string
	switch data.Name {
	case "join":
		reply = cmdJoin(ctx, s, ic, g, data)
	case "leave":
		g.Leave()
		reply = "Left the voice channel."
	case "mode":
		mode := config.ActivationMode(data.Options[0].StringValue())
		if g.SetMode(mode) {
			reply = fmt.Sprintf("Activation mode set to %s.", mode)
		} else {
			reply = "Not in a voice channel."
		}
	case "status":
		reply = formatStatus(g.Status())
	default:
		return
	}

	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logging.Warnw("command respond failed", "command", data.Name, "err", err)
	}
}

func cmdJoin(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate, g *Gateway, data discordgo.ApplicationCommandInteractionData) string {
	channelID := ""
	for _, opt := range data.Options {
		if opt.Name == "channel" {
			channelID = opt.ChannelValue(nil).ID
		}
	}
	if channelID == "" {
		channelID = invokerVoiceChannel(s, ic)
	}
	if channelID == "" {
		return "Join a voice channel first, or pass one explicitly."
	}
	if err := g.Join(ctx, ic.GuildID, channelID); err != nil {
		logging.Errorw("join command failed",
			"guild_id", ic.GuildID, "channel_id", channelID, "err", err)
		return "Could not join that channel."
	}
	return "Joined. Listening."
}

// invokerVoiceChannel finds the voice channel the invoking user is
// currently in, via gateway state.
func invokerVoiceChannel(s *discordgo.Session, ic *discordgo.InteractionCreate) string {
	if ic.Member == nil || ic.Member.User == nil || s.State == nil {
		return ""
	}
	gld, err := s.State.Guild(ic.GuildID)
	if err != nil || gld == nil {
		return ""
	}
	for _, vs := range gld.VoiceStates {
		if vs.UserID == ic.Member.User.ID {
			return vs.ChannelID
		}
	}
	return ""
}

func formatStatus(st SessionStatus) string {
	if !st.Connected {
		return "Not connected to a voice channel."
	}
	name := st.ChannelName
	if name == "" {
		name = st.ChannelID
	}
	return fmt.Sprintf(
		"Connected to **%s**\nmode: %s\nspeakers tracked: %d\nplaying: %t\nstt connected: %t\nprocessing: %t",
		name, st.Pipeline.Mode, st.Pipeline.ActiveSpeakers,
		st.Pipeline.Playing, st.Pipeline.STTConnected, st.Pipeline.Processing,
	)
}

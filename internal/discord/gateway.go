package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-pilot/internal/audio"
	"github.com/discord-voice-pilot/internal/config"
	"github.com/discord-voice-pilot/internal/logging"
	"github.com/discord-voice-pilot/internal/pipeline"
)

// PipelineFactory builds a pipeline for a newly joined voice channel. The
// sink wraps that channel's voice connection.
type PipelineFactory func(ctx context.Context, sink audio.Sink) (*pipeline.Pipeline, error)

// voiceLink is the control surface of a voice connection the gateway
// drives: the speaking flag and teardown.
type voiceLink interface {
	Speaking(bool) error
	Disconnect() error
}

// dialFunc opens the voice transport for a channel and returns the control
// link, the inbound packet stream, and the playback sink. Speaking updates
// observed on the transport are delivered to onSpeaking.
type dialFunc func(guildID, channelID string, onSpeaking func(*discordgo.VoiceSpeakingUpdate)) (voiceLink, <-chan *discordgo.Packet, audio.Sink, error)

// voiceSession holds everything owned by one joined channel. Each session
// has its own done channel and wait group, so tearing one down can never
// block on or mutate a successor.
type voiceSession struct {
	link      voiceLink
	recv      <-chan *discordgo.Packet
	guildID   string
	channelID string
	done      chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex
	pipe      *pipeline.Pipeline
	ssrcUsers map[uint32]string
}

func (s *voiceSession) pipeline() *pipeline.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe
}

func (s *voiceSession) userForSSRC(ssrc uint32) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssrcUsers[ssrc]
}

// stop tears the session down: the receive loop exits, the pipeline
// drains, and the voice connection closes. Safe to call exactly once.
func (s *voiceSession) stop() {
	close(s.done)
	if pipe := s.pipeline(); pipe != nil {
		pipe.Stop()
	}
	_ = s.link.Speaking(false)
	if err := s.link.Disconnect(); err != nil {
		logging.Warnw("gateway: voice disconnect", "err", err)
	}
	s.wg.Wait()
	logging.Infow("gateway: left voice channel",
		"guild_id", s.guildID, "channel_id", s.channelID)
}

// Gateway manages at most one live voice session for the bot: joining and
// leaving channels, mapping SSRCs to users via speaking updates, and
// pumping received opus frames into the pipeline.
type Gateway struct {
	factory  PipelineFactory
	resolver *Resolver
	dial     dialFunc

	// opMu serializes Join and Leave end to end so a teardown can never
	// interleave with a concurrent join. mu only guards the sess pointer
	// and stays cheap enough for event handlers.
	opMu sync.Mutex
	mu   sync.Mutex
	sess *voiceSession
}

func NewGateway(dg *discordgo.Session, factory PipelineFactory) *Gateway {
	g := &Gateway{
		factory:  factory,
		resolver: NewResolver(dg),
	}
	g.dial = func(guildID, channelID string, onSpeaking func(*discordgo.VoiceSpeakingUpdate)) (voiceLink, <-chan *discordgo.Packet, audio.Sink, error) {
		vc, err := dg.ChannelVoiceJoin(guildID, channelID, false, false)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("voice join: %w", err)
		}
		sink, err := NewVoiceSink(vc)
		if err != nil {
			_ = vc.Disconnect()
			return nil, nil, nil, err
		}
		vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
			onSpeaking(su)
		})
		return vc, vc.OpusRecv, sink, nil
	}
	return g
}

func (g *Gateway) current() *voiceSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess
}

// Join connects the bot to a voice channel and starts a pipeline for it.
// Joining while already connected moves the bot: the old session is torn
// down first.
func (g *Gateway) Join(ctx context.Context, guildID, channelID string) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	if cur := g.current(); cur != nil {
		if cur.guildID == guildID && cur.channelID == channelID {
			return nil
		}
		g.detach(cur)
	}

	sess := &voiceSession{
		guildID:   guildID,
		channelID: channelID,
		done:      make(chan struct{}),
		ssrcUsers: make(map[uint32]string),
	}
	link, recv, sink, err := g.dial(guildID, channelID, func(su *discordgo.VoiceSpeakingUpdate) {
		g.handleSpeaking(sess, su)
	})
	if err != nil {
		return err
	}
	sess.link = link
	sess.recv = recv

	pipe, err := g.factory(ctx, sink)
	if err != nil {
		_ = link.Disconnect()
		return err
	}
	if err := pipe.Start(); err != nil {
		pipe.Stop()
		_ = link.Disconnect()
		return fmt.Errorf("pipeline start: %w", err)
	}
	sess.mu.Lock()
	sess.pipe = pipe
	sess.mu.Unlock()

	if err := link.Speaking(true); err != nil {
		logging.Warnw("gateway: speaking flag", "err", err)
	}
	if sess.recv != nil {
		sess.wg.Add(1)
		go g.recvLoop(sess)
	} else {
		logging.Warnw("gateway: voice connection has no receive channel",
			"guild_id", guildID, "channel_id", channelID)
	}

	g.mu.Lock()
	g.sess = sess
	g.mu.Unlock()

	logging.Infow("gateway: joined voice channel",
		"guild_id", guildID, "channel_id", channelID,
		"channel", g.resolver.ChannelName(channelID))
	return nil
}

// Leave disconnects from the current voice channel, if any.
func (g *Gateway) Leave() {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	if cur := g.current(); cur != nil {
		g.detach(cur)
	}
}

// detach unpublishes the session before stopping it, so handlers and
// status queries never observe a half-torn-down session. Callers hold
// opMu.
func (g *Gateway) detach(sess *voiceSession) {
	g.mu.Lock()
	if g.sess == sess {
		g.sess = nil
	}
	g.mu.Unlock()
	sess.stop()
}

// SetMode changes the live pipeline's activation mode. It is a no-op when
// not in a channel.
func (g *Gateway) SetMode(mode config.ActivationMode) bool {
	sess := g.current()
	if sess == nil {
		return false
	}
	pipe := sess.pipeline()
	if pipe == nil {
		return false
	}
	pipe.SetActivationMode(mode)
	return true
}

// SessionStatus describes the gateway's voice session for the status
// command and the control surface.
type SessionStatus struct {
	Connected   bool            `json:"connected"`
	GuildID     string          `json:"guild_id,omitempty"`
	ChannelID   string          `json:"channel_id,omitempty"`
	ChannelName string          `json:"channel_name,omitempty"`
	Pipeline    pipeline.Status `json:"pipeline"`
}

func (g *Gateway) Status() SessionStatus {
	sess := g.current()
	if sess == nil {
		return SessionStatus{}
	}
	pipe := sess.pipeline()
	if pipe == nil {
		return SessionStatus{}
	}
	return SessionStatus{
		Connected:   true,
		GuildID:     sess.guildID,
		ChannelID:   sess.channelID,
		ChannelName: g.resolver.ChannelName(sess.channelID),
		Pipeline:    pipe.Snapshot(),
	}
}

// handleSpeaking records the SSRC to user binding that received packets
// are attributed with. Updates are bound to the session whose transport
// raised them, so a stale session's handler can never touch its successor.
func (g *Gateway) handleSpeaking(sess *voiceSession, su *discordgo.VoiceSpeakingUpdate) {
	sess.mu.Lock()
	sess.ssrcUsers[uint32(su.SSRC)] = su.UserID
	pipe := sess.pipe
	sess.mu.Unlock()
	if pipe == nil {
		return
	}

	name := g.resolver.DisplayName(sess.guildID, su.UserID)
	logging.Debugw("gateway: speaking update",
		append(logging.UserFields(su.UserID, name), "ssrc", su.SSRC, "speaking", su.Speaking)...)
	if su.Speaking {
		pipe.OnSpeakingStart(su.UserID, name)
	} else {
		pipe.OnSpeakingStop(su.UserID)
	}
}

// recvLoop drains received opus packets into the pipeline until the
// receive channel closes or the session stops. Packets whose SSRC has not
// yet been bound to a user are dropped rather than attributed blindly.
func (g *Gateway) recvLoop(sess *voiceSession) {
	defer sess.wg.Done()
	for {
		select {
		case <-sess.done:
			return
		case pkt, ok := <-sess.recv:
			if !ok {
				return
			}
			userID := sess.userForSSRC(pkt.SSRC)
			if userID == "" {
				logging.Debugw("gateway: dropping packet for unmapped ssrc", "ssrc", pkt.SSRC)
				continue
			}
			sess.pipeline().HandleOpus(userID, pkt.Opus)
		}
	}
}

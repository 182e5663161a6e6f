package discord

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"

	"github.com/discord-voice-pilot/internal/audio"
)

// sendFrameSamples is the per-channel sample count of one 20 ms packet at
// 48 kHz, the frame size the voice transport expects.
const sendFrameSamples = 960

// maxPacketBytes bounds one encoded opus packet.
const maxPacketBytes = 4000

// VoiceSink encodes mono PCM into stereo opus packets and pushes them onto
// a voice connection's send channel. The send channel is bounded, so
// WriteFrame blocks while the transport is saturated; that blocking is the
// player's pacing signal.
type VoiceSink struct {
	vc  *discordgo.VoiceConnection
	enc *opus.Encoder
	buf []byte
	pcm []int16
}

func NewVoiceSink(vc *discordgo.VoiceConnection) (*VoiceSink, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, 2, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return &VoiceSink{
		vc:  vc,
		enc: enc,
		buf: make([]byte, maxPacketBytes),
		pcm: make([]int16, sendFrameSamples*2),
	}, nil
}

// WriteFrame encodes one mono s16le frame and sends it. Frames shorter
// than a packet boundary are padded with silence for the codec only; the
// caller's bytes are all consumed in order.
func (s *VoiceSink) WriteFrame(ctx context.Context, frame []byte) error {
	for off := 0; off < len(frame); off += sendFrameSamples * 2 {
		end := off + sendFrameSamples*2
		if end > len(frame) {
			end = len(frame)
		}
		for i := range s.pcm {
			s.pcm[i] = 0
		}
		for i := 0; i < (end-off)/2; i++ {
			v := int16(binary.LittleEndian.Uint16(frame[off+i*2:]))
			s.pcm[i*2] = v
			s.pcm[i*2+1] = v
		}
		n, err := s.enc.Encode(s.pcm, s.buf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		packet := make([]byte, n)
		copy(packet, s.buf[:n])
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.vc.OpusSend <- packet:
		}
	}
	return nil
}

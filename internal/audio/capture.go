package audio

import (
	"encoding/binary"
	"sync"

	"github.com/discord-voice-pilot/internal/logging"
	"github.com/hraban/opus"
)

// ChunkFunc receives one decoded, downmixed chunk of mono s16le PCM.
type ChunkFunc func(pcmMono []byte)

// maxFrameSamples is the decode buffer capacity per channel. Discord sends
// 20 ms frames; 40 ms of headroom covers concatenated payloads.
const maxFrameSamples = CaptureFrameBytes / 4

// captureChain decodes one speaker's compressed audio into stereo PCM and
// downmixes it before invoking the chunk callback.
type captureChain struct {
	dec     *opus.Decoder
	onChunk ChunkFunc
	pcm     []int16
}

// CaptureSet tracks one capture chain per subscribed speaker. A decode fault
// in one chain tears down only that chain; the others keep delivering.
type CaptureSet struct {
	mu     sync.Mutex
	chains map[string]*captureChain
}

func NewCaptureSet() *CaptureSet {
	return &CaptureSet{chains: make(map[string]*captureChain)}
}

// Subscribe creates a decode chain for speakerID delivering mono chunks to
// onChunk. Subscribing an already-subscribed speaker is a no-op.
func (c *CaptureSet) Subscribe(speakerID string, onChunk ChunkFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chains[speakerID]; ok {
		return nil
	}
	dec, err := opus.NewDecoder(SampleRate, 2)
	if err != nil {
		return err
	}
	c.chains[speakerID] = &captureChain{
		dec:     dec,
		onChunk: onChunk,
		pcm:     make([]int16, maxFrameSamples*2),
	}
	logging.Debugw("capture: subscribed", "user_id", speakerID)
	return nil
}

// Unsubscribe tears down the speaker's chain and stops chunk delivery.
func (c *CaptureSet) Unsubscribe(speakerID string) {
	c.mu.Lock()
	if _, ok := c.chains[speakerID]; ok {
		delete(c.chains, speakerID)
		logging.Debugw("capture: unsubscribed", "user_id", speakerID)
	}
	c.mu.Unlock()
}

// UnsubscribeAll tears down every chain.
func (c *CaptureSet) UnsubscribeAll() {
	c.mu.Lock()
	c.chains = make(map[string]*captureChain)
	c.mu.Unlock()
}

// Subscribed reports whether speakerID currently has a chain.
func (c *CaptureSet) Subscribed(speakerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.chains[speakerID]
	return ok
}

// ActiveCount returns the number of live chains.
func (c *CaptureSet) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chains)
}

// HandleOpus decodes one opus payload for speakerID and delivers the
// downmixed result. Frames for unsubscribed speakers are dropped.
func (c *CaptureSet) HandleOpus(speakerID string, payload []byte) {
	c.mu.Lock()
	chain, ok := c.chains[speakerID]
	c.mu.Unlock()
	if !ok {
		return
	}

	n, err := chain.dec.Decode(payload, chain.pcm)
	if err != nil {
		logging.Errorw("capture: opus decode error, tearing down chain", "user_id", speakerID, "err", err)
		c.Unsubscribe(speakerID)
		return
	}
	if n == 0 {
		return
	}

	stereo := make([]byte, n*2*2)
	for i, s := range chain.pcm[:n*2] {
		binary.LittleEndian.PutUint16(stereo[i*2:], uint16(s))
	}
	mono, err := DownmixStereo(stereo)
	if err != nil {
		logging.Errorw("capture: downmix error, tearing down chain", "user_id", speakerID, "err", err)
		c.Unsubscribe(speakerID)
		return
	}
	chain.onChunk(mono)
}

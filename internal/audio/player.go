package audio

import (
	"context"
	"sync"

	"github.com/discord-voice-pilot/internal/logging"
)

// Sink is the playback side of the voice transport. WriteFrame delivers one
// paced PCM frame and blocks while the transport cannot accept more data;
// the returned error reports transport failure or a canceled context.
type Sink interface {
	WriteFrame(ctx context.Context, frame []byte) error
}

// Player serializes synthesized PCM buffers into a single ordered queue and
// paces them onto the sink in fixed-size frames. At most one buffer is being
// paced at any time; queued buffers play back to back in FIFO order.
type Player struct {
	sink Sink
	base context.Context

	mu      sync.Mutex
	queue   [][]byte
	playing bool
	gen     uint64
	cancel  context.CancelFunc
}

// NewPlayer creates a Player writing to sink. ctx bounds the lifetime of all
// playback; canceling it stops any in-flight pacing.
func NewPlayer(ctx context.Context, sink Sink) *Player {
	return &Player{sink: sink, base: ctx}
}

// Enqueue appends pcm to the playback queue and starts playback if idle.
func (p *Player) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, pcm)
	if !p.playing {
		p.playing = true
		ctx, cancel := context.WithCancel(p.base)
		p.cancel = cancel
		go p.run(ctx, p.gen)
	}
	p.mu.Unlock()
}

// Interrupt clears the pending queue and aborts the buffer currently being
// paced. Playing reports false as soon as Interrupt returns. The queue
// generation advances so that results dispatched before the interrupt can be
// recognized as stale.
func (p *Player) Interrupt() {
	p.mu.Lock()
	p.queue = nil
	p.gen++
	p.playing = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Playing reports whether a buffer is actively being paced onto the sink.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Generation returns the current queue generation. It advances on every
// Interrupt; callers tag asynchronous synthesis requests with it and drop
// results whose generation is stale.
func (p *Player) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Player) run(ctx context.Context, gen uint64) {
	for {
		p.mu.Lock()
		if p.gen != gen {
			// interrupted; a newer run owns the player state
			p.mu.Unlock()
			return
		}
		if len(p.queue) == 0 {
			p.playing = false
			p.cancel = nil
			p.mu.Unlock()
			return
		}
		item := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := p.pace(ctx, item); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transport fault on this item only; skip it and stay live for
			// the next one.
			logging.Warnw("playback: sink write failed, skipping item", "err", err, "bytes", len(item))
		}
	}
}

// pace writes pcm to the sink in PlaybackFrameBytes slices, preserving byte
// order and never skipping or duplicating bytes. The final slice may be
// shorter than a full frame.
func (p *Player) pace(ctx context.Context, pcm []byte) error {
	for off := 0; off < len(pcm); off += PlaybackFrameBytes {
		end := off + PlaybackFrameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := p.sink.WriteFrame(ctx, pcm[off:end]); err != nil {
			return err
		}
	}
	return nil
}

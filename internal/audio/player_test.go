package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// collectSink records every frame it accepts. An optional gate blocks each
// write until released, simulating a saturated transport.
type collectSink struct {
	mu     sync.Mutex
	frames [][]byte
	gate   chan struct{}
}

func (s *collectSink) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.mu.Lock()
	s.frames = append(s.frames, cp)
	s.mu.Unlock()
	return nil
}

func (s *collectSink) totalBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		n += len(f)
	}
	return n
}

func (s *collectSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func pcmOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestPlayerDeliversAllBytesInOrder(t *testing.T) {
	sink := &collectSink{}
	p := NewPlayer(context.Background(), sink)

	// Two full frames plus a short tail.
	total := PlaybackFrameBytes*2 + 100
	p.Enqueue(pcmOf(total))

	waitFor(t, func() bool { return !p.Playing() && sink.frameCount() == 3 })
	require.Equal(t, total, sink.totalBytes())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames[0], PlaybackFrameBytes)
	require.Len(t, sink.frames[1], PlaybackFrameBytes)
	require.Len(t, sink.frames[2], 100)
	// Byte order survives the reslicing.
	require.Equal(t, byte(0), sink.frames[0][0])
	require.Equal(t, pcmOf(total)[PlaybackFrameBytes], sink.frames[1][0])
}

func TestPlayerQueuesFIFO(t *testing.T) {
	sink := &collectSink{}
	p := NewPlayer(context.Background(), sink)

	a := make([]byte, 10)
	b := make([]byte, 20)
	c := make([]byte, 30)
	a[0], b[0], c[0] = 1, 2, 3
	p.Enqueue(a)
	p.Enqueue(b)
	p.Enqueue(c)

	waitFor(t, func() bool { return sink.frameCount() == 3 && !p.Playing() })
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, byte(1), sink.frames[0][0])
	require.Equal(t, byte(2), sink.frames[1][0])
	require.Equal(t, byte(3), sink.frames[2][0])
}

func TestPlayerIgnoresEmptyBuffers(t *testing.T) {
	sink := &collectSink{}
	p := NewPlayer(context.Background(), sink)
	p.Enqueue(nil)
	p.Enqueue([]byte{})
	require.False(t, p.Playing())
	require.Zero(t, sink.frameCount())
}

func TestPlayerInterruptStopsSynchronously(t *testing.T) {
	sink := &collectSink{gate: make(chan struct{})}
	p := NewPlayer(context.Background(), sink)

	p.Enqueue(pcmOf(PlaybackFrameBytes * 4))
	p.Enqueue(pcmOf(PlaybackFrameBytes))
	waitFor(t, p.Playing)

	gen := p.Generation()
	p.Interrupt()
	require.False(t, p.Playing())
	require.Equal(t, gen+1, p.Generation())

	// Nothing further arrives even after the gate opens.
	close(sink.gate)
	time.Sleep(50 * time.Millisecond)
	require.Less(t, sink.totalBytes(), PlaybackFrameBytes*4)
}

func TestPlayerAcceptsNewAudioAfterInterrupt(t *testing.T) {
	sink := &collectSink{}
	p := NewPlayer(context.Background(), sink)

	p.Enqueue(pcmOf(PlaybackFrameBytes))
	waitFor(t, func() bool { return !p.Playing() })
	p.Interrupt()

	p.Enqueue(pcmOf(50))
	waitFor(t, func() bool { return !p.Playing() && sink.totalBytes() >= PlaybackFrameBytes+50 })
	require.Equal(t, PlaybackFrameBytes+50, sink.totalBytes())
}

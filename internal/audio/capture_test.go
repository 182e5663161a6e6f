package audio

import (
	"testing"

	"github.com/hraban/opus"
	"github.com/stretchr/testify/require"
)

// encodeSilence produces one valid 20 ms stereo opus payload.
func encodeSilence(t *testing.T) []byte {
	t.Helper()
	enc, err := opus.NewEncoder(SampleRate, 2, opus.AppVoIP)
	require.NoError(t, err)
	pcm := make([]int16, 960*2)
	buf := make([]byte, 4000)
	n, err := enc.Encode(pcm, buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestCaptureSetDecodeFaultTearsDownOnlyThatChain(t *testing.T) {
	cs := NewCaptureSet()
	chunks := map[string]int{}
	for _, id := range []string{"good", "bad"} {
		id := id
		require.NoError(t, cs.Subscribe(id, func(pcm []byte) {
			require.Len(t, pcm, 960*2)
			chunks[id]++
		}))
	}
	require.Equal(t, 2, cs.ActiveCount())

	valid := encodeSilence(t)
	cs.HandleOpus("good", valid)
	require.Equal(t, 1, chunks["good"])

	// A truncated packet fails to decode and must take down only the
	// faulting speaker's chain.
	cs.HandleOpus("bad", []byte{0xff})
	require.False(t, cs.Subscribed("bad"))
	require.True(t, cs.Subscribed("good"))
	require.Equal(t, 1, cs.ActiveCount())

	// The healthy chain keeps delivering; the torn-down one stays silent.
	cs.HandleOpus("good", valid)
	cs.HandleOpus("bad", valid)
	require.Equal(t, 2, chunks["good"])
	require.Equal(t, 0, chunks["bad"])
}

func TestCaptureSetSubscribeIsIdempotent(t *testing.T) {
	cs := NewCaptureSet()
	var first, second int
	require.NoError(t, cs.Subscribe("u1", func([]byte) { first++ }))
	require.NoError(t, cs.Subscribe("u1", func([]byte) { second++ }))
	require.Equal(t, 1, cs.ActiveCount())

	cs.HandleOpus("u1", encodeSilence(t))
	require.Equal(t, 1, first)
	require.Equal(t, 0, second)
}

func TestCaptureSetDropsUnsubscribedSpeakers(t *testing.T) {
	cs := NewCaptureSet()
	cs.HandleOpus("stranger", encodeSilence(t))
	require.Equal(t, 0, cs.ActiveCount())

	var got int
	require.NoError(t, cs.Subscribe("u1", func([]byte) { got++ }))
	cs.Unsubscribe("u1")
	cs.HandleOpus("u1", encodeSilence(t))
	require.Equal(t, 0, got)
	require.False(t, cs.Subscribed("u1"))
}

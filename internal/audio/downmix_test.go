package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func stereoBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func monoSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestDownmixStereoAverages(t *testing.T) {
	mono, err := DownmixStereo(stereoBytes(1000, 2000))
	require.NoError(t, err)
	require.Equal(t, []int16{1500}, monoSamples(mono))
}

func TestDownmixStereoRoundsHalfUp(t *testing.T) {
	// (100+101)/2 = 100.5 rounds away from the floor
	mono, err := DownmixStereo(stereoBytes(100, 101))
	require.NoError(t, err)
	require.Equal(t, []int16{101}, monoSamples(mono))
}

func TestDownmixStereoNegative(t *testing.T) {
	mono, err := DownmixStereo(stereoBytes(-100, -300))
	require.NoError(t, err)
	require.Equal(t, []int16{-200}, monoSamples(mono))

	mono, err = DownmixStereo(stereoBytes(150, -200))
	require.NoError(t, err)
	require.Equal(t, []int16{-25}, monoSamples(mono))
}

func TestDownmixStereoExtremes(t *testing.T) {
	mono, err := DownmixStereo(stereoBytes(32767, 32767, -32768, -32768))
	require.NoError(t, err)
	require.Equal(t, []int16{32767, -32768}, monoSamples(mono))
}

func TestDownmixStereoHalvesLength(t *testing.T) {
	in := stereoBytes(1, 2, 3, 4, 5, 6)
	mono, err := DownmixStereo(in)
	require.NoError(t, err)
	require.Len(t, mono, len(in)/2)
}

func TestDownmixStereoRejectsPartialFrames(t *testing.T) {
	_, err := DownmixStereo(make([]byte, 6))
	require.Error(t, err)
	_, err = DownmixStereo(make([]byte, 3))
	require.Error(t, err)
}

func TestDownmixStereoEmpty(t *testing.T) {
	mono, err := DownmixStereo(nil)
	require.NoError(t, err)
	require.Empty(t, mono)
}

package audio

import (
	"encoding/binary"
	"fmt"
)

// DownmixStereo converts interleaved stereo s16le PCM to mono s16le by
// averaging the left and right channels, rounding halves toward positive
// infinity. The input length must be a multiple of 4 (one stereo sample
// pair); chunk boundaries need not align with any larger framing, so the
// transform can be applied across arbitrarily chunked streams.
func DownmixStereo(stereo []byte) ([]byte, error) {
	if len(stereo)%4 != 0 {
		return nil, fmt.Errorf("stereo buffer length %d is not a multiple of 4", len(stereo))
	}
	mono := make([]byte, len(stereo)/2)
	for i := 0; i < len(stereo); i += 4 {
		l := int32(int16(binary.LittleEndian.Uint16(stereo[i:])))
		r := int32(int16(binary.LittleEndian.Uint16(stereo[i+2:])))
		// (l+r+1)>>1 is round((l+r)/2) with ties toward +inf.
		m := int16((l + r + 1) >> 1)
		binary.LittleEndian.PutUint16(mono[i/2:], uint16(m))
	}
	return mono, nil
}

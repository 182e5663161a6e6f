package audio

import "encoding/binary"

// UpsampleDouble converts mono s16le PCM to twice its sample rate by linear
// interpolation. Used to bring 24 kHz synthesis output up to the 48 kHz
// playback rate. A trailing odd byte is dropped.
func UpsampleDouble(pcm []byte) []byte {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	out := make([]byte, n*2*2)
	for i := 0; i < n; i++ {
		cur := int32(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		next := cur
		if i+1 < n {
			next = int32(int16(binary.LittleEndian.Uint16(pcm[(i+1)*2:])))
		}
		binary.LittleEndian.PutUint16(out[i*4:], uint16(int16(cur)))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(int16((cur+next)/2)))
	}
	return out
}

// Package audio provides the PCM plumbing for the voice pipeline: the
// stereo downmixer, WAV framing for batch STT, and the paced playback
// engine. All PCM is signed 16-bit little-endian at 48 kHz.
package audio

import "time"

const (
	// SampleRate is the fixed rate of all capture and playback PCM.
	SampleRate = 48000
	// FrameDuration is the pacing unit for playback writes.
	FrameDuration = 20 * time.Millisecond
	// PlaybackFrameBytes is the size of one paced playback frame.
	PlaybackFrameBytes = 3840
	// CaptureFrameBytes is the maximum decoded stereo chunk size delivered
	// by a capture chain before downmixing.
	CaptureFrameBytes = 7680
)

// Package stt defines the speech-to-text provider contract and the
// utterance assembly state machine shared by all providers.
package stt

import "context"

// Result is one partial or final recognition result for a span of audio.
type Result struct {
	Text string
	// IsFinal means the recognizer will not revise this segment. Multiple
	// final segments can occur within a single spoken turn.
	IsFinal bool
	// SpeechFinal means the recognizer detected end of speech; this is the
	// signal that finalizes a turn.
	SpeechFinal bool
	Confidence  float64
}

// ResultFunc receives transcript results in delivery order.
type ResultFunc func(Result)

// Provider is a streaming speech-to-text engine. Connect must fail if no
// handshake completes within the provider's bounded timeout.
type Provider interface {
	Connect(ctx context.Context, onResult ResultFunc, onUtteranceEnd func()) error
	// SendAudio submits one chunk of 48 kHz mono s16le PCM. Chunks sent
	// while disconnected are dropped.
	SendAudio(pcm []byte)
	Connected() bool
	Close() error
}

// Package tts defines the text-to-speech provider contract. Providers are
// single-shot: the pipeline does its own sentence-level streaming on top.
package tts

import "context"

// Provider synthesizes text into 48 kHz mono s16le PCM.
type Provider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

package stt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssemblerIgnoresInterimResults(t *testing.T) {
	a := NewAssembler()
	text, done := a.OnTranscript(Result{Text: "hel", IsFinal: false})
	require.False(t, done)
	require.Empty(t, text)

	// The interim text must not leak into the eventual utterance.
	text, done = a.OnTranscript(Result{Text: "hello", IsFinal: true, SpeechFinal: true})
	require.True(t, done)
	require.Equal(t, "hello", text)
}

func TestAssemblerJoinsFinalSegments(t *testing.T) {
	a := NewAssembler()
	_, done := a.OnTranscript(Result{Text: "hey there", IsFinal: true})
	require.False(t, done)
	_, done = a.OnTranscript(Result{Text: " how are you ", IsFinal: true})
	require.False(t, done)

	text, done := a.OnTranscript(Result{Text: "today", IsFinal: true, SpeechFinal: true})
	require.True(t, done)
	require.Equal(t, "hey there how are you today", text)
}

func TestAssemblerUtteranceEndFlushes(t *testing.T) {
	a := NewAssembler()
	a.OnTranscript(Result{Text: "left hanging", IsFinal: true})

	text, done := a.OnUtteranceEnd()
	require.True(t, done)
	require.Equal(t, "left hanging", text)

	// Nothing accumulated, nothing emitted.
	_, done = a.OnUtteranceEnd()
	require.False(t, done)
}

func TestAssemblerSpeechFinalWithEmptyAccumulator(t *testing.T) {
	a := NewAssembler()
	text, done := a.OnTranscript(Result{Text: "   ", IsFinal: true, SpeechFinal: true})
	require.False(t, done)
	require.Empty(t, text)
}

func TestAssemblerUtterancesAreIndependent(t *testing.T) {
	a := NewAssembler()
	first, done := a.OnTranscript(Result{Text: "first", IsFinal: true, SpeechFinal: true})
	require.True(t, done)
	require.Equal(t, "first", first)

	second, done := a.OnTranscript(Result{Text: "second", IsFinal: true, SpeechFinal: true})
	require.True(t, done)
	require.Equal(t, "second", second)
}

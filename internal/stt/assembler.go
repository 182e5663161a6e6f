package stt

import "strings"

// Assembler accumulates finalized transcript segments for one speaker and
// produces complete utterances at well-defined boundaries. A flush always
// empties the accumulator, so consecutive flushes without new segments
// return nothing the second time.
type Assembler struct {
	segments []string
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// OnTranscript processes one recognition result. It returns the completed
// utterance and true when the result carries SpeechFinal; interim results
// never change state.
func (a *Assembler) OnTranscript(r Result) (string, bool) {
	if !r.IsFinal {
		return "", false
	}
	if t := strings.TrimSpace(r.Text); t != "" {
		a.segments = append(a.segments, t)
	}
	if r.SpeechFinal {
		return a.flush()
	}
	return "", false
}

// OnUtteranceEnd handles the recognizer's explicit silence-timeout signal,
// flushing any accumulated segments.
func (a *Assembler) OnUtteranceEnd() (string, bool) {
	if len(a.segments) == 0 {
		return "", false
	}
	return a.flush()
}

// Reset clears the accumulator.
func (a *Assembler) Reset() {
	a.segments = nil
}

func (a *Assembler) flush() (string, bool) {
	if len(a.segments) == 0 {
		return "", false
	}
	full := strings.Join(a.segments, " ")
	a.segments = nil
	return full, true
}

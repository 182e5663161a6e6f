package pipeline

import "strings"

// SentenceSplitter accumulates streamed text deltas and emits complete
// sentences as soon as a terminator lands, so synthesis can start before
// the full response has arrived.
type SentenceSplitter struct {
	buf strings.Builder
}

// Feed appends a delta and returns any sentences completed by it, in
// order. A sentence ends at '.', '!', '?', or a newline; a terminator at
// the very end of the accumulated text also closes the sentence, since
// deltas tend to end exactly on punctuation.
func (s *SentenceSplitter) Feed(delta string) []string {
	s.buf.WriteString(delta)
	text := s.buf.String()

	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			if seg := strings.TrimSpace(text[start:i]); seg != "" {
				out = append(out, seg)
			}
			start = i + 1
		case '.', '!', '?':
			// Absorb runs like "?!" or "..." before cutting.
			j := i
			for j+1 < len(text) && (text[j+1] == '.' || text[j+1] == '!' || text[j+1] == '?') {
				j++
			}
			atEnd := j == len(text)-1
			followedBySpace := j+1 < len(text) && (text[j+1] == ' ' || text[j+1] == '\t' || text[j+1] == '\n')
			if atEnd || followedBySpace {
				if seg := strings.TrimSpace(text[start : j+1]); seg != "" {
					out = append(out, seg)
				}
				start = j + 1
			}
			i = j
		}
	}

	s.buf.Reset()
	if start < len(text) {
		s.buf.WriteString(text[start:])
	}
	return out
}

// Flush returns any trailing partial sentence and clears the buffer.
func (s *SentenceSplitter) Flush() string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return rest
}

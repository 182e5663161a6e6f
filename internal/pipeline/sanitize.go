package pipeline

import (
	"regexp"
	"strings"
)

// Synthesis input cleanup: backends return chat-flavored text, and feeding
// emoji, markdown markup, or laughter tokens to a TTS engine produces
// audible garbage.
var (
	headingRe  = regexp.MustCompile(`(?m)^\s*#{1,6}\s*`)
	listRe     = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	emphasisRe = regexp.MustCompile("[*_~`]+")
	fillerRe   = regexp.MustCompile(`(?i)\b(?:lol|lmao|rofl|ha(?:ha)+|he(?:he)+|hm+|um+|uh+|erm+)\b`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// SanitizeForSpeech strips emoji and variation selectors, laughter and
// filler tokens, and markdown markup from text, collapsing the whitespace
// left behind. An empty result means the fragment should not be
// synthesized at all.
func SanitizeForSpeech(text string) string {
	s := headingRe.ReplaceAllString(text, "")
	s = listRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "")
	s = fillerRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// isEmoji covers the pictographic blocks, regional indicators, variation
// selectors, and the zero-width joiner used in emoji sequences.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // mahjong..symbols-extended, incl. emoticons
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r == 0x200D: // zero-width joiner
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	}
	return false
}

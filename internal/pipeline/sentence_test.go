package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitterEmitsOnTerminator(t *testing.T) {
	var s SentenceSplitter
	require.Empty(t, s.Feed("Why did the "))
	require.Empty(t, s.Feed("chicken"))
	got := s.Feed(" cross the road? To get")
	require.Equal(t, []string{"Why did the chicken cross the road?"}, got)
	got = s.Feed(" to the other side.")
	require.Equal(t, []string{"To get to the other side."}, got)
	require.Empty(t, s.Flush())
}

func TestSplitterTerminatorAtStreamTail(t *testing.T) {
	var s SentenceSplitter
	// A delta ending exactly on punctuation emits immediately.
	got := s.Feed("Done!")
	require.Equal(t, []string{"Done!"}, got)
}

func TestSplitterMultipleSentencesInOneDelta(t *testing.T) {
	var s SentenceSplitter
	got := s.Feed("One. Two! Three? Four")
	require.Equal(t, []string{"One.", "Two!", "Three?"}, got)
	require.Equal(t, "Four", s.Flush())
}

func TestSplitterKeepsPunctuationRunsTogether(t *testing.T) {
	var s SentenceSplitter
	got := s.Feed("Really?! Yes... maybe")
	require.Equal(t, []string{"Really?!", "Yes..."}, got)
	require.Equal(t, "maybe", s.Flush())
}

func TestSplitterNewlineIsBoundary(t *testing.T) {
	var s SentenceSplitter
	got := s.Feed("first line\nsecond line")
	require.Equal(t, []string{"first line"}, got)
	require.Equal(t, "second line", s.Flush())
}

func TestSplitterFlushClearsBuffer(t *testing.T) {
	var s SentenceSplitter
	s.Feed("trailing fragment")
	require.Equal(t, "trailing fragment", s.Flush())
	require.Empty(t, s.Flush())
}

func TestSplitterSkipsEmptySegments(t *testing.T) {
	var s SentenceSplitter
	got := s.Feed("\n\n  \nHi.")
	require.Equal(t, []string{"Hi."}, got)
}

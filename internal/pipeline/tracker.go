package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/discord-voice-pilot/internal/stt"
)

// SpeakerSession bundles all per-speaker state: identity, recency, and the
// utterance assembler. Sessions are removed atomically on eviction.
type SpeakerSession struct {
	UserID      string
	DisplayName string
	LastSpoke   time.Time
	Assembler   *stt.Assembler
}

// SpeakerTracker records which speakers are active and when they last
// spoke. Cleanup is invoked by the owner; the tracker never self-schedules.
type SpeakerTracker struct {
	mu       sync.Mutex
	speakers map[string]*SpeakerSession
	now      func() time.Time
}

func NewSpeakerTracker() *SpeakerTracker {
	return &SpeakerTracker{
		speakers: make(map[string]*SpeakerSession),
		now:      time.Now,
	}
}

// OnSpeakingStart creates the speaker's session if absent and refreshes its
// recency either way.
func (t *SpeakerTracker) OnSpeakingStart(userID, displayName string) {
	t.mu.Lock()
	s, ok := t.speakers[userID]
	if !ok {
		s = &SpeakerSession{
			UserID:      userID,
			DisplayName: displayName,
			Assembler:   stt.NewAssembler(),
		}
		t.speakers[userID] = s
	}
	s.LastSpoke = t.now()
	t.mu.Unlock()
}

// GetAssembler returns the speaker's assembler, or nil if the speaker is
// not tracked.
func (t *SpeakerTracker) GetAssembler(userID string) *stt.Assembler {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.speakers[userID]; ok {
		return s.Assembler
	}
	return nil
}

// DisplayName returns the speaker's display name, or "Unknown".
func (t *SpeakerTracker) DisplayName(userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.speakers[userID]; ok && s.DisplayName != "" {
		return s.DisplayName
	}
	return "Unknown"
}

// FormatForAgent prefixes text with the speaker's display name so the
// backend can tell voices apart in a group conversation.
func (t *SpeakerTracker) FormatForAgent(userID, text string) string {
	return fmt.Sprintf("[%s]: %s", t.DisplayName(userID), text)
}

// ActiveCount returns the number of tracked speakers.
func (t *SpeakerTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.speakers)
}

// Cleanup removes sessions idle for longer than idle.
func (t *SpeakerTracker) Cleanup(idle time.Duration) {
	now := t.now()
	t.mu.Lock()
	for id, s := range t.speakers {
		if now.Sub(s.LastSpoke) > idle {
			delete(t.speakers, id)
		}
	}
	t.mu.Unlock()
}

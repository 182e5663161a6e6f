package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-pilot/internal/config"
)

// ActivationFilter decides, per utterance, whether it should be forwarded
// to the backend and with what trigger prefix stripped. Arming state is a
// plain expiry timestamp checked lazily on every call, so there is no timer
// goroutine to race with SetMode.
type ActivationFilter struct {
	mu        sync.Mutex
	mode      config.ActivationMode
	wakeWords []string
	agentName string
	window    time.Duration
	armedUntil time.Time

	now func() time.Time
}

// ActivationConfig carries the filter's construction parameters.
type ActivationConfig struct {
	Mode      config.ActivationMode
	WakeWords []string
	AgentName string
	Window    time.Duration
}

func NewActivationFilter(cfg ActivationConfig) *ActivationFilter {
	words := make([]string, 0, len(cfg.WakeWords))
	for _, w := range cfg.WakeWords {
		if s := strings.ToLower(strings.TrimSpace(w)); s != "" {
			words = append(words, s)
		}
	}
	return &ActivationFilter{
		mode:      cfg.Mode,
		wakeWords: words,
		agentName: strings.ToLower(strings.TrimSpace(cfg.AgentName)),
		window:    cfg.Window,
		now:       time.Now,
	}
}

// Check classifies one utterance. It returns whether the text should be
// processed and the text with any matched trigger removed.
func (f *ActivationFilter) Check(text string) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mode == config.ModeAlwaysActive {
		return true, text
	}

	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	// Wake word as an utterance prefix; first configured match wins.
	for _, w := range f.wakeWords {
		if strings.HasPrefix(lower, w) {
			f.arm()
			cleaned := strings.TrimSpace(trimmed[len(w):])
			if cleaned != "" {
				return true, cleaned
			}
			// Wake word alone arms the window for a follow-up.
			return false, ""
		}
	}

	// Agent name anywhere in the utterance.
	if f.agentName != "" {
		if idx := strings.Index(lower, f.agentName); idx >= 0 {
			f.arm()
			cleaned := trimmed[:idx] + trimmed[idx+len(f.agentName):]
			cleaned = strings.TrimSpace(strings.Join(strings.Fields(cleaned), " "))
			if cleaned != "" {
				return true, cleaned
			}
			return false, ""
		}
	}

	// Inside an armed window: process without a trigger.
	if f.now().Before(f.armedUntil) {
		return true, text
	}

	return false, ""
}

// SetMode replaces the mode and disarms any pending activation window.
func (f *ActivationFilter) SetMode(mode config.ActivationMode) {
	f.mu.Lock()
	f.mode = mode
	f.armedUntil = time.Time{}
	f.mu.Unlock()
}

// Mode returns the current activation mode.
func (f *ActivationFilter) Mode() config.ActivationMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// arm (re)starts the activation window from now. Each trigger resets the
// timer; windows do not stack. Caller holds f.mu.
func (f *ActivationFilter) arm() {
	f.armedUntil = f.now().Add(f.window)
}

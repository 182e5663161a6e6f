// Package pipeline wires voice capture, speech recognition, backend
// dispatch, and synthesized playback into a single per-channel session.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/discord-voice-pilot/internal/audio"
	"github.com/discord-voice-pilot/internal/backend"
	"github.com/discord-voice-pilot/internal/config"
	"github.com/discord-voice-pilot/internal/logging"
	"github.com/discord-voice-pilot/internal/stt"
	"github.com/discord-voice-pilot/internal/tts"
)

// Dispatcher streams a backend response as text deltas. It is the seam the
// tests use to stand in for the HTTP client.
type Dispatcher interface {
	Dispatch(ctx context.Context, req backend.Request, onDelta backend.DeltaFunc) error
}

// Options carries the pipeline's collaborators and tuning.
type Options struct {
	SessionKey string

	STT     stt.Provider
	TTS     tts.Provider
	Backend Dispatcher
	Sink    audio.Sink

	Activation    ActivationConfig
	EnableBargeIn bool
	// SpeakerIdle is how long a silent speaker's session survives before
	// eviction. Zero disables the eviction sweep.
	SpeakerIdle time.Duration
}

// Status is a point-in-time snapshot of the pipeline for the control
// surface and the status command.
type Status struct {
	Mode           config.ActivationMode `json:"mode"`
	ActiveSpeakers int                   `json:"active_speakers"`
	Playing        bool                  `json:"playing"`
	STTConnected   bool                  `json:"stt_connected"`
	Processing     bool                  `json:"processing"`
}

// Pipeline owns one voice session end to end: decoded speaker audio in,
// paced synthesized audio out.
type Pipeline struct {
	opts    Options
	capture *audio.CaptureSet
	player  *audio.Player
	tracker *SpeakerTracker
	filter  *ActivationFilter

	// defaultAsm assembles transcripts that arrive when no speaker is
	// attributable, which happens if a session was evicted mid-turn.
	defaultAsm *stt.Assembler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	speakerMu      sync.Mutex
	currentSpeaker string

	processing atomic.Bool
}

func New(ctx context.Context, opts Options) *Pipeline {
	ctx, cancel := context.WithCancel(ctx)
	return &Pipeline{
		opts:       opts,
		capture:    audio.NewCaptureSet(),
		player:     audio.NewPlayer(ctx, opts.Sink),
		tracker:    NewSpeakerTracker(),
		filter:     NewActivationFilter(opts.Activation),
		defaultAsm: stt.NewAssembler(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start connects the recognizer and begins the idle-speaker sweep. It must
// be called before any audio is delivered.
func (p *Pipeline) Start() error {
	if err := p.opts.STT.Connect(p.ctx, p.handleTranscript, p.handleUtteranceEnd); err != nil {
		return err
	}
	if p.opts.SpeakerIdle > 0 {
		p.wg.Add(1)
		go p.evictLoop()
	}
	logging.Infow("pipeline: started", "session", p.opts.SessionKey, "mode", p.filter.Mode())
	return nil
}

// Stop tears the session down. In-flight backend work is abandoned, not
// awaited.
func (p *Pipeline) Stop() {
	p.cancel()
	p.capture.UnsubscribeAll()
	p.player.Interrupt()
	if err := p.opts.STT.Close(); err != nil {
		logging.Warnw("pipeline: stt close", "err", err)
	}
	p.wg.Wait()
	logging.Infow("pipeline: stopped", "session", p.opts.SessionKey)
}

// OnSpeakingStart registers a speaker and attaches a decode chain for them.
func (p *Pipeline) OnSpeakingStart(userID, displayName string) {
	p.tracker.OnSpeakingStart(userID, displayName)
	if err := p.capture.Subscribe(userID, func(pcm []byte) { p.onChunk(userID, pcm) }); err != nil {
		logging.Errorw("pipeline: capture subscribe failed", "user_id", userID, "err", err)
	}
}

// OnSpeakingStop detaches the speaker's decode chain. The session record
// stays until the idle sweep evicts it, so a quick follow-up keeps its
// display name and assembler.
func (p *Pipeline) OnSpeakingStop(userID string) {
	p.capture.Unsubscribe(userID)
}

// HandleOpus routes one compressed frame to the speaker's decode chain.
func (p *Pipeline) HandleOpus(userID string, payload []byte) {
	p.capture.HandleOpus(userID, payload)
}

// SetActivationMode switches the activation policy at runtime.
func (p *Pipeline) SetActivationMode(mode config.ActivationMode) {
	p.filter.SetMode(mode)
	logging.Infow("pipeline: activation mode changed", "session", p.opts.SessionKey, "mode", mode)
}

// Snapshot returns the pipeline's current status.
func (p *Pipeline) Snapshot() Status {
	return Status{
		Mode:           p.filter.Mode(),
		ActiveSpeakers: p.tracker.ActiveCount(),
		Playing:        p.player.Playing(),
		STTConnected:   p.opts.STT.Connected(),
		Processing:     p.processing.Load(),
	}
}

// onChunk receives one decoded mono chunk from a speaker's capture chain.
// While the agent is speaking, inbound audio either interrupts playback or
// is suppressed, depending on the barge-in setting. Audio is also
// suppressed while a turn is being processed so the agent does not hear a
// conversation with itself.
func (p *Pipeline) onChunk(userID string, pcm []byte) {
	if p.player.Playing() {
		if p.opts.EnableBargeIn {
			p.player.Interrupt()
			logging.Debugw("pipeline: barge-in, playback interrupted", "user_id", userID)
		}
		// The triggering chunk is feedback-adjacent; never forward it.
		return
	}
	if p.processing.Load() {
		return
	}

	p.speakerMu.Lock()
	p.currentSpeaker = userID
	p.speakerMu.Unlock()

	p.opts.STT.SendAudio(pcm)
}

func (p *Pipeline) speakerAssembler() (string, *stt.Assembler) {
	p.speakerMu.Lock()
	userID := p.currentSpeaker
	p.speakerMu.Unlock()
	if asm := p.tracker.GetAssembler(userID); asm != nil {
		return userID, asm
	}
	return userID, p.defaultAsm
}

func (p *Pipeline) handleTranscript(r stt.Result) {
	userID, asm := p.speakerAssembler()
	if text, done := asm.OnTranscript(r); done {
		p.processUtterance(userID, text)
	}
}

func (p *Pipeline) handleUtteranceEnd() {
	userID, asm := p.speakerAssembler()
	if text, done := asm.OnUtteranceEnd(); done {
		p.processUtterance(userID, text)
	}
}

// processUtterance runs the activation filter over a completed utterance
// and, if it passes, dispatches it. One turn at a time: an utterance that
// completes while another is still being processed is dropped.
func (p *Pipeline) processUtterance(userID, raw string) {
	cid := uuid.NewString()
	ok, text := p.filter.Check(raw)
	if !ok || text == "" {
		logging.Debugw("pipeline: utterance not activated",
			"correlation_id", cid, "user_id", userID, "text", raw)
		return
	}
	if !p.processing.CompareAndSwap(false, true) {
		logging.Warnw("pipeline: turn in progress, dropping utterance",
			"correlation_id", cid, "user_id", userID)
		return
	}
	logging.Infow("pipeline: utterance activated",
		append(logging.UserFields(userID, p.tracker.DisplayName(userID)),
			"correlation_id", cid, "text", text)...)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.processing.Store(false)
		p.dispatch(userID, text, cid)
	}()
}

// synthJob carries one sentence's synthesis result back to the collector.
// Jobs are queued in detection order; synthesis runs concurrently but
// playback enqueue happens strictly in queue order.
type synthJob struct {
	text string
	ch   chan []byte
}

// dispatch streams the backend response for one utterance, splitting it
// into sentences and synthesizing each as soon as it completes. The
// playback generation captured before dispatch lets results that outlive an
// interrupt be recognized as stale and discarded.
func (p *Pipeline) dispatch(userID, text, cid string) {
	gen := p.player.Generation()
	jobs := make(chan synthJob, 32)

	var collector sync.WaitGroup
	collector.Add(1)
	go func() {
		defer collector.Done()
		for job := range jobs {
			pcm := <-job.ch
			if pcm == nil {
				continue
			}
			if p.player.Generation() != gen {
				logging.Debugw("pipeline: discarding stale synthesis",
					"correlation_id", cid, "text", job.text)
				continue
			}
			p.player.Enqueue(pcm)
		}
	}()

	emit := func(sentence string) {
		clean := SanitizeForSpeech(sentence)
		if clean == "" {
			return
		}
		job := synthJob{text: clean, ch: make(chan []byte, 1)}
		jobs <- job
		go func() {
			pcm, err := p.opts.TTS.Synthesize(p.ctx, clean)
			if err != nil {
				logging.Errorw("pipeline: synthesis failed",
					"correlation_id", cid, "text", clean, "err", err)
				job.ch <- nil
				return
			}
			job.ch <- pcm
		}()
	}

	var splitter SentenceSplitter
	req := backend.Request{
		Text:          p.tracker.FormatForAgent(userID, text),
		Speaker:       p.tracker.DisplayName(userID),
		SessionKey:    p.opts.SessionKey,
		CorrelationID: cid,
	}
	err := p.opts.Backend.Dispatch(p.ctx, req, func(delta string) {
		for _, sentence := range splitter.Feed(delta) {
			emit(sentence)
		}
	})
	if err != nil {
		// Speak whatever arrived before the failure rather than going
		// silent mid-answer.
		logging.Errorw("pipeline: backend dispatch failed",
			"correlation_id", cid, "user_id", userID, "err", err)
	}
	if tail := splitter.Flush(); tail != "" {
		emit(tail)
	}

	close(jobs)
	collector.Wait()
}

func (p *Pipeline) evictLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.SpeakerIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tracker.Cleanup(p.opts.SpeakerIdle)
		}
	}
}

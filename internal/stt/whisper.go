package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discord-voice-pilot/internal/audio"
	"github.com/discord-voice-pilot/internal/logging"
)

const (
	// 48 kHz mono 16-bit PCM.
	whisperBytesPerMs = 96
	// Buffered audio beyond this is transcribed even while speech continues.
	whisperBufferMs = 2000
	// Silence gap that ends a turn.
	whisperSilenceMs = 1500
	// Shorter buffers are noise, not speech.
	whisperMinBufferMs = 500
)

// WhisperOptions configures the batch transcription provider.
type WhisperOptions struct {
	URL      string
	Language string
	Timeout  time.Duration
}

// Whisper is a batch STT provider: it buffers mono PCM, flushes on a
// silence gap or buffer threshold, wraps the audio in a WAV container and
// POSTs it to an OpenAI-compatible transcription endpoint. Each flush emits
// one finalized result; a silence-triggered flush also signals utterance
// end. Higher latency than streaming, no API streaming contract needed.
type Whisper struct {
	apiKey string
	opts   WhisperOptions
	client *http.Client

	mu        sync.Mutex
	buf       []byte
	lastAudio time.Time

	connected      atomic.Bool
	onResult       ResultFunc
	onUtteranceEnd func()
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

func NewWhisper(apiKey string, opts WhisperOptions) (*Whisper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("whisper: api key required")
	}
	if opts.URL == "" {
		opts.URL = "https://api.openai.com/v1/audio/transcriptions"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Whisper{
		apiKey: apiKey,
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Connect registers the callbacks and starts the flush loop. The batch
// provider has no remote handshake, so Connect never blocks.
func (w *Whisper) Connect(ctx context.Context, onResult ResultFunc, onUtteranceEnd func()) error {
	w.onResult = onResult
	w.onUtteranceEnd = onUtteranceEnd
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.connected.Store(true)
	w.wg.Add(1)
	go w.flushLoop(loopCtx)
	logging.Infow("whisper: batch STT ready", "url", w.opts.URL)
	return nil
}

// SendAudio appends one PCM chunk to the turn buffer.
func (w *Whisper) SendAudio(pcm []byte) {
	if !w.connected.Load() {
		return
	}
	w.mu.Lock()
	w.buf = append(w.buf, pcm...)
	w.lastAudio = time.Now()
	w.mu.Unlock()
}

func (w *Whisper) Connected() bool { return w.connected.Load() }

func (w *Whisper) Close() error {
	w.connected.Store(false)
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.mu.Lock()
	w.buf = nil
	w.mu.Unlock()
	return nil
}

func (w *Whisper) flushLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			durMs := len(w.buf) / whisperBytesPerMs
			silentFor := time.Since(w.lastAudio)
			var pcm []byte
			var final bool
			switch {
			case durMs >= whisperMinBufferMs && silentFor >= whisperSilenceMs*time.Millisecond:
				pcm, w.buf = w.buf, nil
				final = true
			case durMs >= whisperBufferMs:
				pcm, w.buf = w.buf, nil
			}
			w.mu.Unlock()
			if pcm != nil {
				w.transcribe(ctx, pcm, final)
			}
		}
	}
}

// transcribe POSTs one WAV-wrapped buffer, retrying transient failures with
// exponential backoff.
func (w *Whisper) transcribe(ctx context.Context, pcm []byte, final bool) {
	wav := audio.BuildWAV(pcm, audio.SampleRate, 1, 16)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		text, err := w.post(ctx, wav)
		if err != nil {
			lastErr = err
			logging.Warnw("whisper: transcription attempt failed", "attempt", attempt+1, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
			continue
		}
		if text != "" && w.onResult != nil {
			w.onResult(Result{Text: text, IsFinal: true, SpeechFinal: final, Confidence: 0.9})
		}
		if final && w.onUtteranceEnd != nil {
			w.onUtteranceEnd()
		}
		return
	}
	logging.Errorw("whisper: transcription failed, dropping buffer", "bytes", len(pcm), "err", lastErr)
}

func (w *Whisper) post(ctx context.Context, wav []byte) (string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", "whisper-1")
	if w.opts.Language != "" {
		lang := strings.SplitN(w.opts.Language, "-", 2)[0]
		_ = mw.WriteField("language", lang)
	}
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.URL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

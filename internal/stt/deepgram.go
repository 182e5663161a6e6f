package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discord-voice-pilot/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	deepgramHost      = "wss://api.deepgram.com/v1/listen"
	keepAliveInterval = 5 * time.Second
)

// DeepgramOptions configures the live transcription stream.
type DeepgramOptions struct {
	Model          string
	Language       string
	ConnectTimeout time.Duration
	// Endpoint overrides the Deepgram URL, used by tests.
	Endpoint string
}

// Deepgram is a streaming STT provider speaking the Deepgram live websocket
// protocol. Audio in is 48 kHz mono s16le; transcripts come back as interim
// and final results plus explicit UtteranceEnd events.
type Deepgram struct {
	apiKey string
	opts   DeepgramOptions

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewDeepgram(apiKey string, opts DeepgramOptions) (*Deepgram, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: api key required")
	}
	if opts.Model == "" {
		opts.Model = "nova-3"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Endpoint == "" {
		opts.Endpoint = deepgramHost
	}
	return &Deepgram{apiKey: apiKey, opts: opts}, nil
}

// deepgramMessage covers the live API message envelope; only the fields the
// pipeline consumes are decoded.
type deepgramMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     *struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Connect dials the live endpoint and starts the read loop. It fails if the
// websocket handshake does not complete within the configured timeout.
func (d *Deepgram) Connect(ctx context.Context, onResult ResultFunc, onUtteranceEnd func()) error {
	u, err := url.Parse(d.opts.Endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("model", d.opts.Model)
	q.Set("language", d.opts.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "48000")
	q.Set("channels", "1")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1200")
	q.Set("vad_events", "true")
	q.Set("endpointing", "300")
	u.RawQuery = q.Encode()

	dialCtx, cancelDial := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancelDial()
	header := http.Header{"Authorization": []string{"Token " + d.apiKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		return fmt.Errorf("deepgram: connect: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.conn = conn
	d.cancel = cancel
	d.connected.Store(true)
	logging.Infow("deepgram: connection opened", "model", d.opts.Model, "language", d.opts.Language)

	d.wg.Add(2)
	go d.readLoop(onResult, onUtteranceEnd)
	go d.keepAliveLoop(loopCtx)
	return nil
}

func (d *Deepgram) readLoop(onResult ResultFunc, onUtteranceEnd func()) {
	defer d.wg.Done()
	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			if d.connected.CompareAndSwap(true, false) {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Errorw("deepgram: unexpected close", "err", err)
				} else {
					logging.Warnw("deepgram: connection closed")
				}
			}
			return
		}
		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debugw("deepgram: undecodable message", "err", err)
			continue
		}
		switch msg.Type {
		case "Results":
			if msg.Channel == nil || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			onResult(Result{
				Text:        alt.Transcript,
				IsFinal:     msg.IsFinal,
				SpeechFinal: msg.SpeechFinal,
				Confidence:  alt.Confidence,
			})
		case "UtteranceEnd":
			onUtteranceEnd()
		}
	}
}

func (d *Deepgram) keepAliveLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.connected.Load() {
				return
			}
			d.writeJSON(map[string]string{"type": "KeepAlive"})
		}
	}
}

// SendAudio submits one PCM chunk to the live stream. Chunks sent while
// disconnected are dropped.
func (d *Deepgram) SendAudio(pcm []byte) {
	if !d.connected.Load() {
		return
	}
	d.writeMu.Lock()
	err := d.conn.WriteMessage(websocket.BinaryMessage, pcm)
	d.writeMu.Unlock()
	if err != nil {
		if d.connected.CompareAndSwap(true, false) {
			logging.Errorw("deepgram: audio write failed", "err", err)
		}
	}
}

func (d *Deepgram) Connected() bool { return d.connected.Load() }

// Close requests a clean stream shutdown and releases the connection.
func (d *Deepgram) Close() error {
	if d.conn == nil {
		return nil
	}
	if d.connected.CompareAndSwap(true, false) {
		d.writeJSON(map[string]string{"type": "CloseStream"})
	}
	if d.cancel != nil {
		d.cancel()
	}
	err := d.conn.Close()
	d.wg.Wait()
	return err
}

func (d *Deepgram) writeJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	d.writeMu.Lock()
	_ = d.conn.WriteMessage(websocket.TextMessage, b)
	d.writeMu.Unlock()
}

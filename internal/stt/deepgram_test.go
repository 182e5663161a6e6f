package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeDeepgram upgrades one websocket, captures the handshake query, and
// replays canned transcript messages after the first audio chunk arrives.
type fakeDeepgram struct {
	t        *testing.T
	messages []string

	mu    sync.Mutex
	query map[string]string
	auth  string
	audio [][]byte
}

func (f *fakeDeepgram) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.query = map[string]string{}
	for k, v := range r.URL.Query() {
		f.query[k] = v[0]
	}
	f.mu.Unlock()

	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	require.NoError(f.t, err)
	defer conn.Close()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			if strings.Contains(string(data), "CloseStream") {
				return
			}
			continue
		}
		f.mu.Lock()
		first := len(f.audio) == 0
		f.audio = append(f.audio, data)
		f.mu.Unlock()
		if first {
			for _, m := range f.messages {
				require.NoError(f.t, conn.WriteMessage(websocket.TextMessage, []byte(m)))
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDeepgramHandshakeParameters(t *testing.T) {
	fake := &fakeDeepgram{t: t}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	d, err := NewDeepgram("dg-key", DeepgramOptions{Endpoint: wsURL(srv)})
	require.NoError(t, err)
	require.NoError(t, d.Connect(context.Background(), func(Result) {}, func() {}))
	defer d.Close()

	require.True(t, d.Connected())
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, "Token dg-key", fake.auth)
	require.Equal(t, "linear16", fake.query["encoding"])
	require.Equal(t, "48000", fake.query["sample_rate"])
	require.Equal(t, "1", fake.query["channels"])
	require.Equal(t, "nova-3", fake.query["model"])
	require.Equal(t, "true", fake.query["interim_results"])
	require.Equal(t, "1200", fake.query["utterance_end_ms"])
	require.Equal(t, "300", fake.query["endpointing"])
}

func TestDeepgramDeliversResultsAndUtteranceEnd(t *testing.T) {
	fake := &fakeDeepgram{t: t, messages: []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hello there","confidence":0.98}]}}`,
		`{"type":"UtteranceEnd"}`,
	}}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	var mu sync.Mutex
	var results []Result
	ended := make(chan struct{})

	d, err := NewDeepgram("dg-key", DeepgramOptions{Endpoint: wsURL(srv)})
	require.NoError(t, err)
	err = d.Connect(context.Background(), func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}, func() { close(ended) })
	require.NoError(t, err)
	defer d.Close()

	d.SendAudio(make([]byte, 1920))

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("utterance end never delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	require.False(t, results[0].IsFinal)
	require.Equal(t, "hel", results[0].Text)
	require.True(t, results[1].IsFinal)
	require.True(t, results[1].SpeechFinal)
	require.Equal(t, "hello there", results[1].Text)
	require.InDelta(t, 0.98, results[1].Confidence, 1e-9)
}

func TestDeepgramConnectTimeout(t *testing.T) {
	// A plain HTTP endpoint that never upgrades makes the dial fail.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	d, err := NewDeepgram("dg-key", DeepgramOptions{
		Endpoint:       wsURL(srv),
		ConnectTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	err = d.Connect(context.Background(), func(Result) {}, func() {})
	require.Error(t, err)
	require.False(t, d.Connected())
}

func TestDeepgramRequiresAPIKey(t *testing.T) {
	_, err := NewDeepgram("", DeepgramOptions{})
	require.Error(t, err)
}

func TestDeepgramSendAfterCloseIsDropped(t *testing.T) {
	fake := &fakeDeepgram{t: t}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	d, err := NewDeepgram("dg-key", DeepgramOptions{Endpoint: wsURL(srv)})
	require.NoError(t, err)
	require.NoError(t, d.Connect(context.Background(), func(Result) {}, func() {}))
	require.NoError(t, d.Close())
	require.False(t, d.Connected())

	// Must not panic or block.
	d.SendAudio(make([]byte, 960))
}

package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWhisperRequiresAPIKey(t *testing.T) {
	_, err := NewWhisper("", WhisperOptions{})
	require.Error(t, err)
}

func TestWhisperFlushesOnSilence(t *testing.T) {
	var mu sync.Mutex
	var gotAuth string
	var gotModel string
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10 << 20))
		mu.Lock()
		requests++
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.FormValue("model")
		mu.Unlock()

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "audio.wav", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" hello from whisper "}`))
	}))
	defer srv.Close()

	wp, err := NewWhisper("sk-test", WhisperOptions{URL: srv.URL, Language: "en-US"})
	require.NoError(t, err)

	var results []Result
	ended := make(chan struct{})
	require.NoError(t, wp.Connect(context.Background(), func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}, func() { close(ended) }))
	defer wp.Close()

	// 600 ms of audio, then silence long enough to finalize the turn.
	wp.SendAudio(make([]byte, 600*whisperBytesPerMs))
	wp.mu.Lock()
	wp.lastAudio = time.Now().Add(-2 * time.Second)
	wp.mu.Unlock()

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("no utterance end")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, requests)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "whisper-1", gotModel)
	require.Len(t, results, 1)
	require.Equal(t, "hello from whisper", results[0].Text)
	require.True(t, results[0].IsFinal)
	require.True(t, results[0].SpeechFinal)
}

func TestWhisperIgnoresShortBuffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("short buffer should not be transcribed")
	}))
	defer srv.Close()

	wp, err := NewWhisper("sk-test", WhisperOptions{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, wp.Connect(context.Background(), func(Result) {}, func() {}))
	defer wp.Close()

	// 100 ms of audio is under the noise floor.
	wp.SendAudio(make([]byte, 100*whisperBytesPerMs))
	wp.mu.Lock()
	wp.lastAudio = time.Now().Add(-2 * time.Second)
	wp.mu.Unlock()

	time.Sleep(400 * time.Millisecond)
}

func TestWhisperRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempt++
		n := attempt
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"text":"second try"}`))
	}))
	defer srv.Close()

	wp, err := NewWhisper("sk-test", WhisperOptions{URL: srv.URL})
	require.NoError(t, err)
	got := make(chan string, 1)
	require.NoError(t, wp.Connect(context.Background(), func(r Result) { got <- r.Text }, func() {}))
	defer wp.Close()

	wp.transcribe(context.Background(), make([]byte, 600*whisperBytesPerMs), false)

	select {
	case text := <-got:
		require.Equal(t, "second try", text)
	case <-time.After(time.Second):
		t.Fatal("no result after retry")
	}
	mu.Lock()
	require.Equal(t, 2, attempt)
	mu.Unlock()
}

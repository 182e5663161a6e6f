package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI("", OpenAIOptions{})
	require.Error(t, err)
}

func TestOpenAISynthesizeUpsamples(t *testing.T) {
	pcm24k := make([]byte, 480) // 10 ms at 24 kHz

	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/speech", r.URL.Path)
		require.Equal(t, "Bearer sk-tts", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(pcm24k)
	}))
	defer srv.Close()

	o, err := NewOpenAI("sk-tts", OpenAIOptions{BaseURL: srv.URL, Voice: "alloy"})
	require.NoError(t, err)

	out, err := o.Synthesize(context.Background(), "hello world")
	require.NoError(t, err)
	// 24 kHz in, 48 kHz out.
	require.Len(t, out, len(pcm24k)*2)

	require.Equal(t, "hello world", gotBody["input"])
	require.Equal(t, "pcm", gotBody["response_format"])
	require.Equal(t, "alloy", gotBody["voice"])
	require.Equal(t, "gpt-4o-mini-tts", gotBody["model"])
}

func TestOpenAISynthesizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o, err := NewOpenAI("sk-tts", OpenAIOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = o.Synthesize(context.Background(), "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

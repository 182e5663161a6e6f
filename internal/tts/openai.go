package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/discord-voice-pilot/internal/audio"
)

// OpenAIOptions configures the OpenAI speech endpoint.
type OpenAIOptions struct {
	Model string
	Voice string
	Speed float64
	// BaseURL overrides the API host, used by tests.
	BaseURL string
	Timeout time.Duration
}

// OpenAI synthesizes speech via the /v1/audio/speech endpoint. The API
// returns 24 kHz mono PCM; Synthesize upsamples it to the 48 kHz playback
// rate.
type OpenAI struct {
	apiKey string
	opts   OpenAIOptions
	client *http.Client
}

func NewOpenAI(apiKey string, opts OpenAIOptions) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: api key required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini-tts"
	}
	if opts.Voice == "" {
		opts.Voice = "nova"
	}
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &OpenAI{
		apiKey: apiKey,
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}, nil
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload := map[string]interface{}{
		"model":           o.opts.Model,
		"voice":           o.opts.Voice,
		"input":           text,
		"response_format": "pcm",
		"speed":           o.opts.Speed,
	}
	b, _ := json.Marshal(payload)

	url := strings.TrimRight(o.opts.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openai tts: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	pcm24k, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return audio.UpsampleDouble(pcm24k), nil
}

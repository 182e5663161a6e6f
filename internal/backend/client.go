// Package backend dispatches qualifying utterances to the conversational
// backend and streams the reply text back incrementally.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/discord-voice-pilot/internal/logging"
)

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

// Request carries one utterance plus its routing context.
type Request struct {
	Text          string
	Speaker       string
	SessionKey    string
	CorrelationID string
}

// DeltaFunc receives reply text fragments in stream order.
type DeltaFunc func(delta string)

// Client speaks the OpenAI-compatible chat completions protocol with
// stream=true, pushing content deltas to the caller as they arrive. A
// transient failure before any delta has been delivered triggers a single
// retry on the fallback model; once text has reached the caller it may
// already be spoken, so a mid-stream failure is never retried.
type Client struct {
	BaseURL  string
	Token    string
	Model    string
	Fallback string
	Timeout  time.Duration
	HTTP     *http.Client
}

func NewClient(baseURL, token, model, fallback string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		Model:    model,
		Fallback: fallback,
		Timeout:  timeout,
		// Stream reads are bounded by the per-dispatch context, not a
		// client-wide timeout.
		HTTP: &http.Client{},
	}
}

// Dispatch sends req and streams reply deltas to onDelta until the stream
// ends, errors, or the timeout elapses. The timeout is a liveness bound:
// text already delivered stays delivered.
func (c *Client) Dispatch(ctx context.Context, req Request, onDelta DeltaFunc) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	delivered := false
	tracked := func(delta string) {
		delivered = true
		onDelta(delta)
	}
	err := c.stream(ctx, req, c.Model, tracked)
	if err != nil && errors.Is(err, ErrTransient) && !delivered && c.Fallback != "" && c.Fallback != c.Model {
		logging.Warnw("backend: retrying on fallback model", "model", c.Fallback, "correlation_id", req.CorrelationID, "err", err)
		time.Sleep(250 * time.Millisecond)
		err = c.stream(ctx, req, c.Fallback, tracked)
	}
	return err
}

func (c *Client) stream(ctx context.Context, req Request, model string, onDelta DeltaFunc) error {
	payload := map[string]interface{}{
		"stream": true,
		"messages": []map[string]string{
			{"role": "system", "content": fmt.Sprintf("source: discord-voice-pilot; session: %s; speaker: %s; correlation_id: %s", req.SessionKey, req.Speaker, req.CorrelationID)},
			{"role": "user", "content": req.Text},
		},
	}
	if model != "" {
		payload["model"] = model
	}
	b, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logging.Debugw("backend: undecodable stream chunk", "err", err, "correlation_id", req.CorrelationID)
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		// Deltas already pushed remain valid; the caller flushes what it has.
		return fmt.Errorf("%w: stream read: %v", ErrTransient, err)
	}
	return nil
}

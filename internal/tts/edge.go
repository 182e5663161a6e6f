package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/discord-voice-pilot/internal/logging"
)

// Edge synthesizes speech with the free Microsoft Edge TTS engine via the
// edge-tts CLI, piping its MP3 output through ffmpeg to get raw 48 kHz mono
// PCM. Both binaries must be installed; their absence is a construction
// fault, not a mid-session surprise.
type Edge struct {
	voice     string
	edgeBin   string
	ffmpegBin string
}

func NewEdge(voice string) (*Edge, error) {
	if voice == "" {
		voice = "en-US-AriaNeural"
	}
	edgeBin, err := exec.LookPath("edge-tts")
	if err != nil {
		return nil, fmt.Errorf("edge tts: edge-tts not found in PATH (pip install edge-tts): %w", err)
	}
	ffmpegBin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("edge tts: ffmpeg not found in PATH: %w", err)
	}
	return &Edge{voice: voice, edgeBin: edgeBin, ffmpegBin: ffmpegBin}, nil
}

func (e *Edge) Synthesize(ctx context.Context, text string) ([]byte, error) {
	edgeCmd := exec.CommandContext(ctx, e.edgeBin,
		"--voice", e.voice,
		"--text", text,
		"--write-media", "-",
	)
	ffmpegCmd := exec.CommandContext(ctx, e.ffmpegBin,
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	pipe, err := edgeCmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	ffmpegCmd.Stdin = pipe

	var pcm bytes.Buffer
	var ffmpegErr bytes.Buffer
	ffmpegCmd.Stdout = &pcm
	ffmpegCmd.Stderr = &ffmpegErr

	if err := edgeCmd.Start(); err != nil {
		return nil, fmt.Errorf("edge tts: start edge-tts: %w", err)
	}
	if err := ffmpegCmd.Start(); err != nil {
		_ = edgeCmd.Process.Kill()
		_ = edgeCmd.Wait()
		return nil, fmt.Errorf("edge tts: start ffmpeg: %w", err)
	}

	edgeErr := edgeCmd.Wait()
	err = ffmpegCmd.Wait()
	if edgeErr != nil {
		return nil, fmt.Errorf("edge tts: edge-tts failed: %w", edgeErr)
	}
	if err != nil {
		if msg := strings.TrimSpace(ffmpegErr.String()); msg != "" {
			logging.Debugw("edge tts: ffmpeg stderr", "msg", msg)
		}
		return nil, fmt.Errorf("edge tts: ffmpeg failed: %w", err)
	}
	return pcm.Bytes(), nil
}

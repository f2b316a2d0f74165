package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"sync"
)

const defaultSpeechEndpoint = "https://api.openai.com/v1/audio/speech"

// Config controls speech synthesis and local playback.
type Config struct {
	APIKey   string
	Endpoint string
	Model    string
	Voice    string

	// PlayerCommand is the full player invocation; it receives the
	// synthesized audio on stdin, e.g.
	// "ffplay -autoexit -nodisp -loglevel quiet -".
	PlayerCommand string
	PlayerArgs    []string
}

// Synthesizer implements ports.Synthesizer over the OpenAI speech API
// with playback through an external player process. Speak interrupts
// whatever is currently playing; the latest line always wins.
type Synthesizer struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	cancel   context.CancelFunc
	finished chan string
}

func NewSynthesizer(cfg Config) *Synthesizer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSpeechEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.PlayerCommand == "" {
		cfg.PlayerCommand = "ffplay -autoexit -nodisp -loglevel quiet -"
	}
	if len(cfg.PlayerArgs) == 0 {
		parts := strings.Fields(cfg.PlayerCommand)
		cfg.PlayerCommand = parts[0]
		cfg.PlayerArgs = parts[1:]
	}
	return &Synthesizer{
		cfg:      cfg,
		client:   &http.Client{},
		finished: make(chan string, 8),
	}
}

// Finished reports each line once the sink has gone idle after it.
// Lines superseded by a newer Speak are not reported.
func (s *Synthesizer) Finished() <-chan string {
	return s.finished
}

// Speak cancels the current utterance and synthesizes the new one.
func (s *Synthesizer) Speak(ctx context.Context, text string) {
	playCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.speakAndPlay(playCtx, cancel, text)
}

// Cancel stops playback without queueing anything new.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *Synthesizer) speakAndPlay(ctx context.Context, cancel context.CancelFunc, text string) {
	defer cancel()

	audio, err := s.synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[TTS] synthesis failed: %v", err)
		}
		s.reportFinished(ctx, text)
		return
	}

	if err := s.play(ctx, audio); err != nil && ctx.Err() == nil {
		log.Printf("[TTS] playback failed: %v", err)
	}
	s.reportFinished(ctx, text)
}

// reportFinished emits the line unless a newer Speak superseded it.
func (s *Synthesizer) reportFinished(ctx context.Context, text string) {
	if ctx.Err() != nil {
		s.mu.Lock()
		superseded := s.cancel != nil
		s.mu.Unlock()
		if superseded {
			return
		}
	}
	select {
	case s.finished <- text:
	default:
	}
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := map[string]string{
		"model": s.cfg.Model,
		"input": text,
		"voice": s.cfg.Voice,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech API error: %s", strings.TrimSpace(string(errBody)))
	}

	return io.ReadAll(resp.Body)
}

func (s *Synthesizer) play(ctx context.Context, audio []byte) error {
	cmd := exec.CommandContext(ctx, s.cfg.PlayerCommand, s.cfg.PlayerArgs...)
	cmd.Stdin = bytes.NewReader(audio)
	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("player exited: %w", err)
	}
	return nil
}

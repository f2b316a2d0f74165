package script

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Set holds the scripted wording the engine speaks: greeting, closing,
// notices, and the fallback ladder prompts. Call centers tune the
// wording through a TOML file layered over compiled-in defaults; the
// file can be reloaded live (see Watch).
type Set struct {
	path string

	mu    sync.RWMutex
	lines lineFile
}

type lineFile struct {
	Greeting         string `toml:"greeting"`
	Closing          string `toml:"closing"`
	MicDeniedNotice  string `toml:"mic_denied_notice"`
	CallLoggedNotice string `toml:"call_logged_notice"`

	Fallback fallbackLines `toml:"fallback"`
}

type fallbackLines struct {
	AskName     string `toml:"ask_name"`
	AskLocation string `toml:"ask_location"`
	Handoff     string `toml:"handoff"`
}

func defaults() lineFile {
	return lineFile{
		Greeting:         "Emergency services, you are connected. Tell me what is happening.",
		Closing:          "Thank you. Your call has been recorded and help is on the way. Stay safe.",
		MicDeniedNotice:  "I cannot hear you right now. Please type your messages instead.",
		CallLoggedNotice: "Your call has been logged. If this is still an emergency, please call again.",
		Fallback: fallbackLines{
			AskName:     "I am having trouble reaching our assistant. Can you tell me your name?",
			AskLocation: "Thank you. Where are you right now?",
			Handoff:     "Thank you. I am connecting you to a human operator now. Please stay on the line.",
		},
	}
}

// Load builds a Set from defaults overlaid with the TOML file at path.
// A missing file or empty path yields pure defaults; a malformed file
// is an error.
func Load(path string) (*Set, error) {
	s := &Set{path: strings.TrimSpace(path), lines: defaults()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file, keeping defaults for any line the file
// leaves unset.
func (s *Set) Reload() error {
	if s.path == "" {
		return nil
	}

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read script file %q: %w", s.path, err)
	}

	lines := defaults()
	if err := toml.Unmarshal(contents, &lines); err != nil {
		return fmt.Errorf("failed to parse script file %q: %w", s.path, err)
	}

	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
	return nil
}

func (s *Set) Greeting() string {
	return s.get(func(l lineFile) string { return l.Greeting })
}

func (s *Set) Closing() string {
	return s.get(func(l lineFile) string { return l.Closing })
}

func (s *Set) MicDeniedNotice() string {
	return s.get(func(l lineFile) string { return l.MicDeniedNotice })
}

func (s *Set) CallLoggedNotice() string {
	return s.get(func(l lineFile) string { return l.CallLoggedNotice })
}

func (s *Set) AskName() string {
	return s.get(func(l lineFile) string { return l.Fallback.AskName })
}

func (s *Set) AskLocation() string {
	return s.get(func(l lineFile) string { return l.Fallback.AskLocation })
}

func (s *Set) Handoff() string {
	return s.get(func(l lineFile) string { return l.Fallback.Handoff })
}

func (s *Set) get(pick func(lineFile) string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pick(s.lines)
}

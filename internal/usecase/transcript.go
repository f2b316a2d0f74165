package usecase

import (
	"strings"
	"sync"
	"time"

	"lifeline/internal/domain"
)

// transcript is the append-only ordered turn sequence of one call.
// Append order is chronological completion order; turns are never
// reordered or mutated after append.
type transcript struct {
	mu    sync.Mutex
	turns []domain.Turn
}

func newTranscript() *transcript {
	return &transcript{}
}

func (t *transcript) Append(sender domain.Sender, text string) domain.Turn {
	turn := domain.Turn{Sender: sender, Text: strings.TrimSpace(text), Timestamp: time.Now()}

	t.mu.Lock()
	t.turns = append(t.turns, turn)
	t.mu.Unlock()
	return turn
}

// Snapshot returns a copy safe to hand to collaborators.
func (t *transcript) Snapshot() []domain.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// UserTurns returns only the caller's turns, in order.
func (t *transcript) UserTurns() []domain.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Turn
	for _, turn := range t.turns {
		if turn.Sender == domain.SenderUser {
			out = append(out, turn)
		}
	}
	return out
}

func (t *transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}

// summarize builds the one-line record summary from extracted fields,
// falling back to the caller's first utterance when extraction is empty.
func summarize(turns []domain.Turn, extracted domain.ExtractedFields) string {
	var parts []string
	if extracted.EmergencyType != "" {
		parts = append(parts, extracted.EmergencyType)
	}
	if extracted.Location != "" {
		parts = append(parts, "at "+extracted.Location)
	}
	if extracted.Name != "" {
		parts = append(parts, "reported by "+extracted.Name)
	}
	if len(parts) > 0 {
		return "Emergency call: " + strings.Join(parts, " ")
	}

	for _, turn := range turns {
		if turn.Sender == domain.SenderUser && turn.Text != "" {
			return "Emergency call: " + turn.Text
		}
	}
	return "Emergency call with no caller input"
}

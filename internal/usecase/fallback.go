package usecase

import (
	"strings"

	"lifeline/internal/domain"
	"lifeline/internal/ports"
)

// FallbackResponder is the local, deterministic scripted-turn ladder
// used when the turn processor is unreachable. It is keyed only by how
// many caller turns have been seen, so every call terminates within a
// bounded number of turns even with the AI collaborator fully down.
type FallbackResponder struct {
	lines Lines
}

func NewFallbackResponder(lines Lines) *FallbackResponder {
	return &FallbackResponder{lines: lines}
}

// Respond produces the scripted turn result for the ladder position
// implied by userTurns. Turn 1 asks for the caller's name; turn 2 asks
// for the location and records the first word of the first utterance as
// the name; turn 3 and every later turn record the latest utterance as
// the location and force routing to a human agent.
func (f *FallbackResponder) Respond(userTurns []domain.Turn) ports.TurnResult {
	n := len(userTurns)
	switch {
	case n <= 1:
		return ports.TurnResult{Reply: f.lines.AskName()}
	case n == 2:
		return ports.TurnResult{
			Reply:     f.lines.AskLocation(),
			Extracted: domain.ExtractedFields{Name: firstWord(userTurns[0].Text)},
		}
	default:
		return ports.TurnResult{
			Reply:       f.lines.Handoff(),
			Extracted:   domain.ExtractedFields{Location: strings.TrimSpace(userTurns[n-1].Text)},
			ShouldRoute: true,
		}
	}
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,!?")
}

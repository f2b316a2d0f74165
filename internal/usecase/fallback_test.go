package usecase

import (
	"testing"

	"lifeline/internal/domain"
)

func userTurns(texts ...string) []domain.Turn {
	var out []domain.Turn
	for _, text := range texts {
		out = append(out, domain.Turn{Sender: domain.SenderUser, Text: text})
	}
	return out
}

func TestFallbackLadderFirstTurnAsksName(t *testing.T) {
	t.Parallel()

	fb := NewFallbackResponder(testLines{})
	res := fb.Respond(userTurns("there is a fire"))
	if res.Reply != (testLines{}).AskName() {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if res.ShouldRoute {
		t.Fatalf("first fallback turn must not route")
	}
	if !res.Extracted.IsZero() {
		t.Fatalf("first fallback turn extracts nothing, got %+v", res.Extracted)
	}
}

func TestFallbackLadderSecondTurnExtractsName(t *testing.T) {
	t.Parallel()

	fb := NewFallbackResponder(testLines{})
	res := fb.Respond(userTurns("Maria, please hurry!", "there is a fire"))
	if res.Reply != (testLines{}).AskLocation() {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if res.Extracted.Name != "Maria" {
		t.Fatalf("name = %q, want Maria", res.Extracted.Name)
	}
	if res.ShouldRoute {
		t.Fatalf("second fallback turn must not route")
	}
}

func TestFallbackLadderThirdTurnRoutes(t *testing.T) {
	t.Parallel()

	fb := NewFallbackResponder(testLines{})
	res := fb.Respond(userTurns("Maria", "fire", "22 Oak Street"))
	if res.Reply != (testLines{}).Handoff() {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if !res.ShouldRoute {
		t.Fatalf("third fallback turn must route")
	}
	if res.Extracted.Location != "22 Oak Street" {
		t.Fatalf("location = %q", res.Extracted.Location)
	}
}

func TestFallbackLadderRoutesOnEveryLaterTurn(t *testing.T) {
	t.Parallel()

	fb := NewFallbackResponder(testLines{})
	res := fb.Respond(userTurns("a", "b", "c", "still here"))
	if !res.ShouldRoute {
		t.Fatalf("ladder must keep routing past the third turn")
	}
	if res.Extracted.Location != "still here" {
		t.Fatalf("location = %q", res.Extracted.Location)
	}
}

func TestFallbackLadderNoUserTurns(t *testing.T) {
	t.Parallel()

	fb := NewFallbackResponder(testLines{})
	res := fb.Respond(nil)
	if res.Reply != (testLines{}).AskName() || res.ShouldRoute {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSummarizePrefersExtractedFields(t *testing.T) {
	t.Parallel()

	got := summarize(nil, domain.ExtractedFields{
		Name:          "Maria",
		Location:      "22 Oak Street",
		EmergencyType: "house fire",
	})
	want := "Emergency call: house fire at 22 Oak Street reported by Maria"
	if got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
}

func TestSummarizeFallsBackToFirstUtterance(t *testing.T) {
	t.Parallel()

	turns := []domain.Turn{
		{Sender: domain.SenderAI, Text: "hello"},
		{Sender: domain.SenderUser, Text: "my house is flooding"},
	}
	got := summarize(turns, domain.ExtractedFields{})
	if got != "Emergency call: my house is flooding" {
		t.Fatalf("summary = %q", got)
	}
}

func TestSummarizeEmptyCall(t *testing.T) {
	t.Parallel()

	got := summarize([]domain.Turn{{Sender: domain.SenderAI, Text: "hello"}}, domain.ExtractedFields{})
	if got != "Emergency call with no caller input" {
		t.Fatalf("summary = %q", got)
	}
}

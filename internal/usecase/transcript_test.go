package usecase

import (
	"sync"
	"testing"

	"lifeline/internal/domain"
)

func TestTranscriptAppendPreservesOrder(t *testing.T) {
	t.Parallel()

	tr := newTranscript()
	tr.Append(domain.SenderAI, "hello")
	tr.Append(domain.SenderUser, "  help me  ")
	tr.Append(domain.SenderAI, "on it")

	turns := tr.Snapshot()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[1].Text != "help me" {
		t.Fatalf("utterance not trimmed: %q", turns[1].Text)
	}
	if turns[0].Timestamp.After(turns[2].Timestamp) {
		t.Fatalf("timestamps out of order")
	}
}

func TestTranscriptSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	tr := newTranscript()
	tr.Append(domain.SenderUser, "one")
	snap := tr.Snapshot()
	snap[0].Text = "mutated"

	if tr.Snapshot()[0].Text != "one" {
		t.Fatalf("snapshot mutation leaked into the transcript")
	}
}

func TestTranscriptUserTurnsFilters(t *testing.T) {
	t.Parallel()

	tr := newTranscript()
	tr.Append(domain.SenderAI, "hi")
	tr.Append(domain.SenderUser, "first")
	tr.Append(domain.SenderAgent, "agent note")
	tr.Append(domain.SenderUser, "second")

	got := tr.UserTurns()
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "second" {
		t.Fatalf("unexpected user turns: %+v", got)
	}
}

func TestTranscriptConcurrentAppend(t *testing.T) {
	t.Parallel()

	tr := newTranscript()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append(domain.SenderUser, "x")
		}()
	}
	wg.Wait()

	if tr.Len() != 20 {
		t.Fatalf("expected 20 turns, got %d", tr.Len())
	}
}

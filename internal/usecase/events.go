package usecase

import "lifeline/internal/ports"

// The controller is a single event loop per call. Everything that can
// happen to a session arrives here as one of these events.
type eventKind int

const (
	evTimer eventKind = iota
	evUtterance
	evTurnResult
	evPlaybackDone
	evAgentText
	evEnd
)

type timerStage int

const (
	timerConnect timerStage = iota
	timerAnswer
	timerRoute
	timerListenRestart
)

type event struct {
	kind  eventKind
	stage timerStage

	text string
	err  error

	// turn result delivery; seq guards against late responses being
	// applied after the session moved on.
	seq    int
	result ports.TurnResult
}

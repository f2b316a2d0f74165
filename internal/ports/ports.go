package ports

import (
	"context"
	"errors"
	"io"

	"lifeline/internal/domain"
)

// ErrMicDenied is returned when the platform refuses microphone access.
// The call continues in degraded mode (text input, no recording).
var ErrMicDenied = errors.New("microphone access denied")

// ErrNoSpeech is surfaced by a Recognizer when a listening window closed
// without a single utterance. Callers restart listening, they do not
// treat it as a failure.
var ErrNoSpeech = errors.New("no speech detected")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecognitionEvent is one discrete outcome of a listening window:
// either a complete recognized utterance or an error such as ErrNoSpeech.
// Partial recognition results are never surfaced.
type RecognitionEvent struct {
	Text string
	Err  error
}

// Recognizer turns continuous caller audio into discrete utterances.
//
// Start is idempotent while listening. Stop ends listening immediately
// and discards any in-flight partial recognition. Events delivers one
// RecognitionEvent per listening window.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan RecognitionEvent
}

// Synthesizer speaks AI lines to the caller. Speak cancels any
// currently-playing utterance before starting the new one; the latest
// line always wins. Finished delivers the text of an utterance once the
// sink has gone idle after it (played out, failed, or was cancelled
// without a replacement).
type Synthesizer interface {
	Speak(ctx context.Context, text string)
	Cancel()
	Finished() <-chan string
}

// Recorder captures the raw audio of the whole call into an append-only
// chunk sequence, independent of recognition. Seal stops capture and
// concatenates the chunks into one immutable artifact; it is effective
// exactly once, later calls return the same artifact.
type Recorder interface {
	Start(ctx context.Context) error
	Seal() ([]byte, error)
}

// TurnRequest is one conversation turn handed to the turn processor.
type TurnRequest struct {
	SessionID      string
	Utterance      string
	Transcript     []domain.Turn
	HospitalID     string
	CallCenterType domain.CallCenterType
}

// TurnResult is the processor's reply for one turn.
type TurnResult struct {
	SessionID   string
	Reply       string
	Extracted   domain.ExtractedFields
	ShouldRoute bool
}

// TurnProcessor is the external AI collaborator that advances the
// conversation. Implementations must tolerate an empty SessionID on the
// very first call of a session.
type TurnProcessor interface {
	Process(ctx context.Context, req TurnRequest) (TurnResult, error)
}

// AudioUploader stores a sealed audio artifact and returns its
// reference. Best-effort from the engine's perspective.
type AudioUploader interface {
	Upload(ctx context.Context, artifactID string, audio []byte) (string, error)
}

// RecordFinalizer persists a finished call as an emergency record and
// returns the persisted record id. Invoked at most once per session.
type RecordFinalizer interface {
	Finalize(ctx context.Context, rec domain.EmergencyRecord) (string, error)
}

// RecordStore journals finalized records locally and spools records
// whose remote persistence failed so they can be re-driven later.
type RecordStore interface {
	SaveFinalized(rec domain.EmergencyRecord, remoteID string) error
	SpoolPending(rec domain.EmergencyRecord) error
}

// EventSink emits engine state and transcript events to a shell
// (console runner, operator UI, test fake).
type EventSink interface {
	CallStateChanged(status domain.CallStatus, reason domain.CallStateReason)
	TurnAppended(turn domain.Turn)
	CallError(code domain.ErrorCode, detail string)
}

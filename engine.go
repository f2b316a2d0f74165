package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"lifeline/internal/bootstrap"
	"lifeline/internal/domain"
	"lifeline/internal/usecase"
)

// Engine is the headless console shell around the call session engine.
// It owns the wired service graph, forwards engine events to the log,
// and drives one call session at a time from line-based input.
type Engine struct {
	services bootstrap.Services
	sink     *consoleSink

	mu      sync.Mutex
	session *usecase.CallController
}

func NewEngine(configPath string) (*Engine, error) {
	sink := &consoleSink{}
	services, err := bootstrap.Build(configPath, sink)
	if err != nil {
		return nil, err
	}
	e := &Engine{services: services, sink: sink}
	e.redrivePending(context.Background())
	return e, nil
}

// StartCall begins a new call session. Only one session runs at a time.
func (e *Engine) StartCall(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		select {
		case <-e.session.Done():
		default:
			return fmt.Errorf("a call is already in progress")
		}
	}

	session := e.services.NewSession()
	if err := session.Start(ctx); err != nil {
		return err
	}
	e.session = session
	return nil
}

// EndCall hangs up the current session, if any.
func (e *Engine) EndCall() {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session != nil {
		session.End()
	}
}

// Submit feeds typed caller input into the current session.
func (e *Engine) Submit(text string) error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no call in progress")
	}
	return session.SubmitText(text)
}

// SubmitAgent feeds a human agent line into the current session.
func (e *Engine) SubmitAgent(text string) error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no call in progress")
	}
	return session.SubmitAgentText(text)
}

// Snapshot returns the current session view, if a session exists.
func (e *Engine) Snapshot() (domain.CallSnapshot, bool) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return domain.CallSnapshot{}, false
	}
	return session.Snapshot(), true
}

// Run reads commands until the input closes: "/call" dials, "/end"
// hangs up, "/status" prints the session snapshot, anything else is
// caller speech.
func (e *Engine) Run(ctx context.Context, input io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "/call":
			if err := e.StartCall(ctx); err != nil {
				log.Printf("[Engine] start failed: %v", err)
			}
		case "/end":
			e.EndCall()
		case "/status":
			e.printStatus()
		case "/quit":
			e.EndCall()
			return nil
		default:
			if err := e.Submit(line); err != nil {
				log.Printf("[Engine] %v", err)
			}
		}
	}
}

// Close hangs up any live session and releases shared resources.
func (e *Engine) Close() {
	e.EndCall()
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session != nil {
		<-session.Done()
	}
	e.services.Close()
}

func (e *Engine) printStatus() {
	snap, ok := e.Snapshot()
	if !ok {
		log.Printf("[Engine] no call in progress")
		return
	}
	log.Printf("[Engine] call %s status=%s turns=%d extracted=%+v",
		snap.ID, snap.Status, len(snap.Transcript), snap.Extracted)
}

// redrivePending retries records whose remote persistence failed in an
// earlier run.
func (e *Engine) redrivePending(ctx context.Context) {
	rows, err := e.services.Store.Pending()
	if err != nil {
		log.Printf("[Engine] pending scan failed: %v", err)
		return
	}
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			log.Printf("[Engine] skipping corrupt pending record %s: %v", row.ID, err)
			continue
		}
		remoteID, err := e.services.Dispatch.Finalize(ctx, rec)
		if err != nil {
			log.Printf("[Engine] re-drive failed for record %s: %v", row.ID, err)
			continue
		}
		if err := e.services.Store.MarkPersisted(row.ID, remoteID); err != nil {
			log.Printf("[Engine] failed to mark record %s persisted: %v", row.ID, err)
			continue
		}
		log.Printf("[Engine] re-drove pending record %s as %s", row.ID, remoteID)
	}
}

// consoleSink logs engine events for an operator console.
type consoleSink struct{}

func (consoleSink) CallStateChanged(status domain.CallStatus, reason domain.CallStateReason) {
	log.Printf("[Call] %s (%s)", status, callReasonMessage(reason))
}

func (consoleSink) TurnAppended(turn domain.Turn) {
	log.Printf("[Call] %s: %s", turn.Sender, turn.Text)
}

func (consoleSink) CallError(code domain.ErrorCode, detail string) {
	log.Printf("[Call] error: %s (%s)", errorMessage(code, detail), detail)
}

func callReasonMessage(reason domain.CallStateReason) string {
	switch reason {
	case domain.CallReasonDialing:
		return "dialing"
	case domain.CallReasonLineConnecting:
		return "line connecting"
	case domain.CallReasonCallAnswered:
		return "call answered"
	case domain.CallReasonRoutingHandoff:
		return "routing to a human dispatcher"
	case domain.CallReasonCallerHangup:
		return "caller hung up"
	case domain.CallReasonRouted:
		return "routed to dispatcher"
	case domain.CallReasonFatalError:
		return "call aborted"
	default:
		return string(reason)
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMicrophone:
		return "Microphone unavailable"
	case domain.ErrorCodeRecognition:
		return "Speech recognition issue"
	case domain.ErrorCodeSynthesis:
		return "Speech playback issue"
	case domain.ErrorCodeRecording:
		return "Call recording issue"
	case domain.ErrorCodeTurnProcessor:
		return "Dispatch backend unavailable"
	case domain.ErrorCodeAudioUpload:
		return "Audio upload failed"
	case domain.ErrorCodeFinalize:
		return "Record finalization failed"
	case domain.ErrorCodeStore:
		return "Local record journal issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

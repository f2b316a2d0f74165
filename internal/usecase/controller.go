package usecase

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"lifeline/internal/domain"
	"lifeline/internal/ports"
)

var (
	ErrAlreadyStarted = errors.New("call session already started")
	ErrCallEnded      = errors.New("call session has ended")
)

// Config controls call session timing.
type Config struct {
	CallCenterType domain.CallCenterType
	HospitalID     string

	InitiatingDelay    time.Duration
	ConnectingDelay    time.Duration
	RoutingDelay       time.Duration
	TurnTimeout        time.Duration
	ListenRestartDelay time.Duration
	UploadTimeout      time.Duration
	FinalizeTimeout    time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.CallCenterType == "" {
		cfg.CallCenterType = domain.CallCenterMain
	}
	if cfg.InitiatingDelay <= 0 {
		cfg.InitiatingDelay = 1500 * time.Millisecond
	}
	if cfg.ConnectingDelay <= 0 {
		cfg.ConnectingDelay = 2 * time.Second
	}
	if cfg.RoutingDelay <= 0 {
		cfg.RoutingDelay = 3 * time.Second
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 4 * time.Second
	}
	if cfg.ListenRestartDelay <= 0 {
		cfg.ListenRestartDelay = 400 * time.Millisecond
	}
	return cfg
}

// Deps bundles the collaborators a call session owns for its lifetime.
// None of them are shared with another session.
type Deps struct {
	Recognizer  ports.Recognizer
	Synthesizer ports.Synthesizer
	Recorder    ports.Recorder
	Processor   ports.TurnProcessor
	Uploader    ports.AudioUploader
	Finalizer   ports.RecordFinalizer
	Store       ports.RecordStore
	Lines       Lines
	Events      ports.EventSink
}

// CallController owns the lifecycle of one emergency call: it sequences
// speech output, recognition, turn processing and recording, and drives
// finalization exactly once. All state mutation happens on a single
// event loop goroutine; external callers only post events.
type CallController struct {
	deps      Deps
	fallback  *FallbackResponder
	persister recordFinalizer
	cfg       Config

	evts      chan event
	done      chan struct{}
	startOnce sync.Once
	endOnce   sync.Once
	cancel    context.CancelFunc

	mu        sync.Mutex
	id        string
	status    domain.CallStatus
	extracted domain.ExtractedFields
	createdAt time.Time
	endedAt   time.Time

	transcript *transcript

	// loop-local state, touched only by the run goroutine.
	seq        int
	inFlight   bool
	playing    bool
	lastSpoken string
	micDenied  bool
	recorderOn bool
}

func NewCallController(deps Deps, cfg Config) *CallController {
	cfg = cfg.withDefaults()
	return &CallController{
		deps:       deps,
		fallback:   NewFallbackResponder(deps.Lines),
		persister:  newRecordFinalizer(deps.Uploader, deps.Finalizer, deps.Store, deps.Events, cfg.UploadTimeout, cfg.FinalizeTimeout),
		cfg:        cfg,
		evts:       make(chan event, 64),
		done:       make(chan struct{}),
		status:     domain.CallStatusInitiating,
		transcript: newTranscript(),
	}
}

// Start begins the call lifecycle. It may be called once per controller.
func (c *CallController) Start(ctx context.Context) error {
	started := false
	c.startOnce.Do(func() {
		started = true

		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel

		c.mu.Lock()
		c.createdAt = time.Now()
		c.mu.Unlock()

		go c.run(runCtx)
		go c.pumpRecognition()
		go c.pumpPlayback()
	})
	if !started {
		return ErrAlreadyStarted
	}
	return nil
}

// End requests session termination. Safe to call from any goroutine,
// any number of times, in any state.
func (c *CallController) End() {
	c.post(event{kind: evEnd})
}

// SubmitText feeds a typed caller utterance through the same pipeline
// as a recognized one. This is the degraded-mode input path when the
// microphone is unavailable. Returns ErrCallEnded once the session has
// finished and no longer accepts input.
func (c *CallController) SubmitText(text string) error {
	return c.submit(event{kind: evUtterance, text: text})
}

// SubmitAgentText appends a human-agent turn to the transcript.
// Returns ErrCallEnded once the session has finished.
func (c *CallController) SubmitAgentText(text string) error {
	return c.submit(event{kind: evAgentText, text: text})
}

func (c *CallController) submit(ev event) error {
	select {
	case <-c.done:
		return ErrCallEnded
	case c.evts <- ev:
		return nil
	}
}

// Done is closed once finalization has completed and the session is
// garbage-eligible.
func (c *CallController) Done() <-chan struct{} {
	return c.done
}

// Status returns the current lifecycle status.
func (c *CallController) Status() domain.CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns a copy of the session state.
func (c *CallController) Snapshot() domain.CallSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CallSnapshot{
		ID:             c.id,
		Status:         c.status,
		CallCenterType: c.cfg.CallCenterType,
		HospitalID:     c.cfg.HospitalID,
		Transcript:     c.transcript.Snapshot(),
		Extracted:      c.extracted,
		CreatedAt:      c.createdAt,
		EndedAt:        c.endedAt,
	}
}

func (c *CallController) run(ctx context.Context) {
	c.deps.Events.CallStateChanged(domain.CallStatusInitiating, domain.CallReasonDialing)
	c.schedule(timerConnect, c.cfg.InitiatingDelay)

	for {
		select {
		case <-ctx.Done():
			c.finish(domain.CallReasonFatalError)
			return
		case ev := <-c.evts:
			c.handle(ctx, ev)
			if c.Status() == domain.CallStatusEnded {
				return
			}
		}
	}
}

func (c *CallController) pumpRecognition() {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.deps.Recognizer.Events():
			if !ok {
				return
			}
			c.post(event{kind: evUtterance, text: ev.Text, err: ev.Err})
		}
	}
}

func (c *CallController) post(ev event) {
	select {
	case <-c.done:
	case c.evts <- ev:
	}
}

func (c *CallController) schedule(stage timerStage, d time.Duration) {
	time.AfterFunc(d, func() {
		c.post(event{kind: evTimer, stage: stage})
	})
}

func (c *CallController) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evTimer:
		c.handleTimer(ctx, ev.stage)
	case evUtterance:
		c.handleRecognition(ctx, ev)
	case evTurnResult:
		c.applyTurnResult(ctx, ev)
	case evPlaybackDone:
		// Only the most recently requested line gates listening; a
		// superseded line finishing late changes nothing.
		if ev.text == c.lastSpoken {
			c.playing = false
			c.resumeListening(ctx)
		}
	case evAgentText:
		if st := c.Status(); st == domain.CallStatusActive || st == domain.CallStatusRouting {
			c.appendTurn(domain.SenderAgent, ev.text)
		}
	case evEnd:
		c.handleEnd(ctx)
	}
}

func (c *CallController) handleTimer(ctx context.Context, stage timerStage) {
	switch stage {
	case timerConnect:
		if c.Status() == domain.CallStatusInitiating {
			c.setStatus(domain.CallStatusConnecting, domain.CallReasonLineConnecting)
			c.schedule(timerAnswer, c.cfg.ConnectingDelay)
		}
	case timerAnswer:
		if c.Status() == domain.CallStatusConnecting {
			c.enterActive(ctx)
		}
	case timerRoute:
		if c.Status() == domain.CallStatusRouting {
			c.finish(domain.CallReasonRouted)
		}
	case timerListenRestart:
		c.resumeListening(ctx)
	}
}

func (c *CallController) enterActive(ctx context.Context) {
	c.setStatus(domain.CallStatusActive, domain.CallReasonCallAnswered)

	greeting := c.deps.Lines.Greeting()
	if err := c.deps.Recorder.Start(ctx); err != nil {
		if errors.Is(err, ports.ErrMicDenied) {
			c.noteMicDenied(err)
			greeting = greeting + " " + c.deps.Lines.MicDeniedNotice()
		} else {
			c.deps.Events.CallError(domain.ErrorCodeRecording, err.Error())
			log.Printf("[Controller] call recording unavailable: %v", err)
		}
	} else {
		c.recorderOn = true
	}

	c.speak(ctx, greeting)
}

// resumeListening re-enables recognition, gated so the engine never
// listens while it is speaking or while a turn is being processed.
func (c *CallController) resumeListening(ctx context.Context) {
	if c.Status() != domain.CallStatusActive || c.inFlight || c.playing || c.micDenied {
		return
	}
	if err := c.deps.Recognizer.Start(ctx); err != nil {
		if errors.Is(err, ports.ErrMicDenied) {
			c.noteMicDenied(err)
			c.speak(ctx, c.deps.Lines.MicDeniedNotice())
			return
		}
		c.deps.Events.CallError(domain.ErrorCodeRecognition, err.Error())
		c.schedule(timerListenRestart, c.cfg.ListenRestartDelay)
	}
}

func (c *CallController) handleRecognition(ctx context.Context, ev event) {
	if ev.err != nil {
		if !errors.Is(ev.err, ports.ErrNoSpeech) {
			c.deps.Events.CallError(domain.ErrorCodeRecognition, ev.err.Error())
		}
		if c.Status() == domain.CallStatusActive && !c.inFlight && !c.playing {
			c.schedule(timerListenRestart, c.cfg.ListenRestartDelay)
		}
		return
	}

	text := strings.TrimSpace(ev.text)
	if text == "" {
		return
	}
	// A new utterance is never dispatched while the previous turn is
	// still outstanding; recognition stays off until its reply has been
	// applied and spoken.
	if c.Status() != domain.CallStatusActive || c.inFlight {
		return
	}

	c.deps.Recognizer.Stop()
	c.appendTurn(domain.SenderUser, text)

	c.seq++
	c.inFlight = true
	req := ports.TurnRequest{
		SessionID:      c.sessionID(),
		Utterance:      text,
		Transcript:     c.transcript.Snapshot(),
		HospitalID:     c.cfg.HospitalID,
		CallCenterType: c.cfg.CallCenterType,
	}
	go c.processTurn(ctx, c.seq, req)
}

func (c *CallController) processTurn(ctx context.Context, seq int, req ports.TurnRequest) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
	defer cancel()

	res, err := c.deps.Processor.Process(tctx, req)
	c.post(event{kind: evTurnResult, seq: seq, result: res, err: err})
}

func (c *CallController) applyTurnResult(ctx context.Context, ev event) {
	// Late responses for a superseded or finished turn are discarded,
	// never applied.
	if ev.seq != c.seq || !c.inFlight || c.Status() != domain.CallStatusActive {
		return
	}
	c.inFlight = false

	res := ev.result
	if ev.err != nil {
		c.deps.Events.CallError(domain.ErrorCodeTurnProcessor, ev.err.Error())
		log.Printf("[Controller] turn processor unavailable, using scripted fallback: %v", ev.err)
		res = c.fallback.Respond(c.transcript.UserTurns())
	}

	if res.SessionID != "" {
		c.adoptSessionID(res.SessionID)
	}
	c.mergeExtracted(res.Extracted)

	if res.ShouldRoute {
		c.setStatus(domain.CallStatusRouting, domain.CallReasonRoutingHandoff)
		c.speak(ctx, res.Reply)
		c.schedule(timerRoute, c.cfg.RoutingDelay)
		return
	}
	c.speak(ctx, res.Reply)
}

func (c *CallController) handleEnd(ctx context.Context) {
	if c.Status() == domain.CallStatusEnded {
		return
	}
	c.endOnce.Do(func() {
		c.deps.Recognizer.Stop()
		c.deps.Synthesizer.Cancel()
		// Closing line plays while finalization runs; it uses a fresh
		// context so tearing down the session does not clip it.
		c.speak(context.Background(), c.deps.Lines.Closing())
		c.finish(domain.CallReasonCallerHangup)
	})
}

// finish seals the audio, persists the record and retires the session.
// Guarded so the finalization service is invoked at most once no matter
// how the session ends.
func (c *CallController) finish(reason domain.CallStateReason) {
	if c.Status() == domain.CallStatusEnded {
		return
	}
	c.deps.Recognizer.Stop()
	c.setStatus(domain.CallStatusEnded, reason)

	var audio []byte
	if c.recorderOn {
		sealed, err := c.deps.Recorder.Seal()
		if err != nil {
			c.deps.Events.CallError(domain.ErrorCodeRecording, err.Error())
			log.Printf("[Controller] audio seal failed: %v", err)
		} else {
			audio = sealed
		}
	}

	rec := c.buildRecord(reason)
	if _, persisted := c.persister.Persist(rec, audio); !persisted {
		// No record exists to inspect later; tell the caller the call
		// was logged rather than surfacing the backend failure.
		c.deps.Synthesizer.Speak(context.Background(), c.deps.Lines.CallLoggedNotice())
	}

	close(c.done)
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *CallController) buildRecord(reason domain.CallStateReason) domain.EmergencyRecord {
	snap := c.Snapshot()
	rec := domain.EmergencyRecord{
		SessionID:      snap.ID,
		Transcript:     snap.Transcript,
		Extracted:      snap.Extracted,
		Priority:       priorityFor(reason),
		HospitalID:     snap.HospitalID,
		CallCenterType: snap.CallCenterType,
		CreatedAt:      snap.CreatedAt,
		EndedAt:        snap.EndedAt,
	}
	rec.Summary = summarize(rec.Transcript, rec.Extracted)
	return rec
}

// Calls escalated to a human agent outrank ones the caller closed out.
func priorityFor(reason domain.CallStateReason) string {
	if reason == domain.CallReasonRouted {
		return "critical"
	}
	return "high"
}

// speak appends the AI turn at speak-request time, then hands the line
// to the synthesizer. The synthesizer cancels whatever was playing.
func (c *CallController) speak(ctx context.Context, text string) {
	c.appendTurn(domain.SenderAI, text)
	c.playing = true
	c.lastSpoken = text
	c.deps.Synthesizer.Speak(ctx, text)
}

func (c *CallController) pumpPlayback() {
	for {
		select {
		case <-c.done:
			return
		case text, ok := <-c.deps.Synthesizer.Finished():
			if !ok {
				return
			}
			c.post(event{kind: evPlaybackDone, text: text})
		}
	}
}

func (c *CallController) appendTurn(sender domain.Sender, text string) {
	turn := c.transcript.Append(sender, text)
	c.deps.Events.TurnAppended(turn)
}

func (c *CallController) noteMicDenied(err error) {
	if c.micDenied {
		return
	}
	c.micDenied = true
	c.deps.Events.CallError(domain.ErrorCodeMicrophone, err.Error())
	log.Printf("[Controller] continuing without microphone: %v", err)
}

func (c *CallController) setStatus(status domain.CallStatus, reason domain.CallStateReason) {
	c.mu.Lock()
	if status.Rank() <= c.status.Rank() {
		c.mu.Unlock()
		return
	}
	c.status = status
	if status == domain.CallStatusEnded {
		c.endedAt = time.Now()
	}
	c.mu.Unlock()

	c.deps.Events.CallStateChanged(status, reason)
}

func (c *CallController) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// adoptSessionID records the id assigned by the turn processor on the
// first successful response; it never changes afterwards.
func (c *CallController) adoptSessionID(id string) {
	c.mu.Lock()
	if c.id == "" {
		c.id = id
	}
	c.mu.Unlock()
}

func (c *CallController) mergeExtracted(update domain.ExtractedFields) {
	c.mu.Lock()
	c.extracted.Merge(update)
	c.mu.Unlock()
}

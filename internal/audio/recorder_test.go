package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"lifeline/internal/ports"
)

func TestChunkRecorderCapturesUntilSealed(t *testing.T) {
	t.Parallel()

	session := newScriptedSession([][]byte{[]byte("aaa"), []byte("bbb"), []byte("cc")})
	recorder := NewChunkRecorder(&scriptedCapture{session: session}, ports.AudioConfig{}, 512)

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.waitDrained()

	audio, err := recorder.Seal()
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if string(audio) != "aaabbbcc" {
		t.Fatalf("chunks out of order: %q", audio)
	}
	if session.stopCount() == 0 {
		t.Fatalf("sealing must stop the capture session")
	}
}

func TestChunkRecorderSealIsIdempotent(t *testing.T) {
	t.Parallel()

	session := newScriptedSession([][]byte{[]byte("x")})
	recorder := NewChunkRecorder(&scriptedCapture{session: session}, ports.AudioConfig{}, 512)

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.waitDrained()

	first, err := recorder.Seal()
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	second, err := recorder.Seal()
	if err != nil {
		t.Fatalf("second seal failed: %v", err)
	}
	if string(first) != "x" || string(second) != "x" {
		t.Fatalf("artifact changed between seals: %q vs %q", first, second)
	}
	if session.stopCount() != 1 {
		t.Fatalf("session stopped %d times, want 1", session.stopCount())
	}
}

func TestChunkRecorderStartIsIdempotent(t *testing.T) {
	t.Parallel()

	capture := &scriptedCapture{session: newScriptedSession(nil)}
	recorder := NewChunkRecorder(capture, ports.AudioConfig{}, 512)

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if capture.calls != 1 {
		t.Fatalf("capture started %d times, want 1", capture.calls)
	}
	recorder.Seal()
}

func TestChunkRecorderStartFailurePropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("no device")
	recorder := NewChunkRecorder(&scriptedCapture{err: wantErr}, ports.AudioConfig{}, 512)

	if err := recorder.Start(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected device error, got %v", err)
	}
}

func TestChunkRecorderMicDeniedPassthrough(t *testing.T) {
	t.Parallel()

	recorder := NewChunkRecorder(&scriptedCapture{err: ports.ErrMicDenied}, ports.AudioConfig{}, 512)
	if err := recorder.Start(context.Background()); !errors.Is(err, ports.ErrMicDenied) {
		t.Fatalf("denial must stay recognizable, got %v", err)
	}
}

func TestChunkRecorderCapturedAudioOutweighsReadError(t *testing.T) {
	t.Parallel()

	session := newScriptedSession([][]byte{[]byte("audio")})
	session.readErr = errors.New("stream torn down")
	recorder := NewChunkRecorder(&scriptedCapture{session: session}, ports.AudioConfig{}, 512)

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.waitDrained()

	audio, err := recorder.Seal()
	if err != nil {
		t.Fatalf("expected captured audio to clear the error, got %v", err)
	}
	if string(audio) != "audio" {
		t.Fatalf("unexpected artifact: %q", audio)
	}
}

func TestChunkRecorderSealWithoutStart(t *testing.T) {
	t.Parallel()

	recorder := NewChunkRecorder(&scriptedCapture{}, ports.AudioConfig{}, 512)
	audio, err := recorder.Seal()
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if len(audio) != 0 {
		t.Fatalf("expected empty artifact, got %q", audio)
	}
}

type scriptedCapture struct {
	session ports.AudioSession
	err     error
	calls   int
}

func (c *scriptedCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

// scriptedSession serves its chunks then blocks until stopped, like a
// live microphone that has gone quiet.
type scriptedSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	readErr   error
	stopCalls int

	drained chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newScriptedSession(chunks [][]byte) *scriptedSession {
	return &scriptedSession{
		chunks:  chunks,
		drained: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *scriptedSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.index < len(s.chunks) {
		n := copy(p, s.chunks[s.index])
		s.index++
		if s.index == len(s.chunks) {
			close(s.drained)
		}
		s.mu.Unlock()
		return n, nil
	}
	if s.index == len(s.chunks) && len(s.chunks) == 0 {
		s.index++
		close(s.drained)
	}
	readErr := s.readErr
	s.mu.Unlock()

	<-s.stopped
	if readErr != nil {
		return 0, readErr
	}
	return 0, io.EOF
}

func (s *scriptedSession) Close() error { return nil }

func (s *scriptedSession) Stop() error {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func (s *scriptedSession) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

func (s *scriptedSession) waitDrained() { <-s.drained }

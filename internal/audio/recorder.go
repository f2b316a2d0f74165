package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"lifeline/internal/ports"
)

// ChunkRecorder captures the raw audio of a whole call into an
// append-only chunk sequence, independent of recognition. Seal stops
// capture, concatenates the chunks into one artifact exactly once, and
// returns the same artifact on later calls.
type ChunkRecorder struct {
	capture   ports.AudioCapture
	audioCfg  ports.AudioConfig
	chunkSize int

	mu       sync.Mutex
	session  ports.AudioSession
	chunks   [][]byte
	pumpDone chan struct{}

	sealOnce sync.Once
	sealed   []byte
	sealErr  error
}

func NewChunkRecorder(capture ports.AudioCapture, audioCfg ports.AudioConfig, chunkSize int) *ChunkRecorder {
	if chunkSize < 256 {
		chunkSize = 4096
	}
	return &ChunkRecorder{capture: capture, audioCfg: audioCfg, chunkSize: chunkSize}
}

// Start begins capture. It is a no-op while already recording.
func (r *ChunkRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return nil
	}

	session, err := r.capture.Start(ctx, r.audioCfg)
	if err != nil {
		return fmt.Errorf("failed to start call recording: %w", err)
	}

	r.session = session
	r.pumpDone = make(chan struct{})
	go r.pump(session, r.pumpDone)
	return nil
}

func (r *ChunkRecorder) pump(session ports.AudioSession, done chan struct{}) {
	defer close(done)

	buf := make([]byte, r.chunkSize)
	for {
		n, err := session.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				r.mu.Lock()
				if r.sealErr == nil {
					r.sealErr = err
				}
				r.mu.Unlock()
			}
			return
		}
	}
}

// Seal stops capture and returns the concatenated artifact. Chunk order
// is append order; the artifact never changes after the first call.
func (r *ChunkRecorder) Seal() ([]byte, error) {
	r.sealOnce.Do(func() {
		r.mu.Lock()
		session := r.session
		pumpDone := r.pumpDone
		r.mu.Unlock()

		if session != nil {
			_ = session.Stop()
			<-pumpDone
		}

		r.mu.Lock()
		total := 0
		for _, chunk := range r.chunks {
			total += len(chunk)
		}
		sealed := make([]byte, 0, total)
		for _, chunk := range r.chunks {
			sealed = append(sealed, chunk...)
		}
		r.sealed = sealed
		if len(sealed) > 0 {
			// Captured audio outweighs a read error mid-call.
			r.sealErr = nil
		}
		r.mu.Unlock()
	})
	return r.sealed, r.sealErr
}

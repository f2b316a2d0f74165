package usecase

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"lifeline/internal/domain"
	"lifeline/internal/ports"
)

// recordFinalizer drives the end-of-call persistence pipeline: upload
// the sealed audio best-effort, then persist the emergency record with
// one retry, spooling it locally if the service stays unreachable.
// An emergency record with a missing audio reference is acceptable; a
// record that persists nowhere is not.
type recordFinalizer struct {
	uploader ports.AudioUploader
	service  ports.RecordFinalizer
	store    ports.RecordStore
	events   ports.EventSink

	uploadTimeout   time.Duration
	finalizeTimeout time.Duration
}

func newRecordFinalizer(
	uploader ports.AudioUploader,
	service ports.RecordFinalizer,
	store ports.RecordStore,
	events ports.EventSink,
	uploadTimeout time.Duration,
	finalizeTimeout time.Duration,
) recordFinalizer {
	if uploadTimeout <= 0 {
		uploadTimeout = 10 * time.Second
	}
	if finalizeTimeout <= 0 {
		finalizeTimeout = 10 * time.Second
	}
	return recordFinalizer{
		uploader:        uploader,
		service:         service,
		store:           store,
		events:          events,
		uploadTimeout:   uploadTimeout,
		finalizeTimeout: finalizeTimeout,
	}
}

// Persist runs on the session's exit path after the caller context may
// already be cancelled, so every step uses its own bounded context.
// It returns the remote record id and whether remote persistence
// succeeded.
func (f recordFinalizer) Persist(rec domain.EmergencyRecord, audio []byte) (string, bool) {
	rec.AudioRef = f.uploadAudio(rec.SessionID, audio)

	remoteID, err := f.finalizeWithRetry(rec)
	if err != nil {
		f.events.CallError(domain.ErrorCodeFinalize, err.Error())
		log.Printf("[Finalizer] record persistence failed, spooling locally: %v", err)
		if spoolErr := f.store.SpoolPending(rec); spoolErr != nil {
			f.events.CallError(domain.ErrorCodeStore, spoolErr.Error())
			log.Printf("[Finalizer] session lost, spool write failed: %v", spoolErr)
		}
		return "", false
	}

	if saveErr := f.store.SaveFinalized(rec, remoteID); saveErr != nil {
		f.events.CallError(domain.ErrorCodeStore, saveErr.Error())
	}
	return remoteID, true
}

func (f recordFinalizer) uploadAudio(sessionID string, audio []byte) string {
	if len(audio) == 0 {
		return ""
	}

	artifactID := sessionID
	if artifactID == "" {
		artifactID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.uploadTimeout)
	defer cancel()

	ref, err := f.uploader.Upload(ctx, artifactID, audio)
	if err != nil {
		f.events.CallError(domain.ErrorCodeAudioUpload, err.Error())
		log.Printf("[Finalizer] audio upload failed for %s: %v", artifactID, err)
		return ""
	}
	return ref
}

func (f recordFinalizer) finalizeWithRetry(rec domain.EmergencyRecord) (string, error) {
	id, err := f.finalizeOnce(rec)
	if err == nil {
		return id, nil
	}
	log.Printf("[Finalizer] finalize attempt failed, retrying once: %v", err)
	return f.finalizeOnce(rec)
}

func (f recordFinalizer) finalizeOnce(rec domain.EmergencyRecord) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.finalizeTimeout)
	defer cancel()
	return f.service.Finalize(ctx, rec)
}

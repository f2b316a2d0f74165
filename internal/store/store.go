package store

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lifeline/internal/domain"
)

const (
	StatusPersisted = "persisted"
	StatusPending   = "pending"
)

// RecordRow is the local journal entry for one finished call. Rows with
// status pending are records the finalization service never accepted;
// they are re-driven later.
type RecordRow struct {
	ID             string `gorm:"primaryKey"`
	RemoteID       string `gorm:"index"`
	SessionID      string `gorm:"index"`
	Status         string `gorm:"index"`
	Summary        string
	Priority       string
	Name           string
	Location       string
	ContactNumber  string
	EmergencyType  string
	CallCenterType string
	HospitalID     string
	AudioRef       string
	TranscriptJSON string
	CallCreatedAt  time.Time
	CallEndedAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store journals emergency records in a local sqlite database.
type Store struct {
	db *gorm.DB
}

// Open initializes the database and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	if err := db.AutoMigrate(&RecordRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate record store: %w", err)
	}
	log.Printf("[Store] record journal ready: %s", path)
	return &Store{db: db}, nil
}

// SaveFinalized journals a record the finalization service accepted.
func (s *Store) SaveFinalized(rec domain.EmergencyRecord, remoteID string) error {
	row, err := rowFromRecord(rec, StatusPersisted)
	if err != nil {
		return err
	}
	row.RemoteID = remoteID
	return s.db.Create(&row).Error
}

// SpoolPending journals a record whose remote persistence failed so an
// operator process can re-drive it.
func (s *Store) SpoolPending(rec domain.EmergencyRecord) error {
	row, err := rowFromRecord(rec, StatusPending)
	if err != nil {
		return err
	}
	return s.db.Create(&row).Error
}

// Pending returns spooled records oldest first.
func (s *Store) Pending() ([]RecordRow, error) {
	var rows []RecordRow
	err := s.db.Where("status = ?", StatusPending).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// MarkPersisted flips a spooled row to persisted after a successful
// re-drive.
func (s *Store) MarkPersisted(id string, remoteID string) error {
	return s.db.Model(&RecordRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": StatusPersisted, "remote_id": remoteID}).Error
}

// Record rebuilds the domain record from a journal row.
func (r RecordRow) Record() (domain.EmergencyRecord, error) {
	var transcript []domain.Turn
	if r.TranscriptJSON != "" {
		if err := json.Unmarshal([]byte(r.TranscriptJSON), &transcript); err != nil {
			return domain.EmergencyRecord{}, fmt.Errorf("corrupt transcript for record %s: %w", r.ID, err)
		}
	}
	return domain.EmergencyRecord{
		SessionID:  r.SessionID,
		Transcript: transcript,
		Summary:    r.Summary,
		Extracted: domain.ExtractedFields{
			Name:          r.Name,
			Location:      r.Location,
			ContactNumber: r.ContactNumber,
			EmergencyType: r.EmergencyType,
		},
		Priority:       r.Priority,
		AudioRef:       r.AudioRef,
		HospitalID:     r.HospitalID,
		CallCenterType: domain.CallCenterType(r.CallCenterType),
		CreatedAt:      r.CallCreatedAt,
		EndedAt:        r.CallEndedAt,
	}, nil
}

func rowFromRecord(rec domain.EmergencyRecord, status string) (RecordRow, error) {
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return RecordRow{}, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return RecordRow{
		ID:             uuid.New().String(),
		SessionID:      rec.SessionID,
		Status:         status,
		Summary:        rec.Summary,
		Priority:       rec.Priority,
		Name:           rec.Extracted.Name,
		Location:       rec.Extracted.Location,
		ContactNumber:  rec.Extracted.ContactNumber,
		EmergencyType:  rec.Extracted.EmergencyType,
		CallCenterType: string(rec.CallCenterType),
		HospitalID:     rec.HospitalID,
		AudioRef:       rec.AudioRef,
		TranscriptJSON: string(transcript),
		CallCreatedAt:  rec.CreatedAt,
		CallEndedAt:    rec.EndedAt,
	}, nil
}

package meetings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/pkg/storage"
)

// Records is the subset of Repository the store writes through.
type Records interface {
	Create(ctx context.Context, m *models.Meeting) error
	Update(ctx context.Context, m *models.Meeting) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Blobs uploads recording bytes.
type Blobs interface {
	UploadBytes(ctx context.Context, key, contentType string, data []byte) error
}

// Store persists meetings in Postgres and their audio in S3.
type Store struct {
	records Records
	blobs   Blobs
	logger  *zap.Logger
}

// NewStore creates a meeting store.
func NewStore(records Records, blobs Blobs, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{records: records, blobs: blobs, logger: logger}
}

// CreateMeeting inserts m and fills in its ID.
func (s *Store) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	if err := s.records.Create(ctx, m); err != nil {
		return err
	}
	s.logger.Info("meeting created", zap.String("meeting_id", m.ID.String()), zap.String("guild_id", m.GuildID))
	return nil
}

// UpdateMeeting saves end time, participants and recording keys.
func (s *Store) UpdateMeeting(ctx context.Context, m *models.Meeting) error {
	if err := s.records.Update(ctx, m); err != nil {
		return fmt.Errorf("update meeting %s: %w", m.ID, err)
	}
	return nil
}

// DeleteMeeting removes a meeting that captured nothing.
func (s *Store) DeleteMeeting(ctx context.Context, id uuid.UUID) error {
	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete meeting %s: %w", id, err)
	}
	s.logger.Info("meeting deleted", zap.String("meeting_id", id.String()))
	return nil
}

// StoreBlob uploads data under recordings/{guild}/{name} and returns the key.
func (s *Store) StoreBlob(ctx context.Context, guildID, name, contentType string, data []byte) (string, error) {
	key := storage.RecordingKey(guildID, name)
	if err := s.blobs.UploadBytes(ctx, key, contentType, data); err != nil {
		return "", err
	}
	s.logger.Debug("recording stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

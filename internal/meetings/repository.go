package meetings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sbi-steve/backend/internal/models"
)

// ErrNotFound is returned when no meeting matches.
var ErrNotFound = errors.New("meeting not found")

const selectColumns = `id, guild_id, channel_id, started_at, ended_at, participants, recordings,
	transcription_id, transcription, created_at, updated_at`

// Repository handles meeting persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meetings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(&m.ID, &m.GuildID, &m.ChannelID, &m.StartedAt, &m.EndedAt, &m.Participants, &m.Recordings,
		&m.TranscriptionID, &m.Transcription, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Create inserts a meeting, assigning its ID when unset.
func (r *Repository) Create(ctx context.Context, m *models.Meeting) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Participants == nil {
		m.Participants = []string{}
	}
	if m.Recordings == nil {
		m.Recordings = []string{}
	}
	const q = `INSERT INTO meetings (id, guild_id, channel_id, started_at, ended_at, participants, recordings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, m.ID, m.GuildID, m.ChannelID, m.StartedAt, m.EndedAt, m.Participants, m.Recordings).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

// GetByID returns a meeting by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	q := `SELECT ` + selectColumns + ` FROM meetings WHERE id = $1`
	return scanMeeting(r.pool.QueryRow(ctx, q, id))
}

// ListByGuild returns a guild's most recent meetings, newest first.
func (r *Repository) ListByGuild(ctx context.Context, guildID string, limit int) ([]models.Meeting, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q := `SELECT ` + selectColumns + ` FROM meetings WHERE guild_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// Update writes the mutable recording fields of m.
func (r *Repository) Update(ctx context.Context, m *models.Meeting) error {
	const q = `UPDATE meetings SET ended_at = $1, participants = $2, recordings = $3, updated_at = NOW()
		WHERE id = $4 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, m.EndedAt, nonNil(m.Participants), nonNil(m.Recordings), m.ID).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// SetTranscription stores the transcript for a meeting.
func (r *Repository) SetTranscription(ctx context.Context, id uuid.UUID, transcriptionID, text string) error {
	const q = `UPDATE meetings SET transcription_id = $1, transcription = $2, updated_at = NOW() WHERE id = $3`
	tag, err := r.pool.Exec(ctx, q, transcriptionID, text, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a meeting.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

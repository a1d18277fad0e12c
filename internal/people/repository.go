package people

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sbi-steve/backend/internal/models"
)

// ErrNotFound is returned when no person matches.
var ErrNotFound = errors.New("person not found")

// Repository handles member persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a people repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts p or updates the existing row with the same Discord ID.
func (r *Repository) Upsert(ctx context.Context, p *models.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	const q = `INSERT INTO people (id, discord_id, name, eid, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (discord_id) DO UPDATE SET name = EXCLUDED.name, eid = EXCLUDED.eid, email = EXCLUDED.email, updated_at = NOW()
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, p.ID, p.DiscordID, p.Name, p.EID, p.Email).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByDiscordID returns the member linked to a Discord account.
func (r *Repository) GetByDiscordID(ctx context.Context, discordID string) (*models.Person, error) {
	const q = `SELECT id, discord_id, name, eid, email, created_at, updated_at FROM people WHERE discord_id = $1`
	var p models.Person
	err := r.pool.QueryRow(ctx, q, discordID).Scan(&p.ID, &p.DiscordID, &p.Name, &p.EID, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List returns every member ordered by name.
func (r *Repository) List(ctx context.Context) ([]models.Person, error) {
	const q = `SELECT id, discord_id, name, eid, email, created_at, updated_at FROM people ORDER BY name`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.DiscordID, &p.Name, &p.EID, &p.Email, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is a known organisation member linked to a Discord account.
type Person struct {
	ID        uuid.UUID `json:"id"`
	DiscordID string    `json:"discord_id"`
	Name      string    `json:"name"`
	EID       string    `json:"eid,omitempty"`   // employee ID
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that match nothing, including expired
// or revoked rows.
var ErrNotFound = errors.New("record not found")

// DraftSlot is the single draft slot each identity owns.
const DraftSlot = "draft"

// Credentials are the provider tokens held for one API session.
type Credentials struct {
	SessionID    string
	Subject      string
	Email        string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CreatedAt    time.Time
}

type Draft struct {
	Title   string    `json:"title"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"savedAt"`
}

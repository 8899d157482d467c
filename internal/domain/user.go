package domain

import "time"

// User represents a registered account.
type User struct {
	ID        int64
	Name      string
	Salt      []byte
	Hash      []byte
	CreatedAt time.Time
}

// Identity is the authenticated principal of a request.
type Identity struct {
	UserID int64
	Name   string
}

// Identity returns the principal for u.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Name: u.Name}
}

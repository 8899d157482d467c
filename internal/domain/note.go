package domain

import "time"

// MaxNoteID bounds ids a client may request explicitly. Ids above it stay
// reserved for store-assigned keys, so an upsert at the bound never exhausts
// the id sequence.
const MaxNoteID int64 = 1<<53 - 1

// ValidNoteID reports whether id may name a note.
func ValidNoteID(id int64) bool {
	return id > 0 && id <= MaxNoteID
}

// Note is a text entry owned by a single user.
type Note struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether the identity owns the note.
func (n Note) OwnedBy(id Identity) bool {
	return n.OwnerID == id.UserID
}

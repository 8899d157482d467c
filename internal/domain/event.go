package domain

import "time"

// NoteEventType enumerates note activity kinds.
type NoteEventType string

const (
	NoteCreated NoteEventType = "created"
	NoteUpdated NoteEventType = "updated"
	NoteDeleted NoteEventType = "deleted"
	UserDeleted NoteEventType = "user_deleted"
)

// NoteEvent is published after a note mutation commits.
type NoteEvent struct {
	Type  NoteEventType `json:"type"`
	ID    int64         `json:"id,omitempty"`
	Owner string        `json:"owner"`
	Text  string        `json:"text,omitempty"`
	At    time.Time     `json:"at"`
}

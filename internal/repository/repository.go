package repository

import (
	"context"

	"github.com/nmiculinic/rzne/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	// CreateUser inserts user and fills in its ID. Returns ErrConflict when the name is taken.
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByName(ctx context.Context, name string) (*domain.User, error)
	ListUserNames(ctx context.Context) ([]string, error)
	// DeleteUser removes the user together with every note it owns and
	// returns the ids of the removed notes.
	DeleteUser(ctx context.Context, id int64) (noteIDs []int64, err error)
}

// NoteRepository persists notes.
type NoteRepository interface {
	// CreateNote inserts note. A zero ID is assigned by the store; a non-zero ID is
	// used as given and yields ErrConflict if already present.
	CreateNote(ctx context.Context, note *domain.Note) error
	GetNote(ctx context.Context, id int64) (*domain.Note, error)
	UpdateNoteText(ctx context.Context, id int64, text string) (*domain.Note, error)
	DeleteNote(ctx context.Context, id int64) error
	ListNotesByOwner(ctx context.Context, ownerID int64) ([]domain.Note, error)
}

// Store is the full credential store.
type Store interface {
	UserRepository
	NoteRepository
	Ping(ctx context.Context) error
}

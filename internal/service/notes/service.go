package notes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/events"
	"github.com/nmiculinic/rzne/internal/repository"
)

var (
	ErrNotFound     = errors.New("notes: note not found")
	ErrUnauthorized = errors.New("notes: note not owned by caller")
	ErrUserNotFound = errors.New("notes: user not found")
	ErrInvalidID    = errors.New("notes: invalid note id")
)

// Cache is an optional read-through store for notes. Getters return nil on a miss.
type Cache interface {
	GetNote(ctx context.Context, id int64) (*domain.Note, error)
	SetNote(ctx context.Context, note domain.Note) error
	GetOwnerNotes(ctx context.Context, ownerID int64) ([]domain.Note, error)
	SetOwnerNotes(ctx context.Context, ownerID int64, notes []domain.Note) error
	Invalidate(ctx context.Context, noteID, ownerID int64) error
	InvalidateOwner(ctx context.Context, ownerID int64, noteIDs []int64) error
}

// Service implements note CRUD with owner-only mutation.
type Service struct {
	notes     repository.NoteRepository
	users     repository.UserRepository
	cache     Cache
	publisher events.Publisher
	logger    *slog.Logger
	sf        *singleflight.Group
	now       func() time.Time
}

// New constructs a Service. cache and publisher may be nil.
func New(notes repository.NoteRepository, users repository.UserRepository, cache Cache, publisher events.Publisher, logger *slog.Logger) Service {
	initMetrics()
	return Service{
		notes:     notes,
		users:     users,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		sf:        &singleflight.Group{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new note owned by caller.
func (s Service) Create(ctx context.Context, caller domain.Identity, text string) (*domain.Note, error) {
	note := &domain.Note{Text: text, OwnerID: caller.UserID}
	if err := s.notes.CreateNote(ctx, note); err != nil {
		observe(opCreate, resultError)
		return nil, fmt.Errorf("create note: %w", err)
	}
	observe(opCreate, resultOK)
	s.invalidate(ctx, note.ID, note.OwnerID)
	s.publish(ctx, domain.NoteCreated, note.ID, caller.Name, note.Text)
	return note, nil
}

// Get returns a note by id. Reading is public.
func (s Service) Get(ctx context.Context, id int64) (*domain.Note, error) {
	if !domain.ValidNoteID(id) {
		return nil, ErrInvalidID
	}
	if s.cache == nil {
		return s.load(ctx, id)
	}
	v, err, _ := s.sf.Do("note:"+strconv.FormatInt(id, 10), func() (any, error) {
		if cached, err := s.cache.GetNote(ctx, id); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.logger.Warn("note cache read failed", "note_id", id, "error", err)
		}
		note, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetNote(ctx, *note); err != nil {
			s.logger.Warn("note cache write failed", "note_id", id, "error", err)
		}
		return note, nil
	})
	if err != nil {
		return nil, err
	}
	note := *v.(*domain.Note)
	return &note, nil
}

// Put replaces the text of note id, creating it for caller when absent.
// created reports whether a new note was inserted.
func (s Service) Put(ctx context.Context, caller domain.Identity, id int64, text string) (note *domain.Note, created bool, err error) {
	if !domain.ValidNoteID(id) {
		return nil, false, ErrInvalidID
	}
	existing, err := s.notes.GetNote(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("note not found, creating", "note_id", id, "user", caller.Name)
		note = &domain.Note{ID: id, Text: text, OwnerID: caller.UserID}
		err = s.notes.CreateNote(ctx, note)
		if err == nil {
			observe(opPut, resultCreated)
			s.invalidate(ctx, note.ID, note.OwnerID)
			s.publish(ctx, domain.NoteCreated, note.ID, caller.Name, note.Text)
			return note, true, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			observe(opPut, resultError)
			return nil, false, fmt.Errorf("create note %d: %w", id, err)
		}
		// A concurrent PUT created the note first; treat this call as an update.
		existing, err = s.notes.GetNote(ctx, id)
	}
	if err != nil {
		observe(opPut, resultError)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}

	if !existing.OwnedBy(caller) {
		s.logger.Warn("note not owned by caller", "note_id", id, "user", caller.Name)
		observe(opPut, resultDenied)
		return nil, false, ErrUnauthorized
	}
	note, err = s.notes.UpdateNoteText(ctx, id, text)
	if err != nil {
		observe(opPut, resultError)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}
	observe(opPut, resultOK)
	s.invalidate(ctx, note.ID, note.OwnerID)
	s.publish(ctx, domain.NoteUpdated, note.ID, caller.Name, note.Text)
	return note, false, nil
}

// Delete removes note id if caller owns it.
func (s Service) Delete(ctx context.Context, caller domain.Identity, id int64) error {
	if !domain.ValidNoteID(id) {
		return ErrInvalidID
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			observe(opDelete, resultMissing)
		}
		return err
	}
	if !existing.OwnedBy(caller) {
		s.logger.Warn("note not owned by caller", "note_id", id, "user", caller.Name)
		observe(opDelete, resultDenied)
		return ErrUnauthorized
	}
	if err := s.notes.DeleteNote(ctx, id); err != nil {
		observe(opDelete, resultError)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	observe(opDelete, resultOK)
	s.invalidate(ctx, id, existing.OwnerID)
	s.publish(ctx, domain.NoteDeleted, id, caller.Name, "")
	return nil
}

// ListByOwner returns the notes of username. An existing user without notes yields an empty slice.
func (s Service) ListByOwner(ctx context.Context, username string) ([]domain.Note, error) {
	user, err := s.users.GetUserByName(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("user not found", "user", username)
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if s.cache == nil {
		return s.notes.ListNotesByOwner(ctx, user.ID)
	}
	v, err, _ := s.sf.Do("owner:"+strconv.FormatInt(user.ID, 10), func() (any, error) {
		if cached, err := s.cache.GetOwnerNotes(ctx, user.ID); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.logger.Warn("note list cache read failed", "user", username, "error", err)
		}
		list, err := s.notes.ListNotesByOwner(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetOwnerNotes(ctx, user.ID, list); err != nil {
			s.logger.Warn("note list cache write failed", "user", username, "error", err)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	list := v.([]domain.Note)
	return append([]domain.Note(nil), list...), nil
}

// OwnerDeleted drops the cached list and every cached note of a removed user and announces the cascade.
func (s Service) OwnerDeleted(ctx context.Context, user domain.User, noteIDs []int64) {
	if s.cache != nil {
		if err := s.cache.InvalidateOwner(ctx, user.ID, noteIDs); err != nil {
			s.logger.Warn("note cache invalidation failed", "user", user.Name, "error", err)
		}
	}
	s.publish(ctx, domain.UserDeleted, 0, user.Name, "")
}

func (s Service) load(ctx context.Context, id int64) (*domain.Note, error) {
	note, err := s.notes.GetNote(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("note not found", "note_id", id)
			return nil, ErrNotFound
		}
		return nil, err
	}
	return note, nil
}

func (s Service) invalidate(ctx context.Context, noteID, ownerID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, noteID, ownerID); err != nil {
		s.logger.Warn("note cache invalidation failed", "note_id", noteID, "error", err)
	}
}

func (s Service) publish(ctx context.Context, kind domain.NoteEventType, id int64, owner, text string) {
	if s.publisher == nil {
		return
	}
	event := domain.NoteEvent{Type: kind, ID: id, Owner: owner, Text: text, At: s.now()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("note event publish failed", "type", kind, "note_id", id, "error", err)
	}
}

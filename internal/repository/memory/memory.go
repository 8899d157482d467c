package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/repository"
)

// Repository keeps users and notes in process memory.
type Repository struct {
	mu         sync.RWMutex
	users      map[int64]domain.User
	names      map[string]int64
	notes      map[int64]domain.Note
	nextUserID int64
	nextNoteID int64
	now        func() time.Time
}

var _ repository.Store = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		users:      make(map[int64]domain.User),
		names:      make(map[string]int64),
		notes:      make(map[int64]domain.Note),
		nextUserID: 1,
		nextNoteID: 1,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// CreateUser inserts a user.
func (r *Repository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[user.Name]; ok {
		return repository.ErrConflict
	}
	user.ID = r.nextUserID
	r.nextUserID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now()
	}
	stored := *user
	stored.Salt = append([]byte(nil), user.Salt...)
	stored.Hash = append([]byte(nil), user.Hash...)
	r.users[user.ID] = stored
	r.names[user.Name] = user.ID
	return nil
}

// GetUserByName fetches a user by exact name.
func (r *Repository) GetUserByName(_ context.Context, name string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.names[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := r.users[id]
	return &u, nil
}

// ListUserNames returns names in registration order.
func (r *Repository) ListUserNames(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, r.users[id].Name)
	}
	return names, nil
}

// DeleteUser removes the user and its notes under one lock.
func (r *Repository) DeleteUser(_ context.Context, id int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	noteIDs := make([]int64, 0)
	for noteID, n := range r.notes {
		if n.OwnerID == id {
			noteIDs = append(noteIDs, noteID)
			delete(r.notes, noteID)
		}
	}
	sort.Slice(noteIDs, func(i, j int) bool { return noteIDs[i] < noteIDs[j] })
	delete(r.names, u.Name)
	delete(r.users, id)
	return noteIDs, nil
}

// CreateNote inserts a note, honouring an explicit ID.
func (r *Repository) CreateNote(_ context.Context, note *domain.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[note.OwnerID]; !ok {
		return repository.ErrNotFound
	}
	if note.ID == 0 {
		note.ID = r.nextNoteID
	}
	if _, exists := r.notes[note.ID]; exists {
		return repository.ErrConflict
	}
	if note.ID >= r.nextNoteID && note.ID < math.MaxInt64 {
		r.nextNoteID = note.ID + 1
	}
	now := r.now()
	note.CreatedAt = now
	note.UpdatedAt = now
	r.notes[note.ID] = *note
	return nil
}

// GetNote fetches a note.
func (r *Repository) GetNote(_ context.Context, id int64) (*domain.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}

// UpdateNoteText replaces the text of a note.
func (r *Repository) UpdateNoteText(_ context.Context, id int64, text string) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	n.Text = text
	n.UpdatedAt = r.now()
	r.notes[id] = n
	return &n, nil
}

// DeleteNote removes a note.
func (r *Repository) DeleteNote(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.notes, id)
	return nil
}

// ListNotesByOwner returns the owner's notes ordered by ID.
func (r *Repository) ListNotesByOwner(_ context.Context, ownerID int64) ([]domain.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	notes := make([]domain.Note, 0)
	for _, n := range r.notes {
		if n.OwnerID == ownerID {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nmiculinic/rzne/internal/domain"
)

const (
	keyNote       = "note:"
	keyOwnerNotes = "notes:owner:"
)

// NoteCache caches single notes and per-owner note lists in Redis.
type NoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewNoteCache returns a NoteCache.
func NewNoteCache(rdb *redis.Client, ttl time.Duration) *NoteCache {
	return &NoteCache{rdb: rdb, ttl: ttl}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// GetNote returns the cached note, or nil on a miss.
func (c *NoteCache) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	var note domain.Note
	ok, err := c.get(ctx, noteKey(id), &note)
	if err != nil || !ok {
		return nil, err
	}
	return &note, nil
}

// SetNote stores a note.
func (c *NoteCache) SetNote(ctx context.Context, note domain.Note) error {
	return c.set(ctx, noteKey(note.ID), note)
}

// GetOwnerNotes returns the cached list for an owner, or nil on a miss.
func (c *NoteCache) GetOwnerNotes(ctx context.Context, ownerID int64) ([]domain.Note, error) {
	var notes []domain.Note
	ok, err := c.get(ctx, ownerKey(ownerID), &notes)
	if err != nil || !ok {
		return nil, err
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	return notes, nil
}

// SetOwnerNotes stores an owner's note list.
func (c *NoteCache) SetOwnerNotes(ctx context.Context, ownerID int64, notes []domain.Note) error {
	return c.set(ctx, ownerKey(ownerID), notes)
}

// Invalidate drops a note and its owner's list.
func (c *NoteCache) Invalidate(ctx context.Context, noteID, ownerID int64) error {
	return c.rdb.Del(ctx, noteKey(noteID), ownerKey(ownerID)).Err()
}

// InvalidateOwner drops an owner's list and the given notes.
func (c *NoteCache) InvalidateOwner(ctx context.Context, ownerID int64, noteIDs []int64) error {
	return c.rdb.Del(ctx, ownerKeys(ownerID, noteIDs)...).Err()
}

func (c *NoteCache) get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *NoteCache) set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

func noteKey(id int64) string {
	return keyNote + strconv.FormatInt(id, 10)
}

func ownerKey(id int64) string {
	return keyOwnerNotes + strconv.FormatInt(id, 10)
}

func ownerKeys(ownerID int64, noteIDs []int64) []string {
	keys := make([]string, 0, len(noteIDs)+1)
	keys = append(keys, ownerKey(ownerID))
	for _, id := range noteIDs {
		keys = append(keys, noteKey(id))
	}
	return keys
}

package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/repository"
)

func TestCreateUserRejectsDuplicateName(t *testing.T) {
	repo := New()
	ctx := context.Background()
	if err := repo.CreateUser(ctx, &domain.User{Name: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateUser(ctx, &domain.User{Name: "alice"}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	names, _ := repo.ListUserNames(ctx)
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestDeleteUserCascadesNotes(t *testing.T) {
	repo := New()
	ctx := context.Background()
	alice := &domain.User{Name: "alice"}
	bob := &domain.User{Name: "bob"}
	_ = repo.CreateUser(ctx, alice)
	_ = repo.CreateUser(ctx, bob)
	aliceNote := &domain.Note{OwnerID: alice.ID, Text: "a"}
	bobNote := &domain.Note{OwnerID: bob.ID, Text: "b"}
	_ = repo.CreateNote(ctx, aliceNote)
	_ = repo.CreateNote(ctx, bobNote)

	removed, err := repo.DeleteUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(removed) != 1 || removed[0] != aliceNote.ID {
		t.Fatalf("expected removed note ids [%d], got %v", aliceNote.ID, removed)
	}
	if _, err := repo.GetNote(ctx, aliceNote.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected cascaded note removal, got %v", err)
	}
	if _, err := repo.GetNote(ctx, bobNote.ID); err != nil {
		t.Fatalf("expected other user's note to survive: %v", err)
	}
	if _, err := repo.GetUserByName(ctx, "alice"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected user removed, got %v", err)
	}
}

func TestCreateNoteWithExplicitID(t *testing.T) {
	repo := New()
	ctx := context.Background()
	owner := &domain.User{Name: "alice"}
	_ = repo.CreateUser(ctx, owner)

	explicit := &domain.Note{ID: 7, OwnerID: owner.ID, Text: "seven"}
	if err := repo.CreateNote(ctx, explicit); err != nil {
		t.Fatalf("create explicit: %v", err)
	}
	next := &domain.Note{OwnerID: owner.ID, Text: "next"}
	if err := repo.CreateNote(ctx, next); err != nil {
		t.Fatalf("create: %v", err)
	}
	if next.ID != 8 {
		t.Fatalf("expected id after explicit insert to be 8, got %d", next.ID)
	}
	if err := repo.CreateNote(ctx, &domain.Note{ID: 7, OwnerID: owner.ID}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListNotesByOwnerEmpty(t *testing.T) {
	repo := New()
	notes, err := repo.ListNotesByOwner(context.Background(), 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if notes == nil || len(notes) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", notes)
	}
}

func TestCreateNoteAtIDBoundary(t *testing.T) {
	repo := New()
	ctx := context.Background()
	owner := &domain.User{Name: "alice"}
	_ = repo.CreateUser(ctx, owner)

	if err := repo.CreateNote(ctx, &domain.Note{ID: domain.MaxNoteID, OwnerID: owner.ID}); err != nil {
		t.Fatalf("create at max id: %v", err)
	}
	next := &domain.Note{OwnerID: owner.ID, Text: "after"}
	if err := repo.CreateNote(ctx, next); err != nil {
		t.Fatalf("create after max id: %v", err)
	}
	if next.ID != domain.MaxNoteID+1 {
		t.Fatalf("expected id %d, got %d", domain.MaxNoteID+1, next.ID)
	}

	// The counter must not wrap even if the int64 ceiling is written directly.
	if err := repo.CreateNote(ctx, &domain.Note{ID: math.MaxInt64, OwnerID: owner.ID}); err != nil {
		t.Fatalf("create at int64 max: %v", err)
	}
	last := &domain.Note{OwnerID: owner.ID}
	if err := repo.CreateNote(ctx, last); err != nil {
		t.Fatalf("create after int64 max: %v", err)
	}
	if last.ID <= 0 {
		t.Fatalf("expected positive id, got %d", last.ID)
	}
}

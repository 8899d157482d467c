package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/repository"
)

// Repository implements persistence interfaces on SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Store = (*Repository)(nil)

// DSN builds a data source with foreign keys enforced on every connection.
func DSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

// Open creates the parent directory of path and opens the database.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify sqlite database: %w", err)
	}
	return db, nil
}

// New constructs a Repository over db.
func New(db *sql.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, salt, hash, created_at) VALUES (?, ?, ?, ?)`,
		user.Name, user.Salt, user.Hash, user.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

// GetUserByName fetches a user by name.
func (r *Repository) GetUserByName(ctx context.Context, name string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, salt, hash, created_at FROM users WHERE name = ?`, name)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Salt, &u.Hash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUserNames returns every username ordered by id.
func (r *Repository) ListUserNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteUser removes the user and its notes in one transaction.
func (r *Repository) DeleteUser(ctx context.Context, id int64) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `DELETE FROM notes WHERE owner_id = ? RETURNING id`, id)
	if err != nil {
		return nil, err
	}
	noteIDs := make([]int64, 0)
	for rows.Next() {
		var noteID int64
		if err := rows.Scan(&noteID); err != nil {
			rows.Close()
			return nil, err
		}
		noteIDs = append(noteIDs, noteID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, repository.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	sort.Slice(noteIDs, func(i, j int) bool { return noteIDs[i] < noteIDs[j] })
	return noteIDs, nil
}

// CreateNote inserts a note, using note.ID when non-zero.
func (r *Repository) CreateNote(ctx context.Context, note *domain.Note) error {
	now := r.now()
	var (
		res sql.Result
		err error
	)
	if note.ID == 0 {
		res, err = r.db.ExecContext(ctx,
			`INSERT INTO notes (text, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			note.Text, note.OwnerID, now, now)
	} else {
		res, err = r.db.ExecContext(ctx,
			`INSERT INTO notes (id, text, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			note.ID, note.Text, note.OwnerID, now, now)
	}
	if err != nil {
		return mapErr(err)
	}
	if note.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		note.ID = id
	}
	note.CreatedAt = now
	note.UpdatedAt = now
	return nil
}

// GetNote fetches a note by id.
func (r *Repository) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, text, owner_id, created_at, updated_at FROM notes WHERE id = ?`, id)
	var n domain.Note
	if err := row.Scan(&n.ID, &n.Text, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// UpdateNoteText replaces the text of a note.
func (r *Repository) UpdateNoteText(ctx context.Context, id int64, text string) (*domain.Note, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notes SET text = ?, updated_at = ? WHERE id = ?`, text, r.now(), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, repository.ErrNotFound
	}
	return r.GetNote(ctx, id)
}

// DeleteNote removes a note.
func (r *Repository) DeleteNote(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListNotesByOwner returns notes for an owner ordered by id.
func (r *Repository) ListNotesByOwner(ctx context.Context, ownerID int64) ([]domain.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, owner_id, created_at, updated_at FROM notes WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := make([]domain.Note, 0)
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.Text, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func mapErr(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return repository.ErrConflict
	case sqlite3.ErrConstraintForeignKey:
		return repository.ErrNotFound
	}
	return err
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository = (*Repository)(nil)
	_ repository.NoteRepository = (*Repository)(nil)
	_ repository.Store          = (*Repository)(nil)
)

// Ping checks pool connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (name, salt, hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, user.Name, user.Salt, user.Hash).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetUserByName fetches a user by name.
func (r *Repository) GetUserByName(ctx context.Context, name string) (*domain.User, error) {
	const query = `SELECT id, name, salt, hash, created_at FROM users WHERE name = $1`
	row := r.pool.QueryRow(ctx, query, name)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Salt, &u.Hash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUserNames returns every username ordered by id.
func (r *Repository) ListUserNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// DeleteUser removes the user and its notes in one transaction, reporting the removed note ids.
func (r *Repository) DeleteUser(ctx context.Context, id int64) ([]int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `DELETE FROM notes WHERE owner_id = $1 RETURNING id`, id)
	if err != nil {
		return nil, err
	}
	noteIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	slices.Sort(noteIDs)
	return noteIDs, nil
}

// CreateNote inserts a note. An explicit ID advances the identity sequence past it.
func (r *Repository) CreateNote(ctx context.Context, note *domain.Note) error {
	if note.ID == 0 {
		const query = `INSERT INTO notes (text, owner_id)
			VALUES ($1, $2)
			RETURNING id, created_at, updated_at`
		err := r.pool.QueryRow(ctx, query, note.Text, note.OwnerID).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
		return mapNoteWriteErr(err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO notes (id, text, owner_id)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, insert, note.ID, note.Text, note.OwnerID).Scan(&note.CreatedAt, &note.UpdatedAt); err != nil {
		return mapNoteWriteErr(err)
	}
	const bump = `SELECT setval(pg_get_serial_sequence('notes', 'id'), (SELECT MAX(id) FROM notes))`
	if _, err := tx.Exec(ctx, bump); err != nil {
		return fmt.Errorf("advance note sequence: %w", err)
	}
	return tx.Commit(ctx)
}

// GetNote fetches a note by id.
func (r *Repository) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	const query = `SELECT id, text, owner_id, created_at, updated_at FROM notes WHERE id = $1`
	var n domain.Note
	if err := r.pool.QueryRow(ctx, query, id).Scan(&n.ID, &n.Text, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// UpdateNoteText replaces the text of a note.
func (r *Repository) UpdateNoteText(ctx context.Context, id int64, text string) (*domain.Note, error) {
	const query = `UPDATE notes SET text = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, text, owner_id, created_at, updated_at`
	var n domain.Note
	if err := r.pool.QueryRow(ctx, query, id, text).Scan(&n.ID, &n.Text, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// DeleteNote removes a note.
func (r *Repository) DeleteNote(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListNotesByOwner returns notes for an owner ordered by id.
func (r *Repository) ListNotesByOwner(ctx context.Context, ownerID int64) ([]domain.Note, error) {
	const query = `SELECT id, text, owner_id, created_at, updated_at
		FROM notes WHERE owner_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, ownerID)
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

func mapNoteWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return repository.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

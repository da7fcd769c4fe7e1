package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quicknotes/internal/domain"
)

type sqliteNoteRepository struct {
	db *sql.DB
}

func NewSQLiteNoteRepository(db *sql.DB) NoteRepository {
	return &sqliteNoteRepository{db: db}
}

func (r *sqliteNoteRepository) Create(ctx context.Context, note *domain.Note) error {
	query := `
	INSERT INTO notes (id, owner_id, title, body, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, note.ID, note.OwnerID, note.Title, note.Body,
		toUnix(note.CreatedAt), toUnix(note.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (r *sqliteNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	query := `
	SELECT id, owner_id, title, body, created_at, updated_at
	FROM notes WHERE id = ?
	`
	note, err := scanNote(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return note, nil
}

func (r *sqliteNoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	query := `
	SELECT id, owner_id, title, body, created_at, updated_at
	FROM notes WHERE owner_id = ?
	ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*domain.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

func (r *sqliteNoteRepository) Update(ctx context.Context, note *domain.Note) error {
	query := `
	UPDATE notes SET title = ?, body = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query, note.Title, note.Body, toUnix(note.UpdatedAt), note.ID)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return expectOneRow(res)
}

func (r *sqliteNoteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row rowScanner) (*domain.Note, error) {
	var note domain.Note
	var created, updated int64
	if err := row.Scan(&note.ID, &note.OwnerID, &note.Title, &note.Body, &created, &updated); err != nil {
		return nil, err
	}
	note.CreatedAt = fromUnix(created)
	note.UpdatedAt = fromUnix(updated)
	return &note, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

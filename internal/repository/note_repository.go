package repository

import (
	"context"
	"fmt"

	"quicknotes/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error)
	Update(ctx context.Context, note *domain.Note) error
	Delete(ctx context.Context, id string) error
}

const noteDocType = "note"

// noteDoc is the CouchDB shape of a note. The type field lets Mango
// selectors tell notes apart from users stored in the same database.
type noteDoc struct {
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.Note
}

type noteRepository struct {
	client *kivik.Client
	dbName string
}

func NewNoteRepository(client *kivik.Client, dbName string) NoteRepository {
	return &noteRepository{
		client: client,
		dbName: dbName,
	}
}

func noteDocID(id string) string {
	return fmt.Sprintf("note:%s", id)
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) error {
	db := r.client.DB(r.dbName)

	_, err := db.Put(ctx, noteDocID(note.ID), noteDoc{Type: noteDocType, Note: *note})
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	return nil
}

func (r *noteRepository) find(ctx context.Context, id string) (*noteDoc, error) {
	db := r.client.DB(r.dbName)

	var doc noteDoc
	if err := db.Get(ctx, noteDocID(id)).ScanDoc(&doc); err != nil {
		if isCouchNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	return &doc, nil
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	doc, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc.Note, nil
}

func (r *noteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type":     noteDocType,
			"owner_id": ownerID,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*domain.Note
	for rows.Next() {
		var doc noteDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		note := doc.Note
		notes = append(notes, &note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	return notes, nil
}

func (r *noteRepository) Update(ctx context.Context, note *domain.Note) error {
	existing, err := r.find(ctx, note.ID)
	if err != nil {
		return err
	}

	db := r.client.DB(r.dbName)
	doc := noteDoc{Rev: existing.Rev, Type: noteDocType, Note: *note}
	if _, err := db.Put(ctx, noteDocID(note.ID), doc); err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	return nil
}

// Delete removes the document outright; notes are not tombstoned.
func (r *noteRepository) Delete(ctx context.Context, id string) error {
	existing, err := r.find(ctx, id)
	if err != nil {
		return err
	}

	db := r.client.DB(r.dbName)
	if _, err := db.Delete(ctx, noteDocID(id), existing.Rev); err != nil {
		if isCouchNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}

	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quicknotes/internal/domain"
	"quicknotes/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

type NoteService struct {
	repo     repository.NoteRepository
	validate *validator.Validate
	now      func() time.Time
}

func NewNoteService(repo repository.NoteRepository) *NoteService {
	return &NoteService{
		repo:     repo,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Create stores a new note for ownerID. Note ids are ULIDs so that the
// store's natural order matches creation order.
func (s *NoteService) Create(ctx context.Context, ownerID string, req *domain.CreateNoteRequest) (*domain.Note, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFailure(err)
	}
	if !req.Normalize() {
		return nil, &ValidationError{Field: "title", Message: "a note needs a title or a body"}
	}

	now := s.now().UTC()
	note := &domain.Note{
		ID:        ulid.Make().String(),
		OwnerID:   ownerID,
		Title:     req.Title,
		Body:      req.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	glog.V(1).Infof("[notes] created %s for %s", note.ID, ownerID)
	return note, nil
}

// List returns every note of ownerID, newest first.
func (s *NoteService) List(ctx context.Context, ownerID string) ([]domain.Note, error) {
	notes, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	out := make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		out = append(out, *n)
	}
	domain.SortNewestFirst(out)
	return out, nil
}

func (s *NoteService) GetByID(ctx context.Context, ownerID, noteID string) (*domain.Note, error) {
	return s.owned(ctx, ownerID, noteID)
}

// Update applies the set fields of req. Fields left nil are untouched.
func (s *NoteService) Update(ctx context.Context, ownerID, noteID string, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFailure(err)
	}

	note, err := s.owned(ctx, ownerID, noteID)
	if err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return note, nil
	}

	req.ApplyTo(note)
	note.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, note); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to update note: %w", err)
	}

	return note, nil
}

// Delete removes the note permanently.
func (s *NoteService) Delete(ctx context.Context, ownerID, noteID string) error {
	if _, err := s.owned(ctx, ownerID, noteID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, noteID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoteNotFound
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}

	glog.V(1).Infof("[notes] deleted %s for %s", noteID, ownerID)
	return nil
}

func (s *NoteService) owned(ctx context.Context, ownerID, noteID string) (*domain.Note, error) {
	note, err := s.repo.FindByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	if note.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	return note, nil
}

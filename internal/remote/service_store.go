package remote

import (
	"context"
	"errors"

	"quicknotes/internal/domain"
	"quicknotes/internal/service"
)

var errNoOwner = errors.New("no active session")

// OwnerSource names the user on whose behalf id-addressed calls are made.
// session.Gate satisfies it.
type OwnerSource interface {
	CurrentOwnerKey() (string, bool)
}

// ServiceStore runs the store in process, calling the note service directly.
// It reports failures with the same taxonomy as HTTPStore.
type ServiceStore struct {
	notes  *service.NoteService
	owners OwnerSource
}

func NewServiceStore(notes *service.NoteService, owners OwnerSource) *ServiceStore {
	return &ServiceStore{notes: notes, owners: owners}
}

func (s *ServiceStore) List(ctx context.Context, ownerKey string) ([]domain.Note, error) {
	notes, err := s.notes.List(ctx, ownerKey)
	if err != nil {
		return nil, translate("list", "", err)
	}
	return notes, nil
}

func (s *ServiceStore) Insert(ctx context.Context, ownerKey, title, body string) (domain.Note, error) {
	note, err := s.notes.Create(ctx, ownerKey, &domain.CreateNoteRequest{Title: title, Body: body})
	if err != nil {
		return domain.Note{}, translate("insert", "", err)
	}
	return *note, nil
}

func (s *ServiceStore) Patch(ctx context.Context, id string, fields domain.NoteFields) error {
	owner, ok := s.owners.CurrentOwnerKey()
	if !ok {
		return &TransportError{Op: "patch", Err: errNoOwner}
	}
	if _, err := s.notes.Update(ctx, owner, id, &fields); err != nil {
		return translate("patch", id, err)
	}
	return nil
}

func (s *ServiceStore) Remove(ctx context.Context, id string) error {
	owner, ok := s.owners.CurrentOwnerKey()
	if !ok {
		return &TransportError{Op: "remove", Err: errNoOwner}
	}
	if err := s.notes.Delete(ctx, owner, id); err != nil {
		return translate("remove", id, err)
	}
	return nil
}

func translate(op, id string, err error) error {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return &ValidationError{Field: validationErr.Field, Message: validationErr.Message}
	case errors.Is(err, service.ErrNoteNotFound) && id != "":
		return &NotFoundError{ID: id}
	default:
		return &TransportError{Op: op, Err: err}
	}
}

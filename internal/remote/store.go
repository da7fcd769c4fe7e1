// Package remote holds the client's view of the note store: the Store
// contract the reconciliation engine calls, its error taxonomy, and the
// implementations that talk to the store server.
package remote

import (
	"context"

	"quicknotes/internal/domain"
)

// Store is the remote record collection. Implementations must be safe for
// concurrent use; the engine never serializes calls.
type Store interface {
	// List returns every note owned by ownerKey, newest first.
	List(ctx context.Context, ownerKey string) ([]domain.Note, error)
	// Insert creates a note; the store assigns the id and timestamps.
	Insert(ctx context.Context, ownerKey, title, body string) (domain.Note, error)
	// Patch updates only the fields that are set.
	Patch(ctx context.Context, id string, fields domain.NoteFields) error
	Remove(ctx context.Context, id string) error
}

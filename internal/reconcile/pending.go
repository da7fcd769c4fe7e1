package reconcile

import (
	"time"

	"quicknotes/internal/domain"
)

type OpKind string

const (
	KindCreate  OpKind = "create"
	KindUpdate  OpKind = "update"
	KindDelete  OpKind = "delete"
	KindRefresh OpKind = "refresh"
)

// PendingOperation is the bookkeeping for one in-flight remote call. It lives
// from the optimistic mutation until the call resolves.
type PendingOperation struct {
	ID       string
	Kind     OpKind
	RecordID string
	// Target is the id the remote call is addressed to. It differs from
	// RecordID once a provisional note's insert has resolved, and is empty
	// while the operation is queued behind that insert.
	Target string
	Queued bool

	Fields domain.NoteFields
	Before domain.Note
	After  domain.Note

	Snapshot []domain.Note
	Removed  domain.Note
	Index    int

	Epoch     uint64
	StartedAt time.Time
}

func (op *PendingOperation) clone() PendingOperation {
	c := *op
	c.Fields = cloneFields(op.Fields)
	c.Snapshot = cloneNotes(op.Snapshot)
	return c
}

// provisional tracks a note whose id was generated locally. Until its insert
// resolves, operations addressed to it are queued here.
type provisional struct {
	serverID string
	resolved bool
	queued   []*PendingOperation
}

func cloneNotes(notes []domain.Note) []domain.Note {
	if notes == nil {
		return nil
	}
	out := make([]domain.Note, len(notes))
	copy(out, notes)
	return out
}

func cloneFields(f domain.NoteFields) domain.NoteFields {
	var out domain.NoteFields
	if f.Title != nil {
		title := *f.Title
		out.Title = &title
	}
	if f.Body != nil {
		body := *f.Body
		out.Body = &body
	}
	return out
}

func sameNote(a, b domain.Note) bool {
	return a.ID == b.ID &&
		a.OwnerID == b.OwnerID &&
		a.Title == b.Title &&
		a.Body == b.Body &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

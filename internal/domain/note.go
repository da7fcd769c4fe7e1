package domain

import (
	"sort"
	"strings"
	"time"
)

// UntitledNote is the title given to notes created without one.
const UntitledNote = "Untitled"

type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteFields is a partial update. Nil fields are left untouched.
type NoteFields struct {
	Title *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Body  *string `json:"body,omitempty" validate:"omitempty,max=20000"`
}

func (f NoteFields) IsEmpty() bool {
	return f.Title == nil && f.Body == nil
}

// ApplyTo copies the set fields onto n.
func (f NoteFields) ApplyTo(n *Note) {
	if f.Title != nil {
		n.Title = *f.Title
	}
	if f.Body != nil {
		n.Body = *f.Body
	}
}

type CreateNoteRequest struct {
	Title string `json:"title" validate:"max=200"`
	Body  string `json:"body" validate:"max=20000"`
}

// Normalize trims both fields and fills in the placeholder title. It reports
// false when the request carries no text at all.
func (r *CreateNoteRequest) Normalize() bool {
	r.Title = strings.TrimSpace(r.Title)
	r.Body = strings.TrimSpace(r.Body)
	if r.Title == "" && r.Body == "" {
		return false
	}
	if r.Title == "" {
		r.Title = UntitledNote
	}
	return true
}

type UpdateNoteRequest = NoteFields

// SortNewestFirst orders notes by CreatedAt descending, breaking ties on ID so
// the order is total.
func SortNewestFirst(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

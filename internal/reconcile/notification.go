package reconcile

import (
	"fmt"
	"time"

	"quicknotes/internal/remote"
)

// Notification reports a remote failure the engine absorbed. They are
// informational; the engine has already rolled back (or deliberately not)
// by the time one is delivered.
type Notification struct {
	Kind       OpKind
	RecordID   string
	Err        error
	Class      remote.ErrorClass
	RolledBack bool
	At         time.Time
}

func (n Notification) String() string {
	if n.RecordID == "" {
		return fmt.Sprintf("%s failed (%s): %v", n.Kind, n.Class, n.Err)
	}
	action := "kept local change"
	if n.RolledBack {
		action = "rolled back"
	}
	return fmt.Sprintf("%s of %s failed (%s), %s: %v", n.Kind, n.RecordID, n.Class, action, n.Err)
}

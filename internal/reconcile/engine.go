// Package reconcile keeps a locally held, optimistically mutated view of a
// single owner's notes consistent with a remote store that can only be
// polled.
//
// Mutations are applied to the view synchronously and sent to the store on
// their own goroutine. Every change to the view, including the resolution of
// a remote call, happens under one mutex, so each one is atomic with respect
// to the others. Resolutions may arrive in any order:
//
//   - a failed create removes its optimistic note;
//   - a failed update is reported but the local edit is kept;
//   - a failed delete restores the view as it was when the delete was issued;
//   - a refresh replaces the whole view with the store's snapshot.
//
// The last rule means an optimistic note whose insert has not yet been
// confirmed disappears if a refresh that raced ahead of the insert lands
// first. The next refresh brings it back.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"quicknotes/internal/domain"
	"quicknotes/internal/remote"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

var (
	ErrNoSession    = errors.New("reconcile: no active session")
	ErrEmptyNote    = errors.New("reconcile: note has neither title nor body")
	ErrNotInView    = errors.New("reconcile: note is not in the view")
	ErrStaleSession = errors.New("reconcile: result belongs to another session")
)

type DeleteRollback int

const (
	// RollbackSnapshot restores the whole view captured when the delete was
	// issued. Changes made between the delete and its failure are lost.
	RollbackSnapshot DeleteRollback = iota
	// RollbackRecord puts back only the deleted note, at its old position.
	RollbackRecord
)

type Options struct {
	DeleteRollback DeleteRollback
	// RollbackFailedUpdates reverts a failed edit when it is still the
	// latest edit of its note. Off by default: the local text is kept and
	// the next refresh corrects it if the store disagrees.
	RollbackFailedUpdates bool
	NotifyBuffer          int
	Metrics               *Metrics
	Now                   func() time.Time
	NewID                 func() string
}

func (o *Options) setDefaults() {
	if o.NotifyBuffer <= 0 {
		o.NotifyBuffer = 64
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

type Status struct {
	OwnerKey string
	Loaded   bool
	Records  int
	Pending  int
	Saving   bool
	Empty    bool
}

type Engine struct {
	store remote.Store
	opts  Options
	ctx   context.Context

	mu          sync.Mutex
	owner       string
	epoch       uint64
	loaded      bool
	view        []domain.Note
	pending     map[string]*PendingOperation
	provisional map[string]*provisional
	creating    int

	listenersMu sync.Mutex
	listeners   []func()

	notifications chan Notification
	wg            sync.WaitGroup
}

// New builds an engine with no owner. Remote calls run under ctx and are not
// cancelled when the session ends; their results are discarded instead.
func New(ctx context.Context, store remote.Store, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		store:         store,
		opts:          opts,
		ctx:           ctx,
		pending:       make(map[string]*PendingOperation),
		provisional:   make(map[string]*provisional),
		notifications: make(chan Notification, opts.NotifyBuffer),
	}
}

// SetOwner switches the active session. Any change clears the view and
// orphans every in-flight call of the previous session.
func (e *Engine) SetOwner(ownerKey string) {
	e.mu.Lock()
	if ownerKey == e.owner {
		e.mu.Unlock()
		return
	}
	previous := e.owner
	e.owner = ownerKey
	e.epoch++
	e.view = nil
	e.loaded = false
	e.pending = make(map[string]*PendingOperation)
	e.provisional = make(map[string]*provisional)
	e.creating = 0
	e.observeLocked()
	e.mu.Unlock()

	glog.Infof("[engine] owner changed %q -> %q", previous, ownerKey)
	e.changed()
}

func (e *Engine) Create(title, body string) (domain.Note, error) {
	req := domain.CreateNoteRequest{Title: title, Body: body}

	e.mu.Lock()
	if e.owner == "" {
		e.mu.Unlock()
		return domain.Note{}, ErrNoSession
	}
	if !req.Normalize() {
		e.mu.Unlock()
		return domain.Note{}, ErrEmptyNote
	}

	now := e.opts.Now()
	note := domain.Note{
		ID:        e.opts.NewID(),
		OwnerID:   e.owner,
		Title:     req.Title,
		Body:      req.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.view = append([]domain.Note{note}, e.view...)

	op := e.openLocked(KindCreate, note.ID)
	e.provisional[note.ID] = &provisional{}
	e.creating++
	owner := e.owner
	e.observeLocked()
	e.mu.Unlock()

	e.changed()

	e.dispatch(func(ctx context.Context) {
		created, err := e.store.Insert(ctx, owner, req.Title, req.Body)
		e.resolveCreate(op, created, err)
	})

	return note, nil
}

func (e *Engine) Update(id string, fields domain.NoteFields) error {
	e.mu.Lock()
	if e.owner == "" {
		e.mu.Unlock()
		return ErrNoSession
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return ErrNotInView
	}
	if fields.IsEmpty() {
		e.mu.Unlock()
		return nil
	}

	fields = cloneFields(fields)
	before := e.view[idx]
	after := before
	fields.ApplyTo(&after)
	after.UpdatedAt = e.opts.Now()
	e.view[idx] = after

	op := e.openLocked(KindUpdate, id)
	op.Fields = fields
	op.Before = before
	op.After = after
	ready := e.routeLocked(op)
	e.observeLocked()
	e.mu.Unlock()

	e.changed()

	if ready {
		e.send(op)
	}
	return nil
}

func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	if e.owner == "" {
		e.mu.Unlock()
		return ErrNoSession
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return ErrNotInView
	}

	snapshot := cloneNotes(e.view)
	removed := e.view[idx]
	next := make([]domain.Note, 0, len(e.view)-1)
	next = append(next, e.view[:idx]...)
	e.view = append(next, e.view[idx+1:]...)

	op := e.openLocked(KindDelete, id)
	op.Snapshot = snapshot
	op.Removed = removed
	op.Index = idx
	ready := e.routeLocked(op)
	e.observeLocked()
	e.mu.Unlock()

	e.changed()

	if ready {
		e.send(op)
	}
	return nil
}

// ApplyRefresh replaces the view with an authoritative snapshot of
// ownerKey's notes. Records owned by someone else are ignored, duplicates are
// collapsed to their latest update, and the result is sorted newest first.
// Unconfirmed optimistic state is discarded.
func (e *Engine) ApplyRefresh(ownerKey string, records []domain.Note) error {
	e.mu.Lock()
	if ownerKey == "" || ownerKey != e.owner {
		e.mu.Unlock()
		e.opts.Metrics.refreshed("stale")
		glog.V(1).Infof("[engine] discarding refresh for inactive owner %q", ownerKey)
		return ErrStaleSession
	}

	next := make([]domain.Note, 0, len(records))
	seen := make(map[string]int, len(records))
	foreign := 0
	for _, r := range records {
		if r.OwnerID != "" && r.OwnerID != ownerKey {
			foreign++
			continue
		}
		if i, ok := seen[r.ID]; ok {
			if r.UpdatedAt.After(next[i].UpdatedAt) {
				next[i] = r
			}
			continue
		}
		seen[r.ID] = len(next)
		next = append(next, r)
	}
	domain.SortNewestFirst(next)

	e.view = next
	e.loaded = true
	for id, p := range e.provisional {
		if p.resolved {
			delete(e.provisional, id)
		}
	}
	e.observeLocked()
	e.mu.Unlock()

	if foreign > 0 {
		glog.Warningf("[engine] refresh for %q carried %d foreign notes, ignored", ownerKey, foreign)
	}
	e.opts.Metrics.refreshed("applied")
	glog.V(2).Infof("[engine] refresh applied: %d notes", len(next))
	e.changed()
	return nil
}

// RefreshFailed reports a failed fetch. The view is left as it was.
func (e *Engine) RefreshFailed(ownerKey string, err error) {
	e.mu.Lock()
	active := ownerKey != "" && ownerKey == e.owner
	e.mu.Unlock()

	if !active {
		return
	}
	e.opts.Metrics.refreshed("failed")
	e.notify(Notification{Kind: KindRefresh, Err: err})
}

// View returns a copy of the current view, newest first.
func (e *Engine) View() []domain.Note {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := cloneNotes(e.view)
	if out == nil {
		out = []domain.Note{}
	}
	return out
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		OwnerKey: e.owner,
		Loaded:   e.loaded,
		Records:  len(e.view),
		Pending:  len(e.pending),
		Saving:   e.creating > 0,
		Empty:    e.loaded && len(e.view) == 0,
	}
}

// Pending lists the operations still awaiting their remote call, oldest
// first.
func (e *Engine) Pending() []PendingOperation {
	e.mu.Lock()
	out := make([]PendingOperation, 0, len(e.pending))
	for _, op := range e.pending {
		out = append(out, op.clone())
	}
	e.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (e *Engine) Notifications() <-chan Notification {
	return e.notifications
}

// OnChange registers fn to run after every change to the view. fn runs on
// the goroutine that made the change and must not block.
func (e *Engine) OnChange(fn func()) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Wait blocks until every dispatched remote call has resolved.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) openLocked(kind OpKind, recordID string) *PendingOperation {
	op := &PendingOperation{
		ID:        uuid.NewString(),
		Kind:      kind,
		RecordID:  recordID,
		Epoch:     e.epoch,
		StartedAt: e.opts.Now(),
	}
	e.pending[op.ID] = op
	return op
}

// routeLocked addresses op to the right remote id. It reports false when op
// has to wait for the insert of a provisional note.
func (e *Engine) routeLocked(op *PendingOperation) bool {
	p, ok := e.provisional[op.RecordID]
	if !ok {
		op.Target = op.RecordID
		return true
	}
	if p.resolved {
		op.Target = p.serverID
		return true
	}
	op.Queued = true
	p.queued = append(p.queued, op)
	glog.V(2).Infof("[engine] %s of %s queued behind its insert", op.Kind, op.RecordID)
	return false
}

func (e *Engine) send(op *PendingOperation) {
	switch op.Kind {
	case KindUpdate:
		e.dispatch(func(ctx context.Context) {
			e.resolveUpdate(op, e.store.Patch(ctx, op.Target, op.Fields))
		})
	case KindDelete:
		e.dispatch(func(ctx context.Context) {
			e.resolveDelete(op, e.store.Remove(ctx, op.Target))
		})
	}
}

func (e *Engine) dispatch(call func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		call(e.ctx)
	}()
}

// finishLocked drops op from the pending set and reports whether its result
// still belongs to the active session.
func (e *Engine) finishLocked(op *PendingOperation) bool {
	delete(e.pending, op.ID)
	if op.Epoch != e.epoch {
		return false
	}
	e.observeLocked()
	return true
}

func (e *Engine) resolveCreate(op *PendingOperation, created domain.Note, err error) {
	e.mu.Lock()
	if !e.finishLocked(op) {
		e.mu.Unlock()
		e.discardStale(op, err)
		return
	}
	e.creating--

	p := e.provisional[op.RecordID]
	if err != nil {
		removed := e.removeLocked(op.RecordID)
		if p != nil {
			for _, q := range p.queued {
				delete(e.pending, q.ID)
				glog.V(1).Infof("[engine] dropping queued %s of %s: insert failed", q.Kind, q.RecordID)
			}
		}
		delete(e.provisional, op.RecordID)
		e.observeLocked()
		e.mu.Unlock()

		e.opts.Metrics.resolved(op.Kind, "failed", op.StartedAt)
		e.opts.Metrics.rolledBack(op.Kind)
		e.notify(Notification{Kind: op.Kind, RecordID: op.RecordID, Err: err, RolledBack: true})
		if removed {
			e.changed()
		}
		return
	}

	var queued []*PendingOperation
	if p != nil {
		p.serverID = created.ID
		p.resolved = true
		queued = p.queued
		p.queued = nil
	}
	for _, q := range queued {
		q.Target = created.ID
		q.Queued = false
	}
	e.observeLocked()
	e.mu.Unlock()

	e.opts.Metrics.resolved(op.Kind, "ok", op.StartedAt)
	glog.V(2).Infof("[engine] insert of %s confirmed as %s", op.RecordID, created.ID)
	// the saving flag may have cleared
	e.changed()
	for _, q := range queued {
		e.send(q)
	}
}

func (e *Engine) resolveUpdate(op *PendingOperation, err error) {
	e.mu.Lock()
	if !e.finishLocked(op) {
		e.mu.Unlock()
		e.discardStale(op, err)
		return
	}
	if err == nil {
		e.mu.Unlock()
		e.opts.Metrics.resolved(op.Kind, "ok", op.StartedAt)
		return
	}

	rolledBack := false
	if e.opts.RollbackFailedUpdates {
		if idx := e.indexLocked(op.RecordID); idx >= 0 && sameNote(e.view[idx], op.After) {
			e.view[idx] = op.Before
			rolledBack = true
		}
	}
	e.mu.Unlock()

	e.opts.Metrics.resolved(op.Kind, "failed", op.StartedAt)
	if rolledBack {
		e.opts.Metrics.rolledBack(op.Kind)
	}
	e.notify(Notification{Kind: op.Kind, RecordID: op.RecordID, Err: err, RolledBack: rolledBack})
	if rolledBack {
		e.changed()
	}
}

func (e *Engine) resolveDelete(op *PendingOperation, err error) {
	e.mu.Lock()
	if !e.finishLocked(op) {
		e.mu.Unlock()
		e.discardStale(op, err)
		return
	}
	if err == nil {
		e.mu.Unlock()
		e.opts.Metrics.resolved(op.Kind, "ok", op.StartedAt)
		return
	}

	switch e.opts.DeleteRollback {
	case RollbackRecord:
		if e.indexLocked(op.Removed.ID) < 0 {
			idx := op.Index
			if idx > len(e.view) {
				idx = len(e.view)
			}
			next := make([]domain.Note, 0, len(e.view)+1)
			next = append(next, e.view[:idx]...)
			next = append(next, op.Removed)
			e.view = append(next, e.view[idx:]...)
		}
	default:
		e.view = cloneNotes(op.Snapshot)
	}
	e.observeLocked()
	e.mu.Unlock()

	e.opts.Metrics.resolved(op.Kind, "failed", op.StartedAt)
	e.opts.Metrics.rolledBack(op.Kind)
	e.notify(Notification{Kind: op.Kind, RecordID: op.RecordID, Err: err, RolledBack: true})
	e.changed()
}

func (e *Engine) discardStale(op *PendingOperation, err error) {
	e.opts.Metrics.resolved(op.Kind, "stale", op.StartedAt)
	glog.V(1).Infof("[engine] discarding %s of %s from a previous session (err=%v)", op.Kind, op.RecordID, err)
}

func (e *Engine) removeLocked(id string) bool {
	idx := e.indexLocked(id)
	if idx < 0 {
		return false
	}
	next := make([]domain.Note, 0, len(e.view)-1)
	next = append(next, e.view[:idx]...)
	e.view = append(next, e.view[idx+1:]...)
	return true
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.view {
		if e.view[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) observeLocked() {
	e.opts.Metrics.observe(len(e.pending), len(e.view))
}

func (e *Engine) notify(n Notification) {
	if n.At.IsZero() {
		n.At = e.opts.Now()
	}
	n.Class = remote.Classify(n.Err)
	glog.Warningf("[engine] %s", n)

	select {
	case e.notifications <- n:
	default:
		e.opts.Metrics.droppedNotification()
		glog.Warningf("[engine] notification buffer full, dropped: %s", n)
	}
}

func (e *Engine) changed() {
	e.listenersMu.Lock()
	listeners := make([]func(), len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

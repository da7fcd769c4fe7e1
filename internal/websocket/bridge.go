package websocket

import (
	"context"
	"errors"
	"fmt"

	"quicknotes/internal/domain"
	"quicknotes/internal/reconcile"

	"github.com/golang/glog"
)

var (
	errNoSession   = errors.New("no active session")
	errUnsupported = errors.New("unsupported message type")
)

// Engine is the part of reconcile.Engine the UI drives.
type Engine interface {
	Create(title, body string) (domain.Note, error)
	Update(id string, fields domain.NoteFields) error
	Delete(id string) error
	View() []domain.Note
	Status() reconcile.Status
}

// Refresher triggers an immediate fetch. poller.Scheduler satisfies it.
type Refresher interface {
	Refresh() bool
}

// Bridge connects the engine to the UI clients of a Manager. Intents arriving
// from clients become engine calls; every view change is broadcast as a full
// snapshot.
type Bridge struct {
	manager   *Manager
	engine    Engine
	refresher Refresher
}

func NewBridge(manager *Manager, engine Engine, refresher Refresher) *Bridge {
	b := &Bridge{manager: manager, engine: engine, refresher: refresher}
	manager.SetMessageHandler(b)
	return b
}

// PublishView broadcasts the current view. Register it with
// reconcile.Engine.OnChange.
func (b *Bridge) PublishView() {
	msg, err := b.viewMessage()
	if err != nil {
		glog.Errorf("[ui] building view: %v", err)
		return
	}
	if err := b.manager.Broadcast(msg); err != nil {
		glog.Errorf("[ui] broadcasting view: %v", err)
	}
}

// ForwardNotices broadcasts every notification until ctx is done or the
// channel is closed.
func (b *Bridge) ForwardNotices(ctx context.Context, notices <-chan reconcile.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			msg, err := NewMessage(TypeNotice, noticePayload(n))
			if err != nil {
				glog.Errorf("[ui] building notice: %v", err)
				continue
			}
			if err := b.manager.Broadcast(msg); err != nil {
				glog.Errorf("[ui] broadcasting notice: %v", err)
			}
		}
	}
}

func (b *Bridge) ClientConnected(client *Client) {
	msg, err := b.viewMessage()
	if err != nil {
		glog.Errorf("[ui] building view: %v", err)
		return
	}
	b.manager.SendToClient(client, msg)
}

func (b *Bridge) HandleWebSocketMessage(client *Client, msg *Message) error {
	switch msg.Type {
	case TypeCreate:
		var payload CreatePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return b.ack(client, msg, "", err)
		}
		note, err := b.engine.Create(payload.Title, payload.Body)
		return b.ack(client, msg, note.ID, err)

	case TypeUpdate:
		var payload UpdatePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return b.ack(client, msg, "", err)
		}
		err := b.engine.Update(payload.ID, domain.NoteFields{Title: payload.Title, Body: payload.Body})
		return b.ack(client, msg, payload.ID, err)

	case TypeDelete:
		var payload DeletePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return b.ack(client, msg, "", err)
		}
		return b.ack(client, msg, payload.ID, b.engine.Delete(payload.ID))

	case TypeRefresh:
		var err error
		if b.refresher == nil || !b.refresher.Refresh() {
			err = errNoSession
		}
		return b.ack(client, msg, "", err)

	case TypePing:
		pong, err := NewMessage(TypePong, nil)
		if err != nil {
			return err
		}
		return b.manager.SendToClient(client, pong)

	default:
		return b.ack(client, msg, "", fmt.Errorf("%w: %q", errUnsupported, msg.Type))
	}
}

// ack answers an intent. The intent's own failure is reported to the client
// and is not an error of the handler.
func (b *Bridge) ack(client *Client, msg *Message, noteID string, intentErr error) error {
	payload := AckPayload{MessageID: msg.ID, Success: intentErr == nil, NoteID: noteID}
	if intentErr != nil {
		payload.Error = intentErr.Error()
		glog.V(1).Infof("[ui] %s from %s refused: %v", msg.Type, client.ID, intentErr)
	}

	reply, err := NewMessage(TypeAck, payload)
	if err != nil {
		return err
	}
	return b.manager.SendToClient(client, reply)
}

func (b *Bridge) viewMessage() (*Message, error) {
	status := b.engine.Status()
	return NewMessage(TypeView, ViewPayload{
		Notes: b.engine.View(),
		Status: StatusPayload{
			OwnerKey: status.OwnerKey,
			Loaded:   status.Loaded,
			Empty:    status.Empty,
			Saving:   status.Saving,
			Pending:  status.Pending,
		},
	})
}

func noticePayload(n reconcile.Notification) NoticePayload {
	return NoticePayload{
		Kind:       string(n.Kind),
		RecordID:   n.RecordID,
		Class:      string(n.Class),
		RolledBack: n.RolledBack,
		Message:    n.String(),
		At:         n.At,
	}
}

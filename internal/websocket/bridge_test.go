package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quicknotes/internal/domain"
	"quicknotes/internal/reconcile"
	"quicknotes/internal/remote"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	seq       int
	insertErr error
}

func (s *memStore) List(ctx context.Context, ownerKey string) ([]domain.Note, error) {
	return []domain.Note{}, nil
}

func (s *memStore) Insert(ctx context.Context, ownerKey, title, body string) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return domain.Note{}, s.insertErr
	}
	s.seq++
	now := time.Now()
	return domain.Note{ID: fmt.Sprintf("srv-%d", s.seq), OwnerID: ownerKey, Title: title, Body: body, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *memStore) Patch(ctx context.Context, id string, fields domain.NoteFields) error { return nil }

func (s *memStore) Remove(ctx context.Context, id string) error { return nil }

type countingRefresher struct {
	inactive atomic.Bool
	calls    atomic.Int32
}

func (r *countingRefresher) Refresh() bool {
	r.calls.Add(1)
	return !r.inactive.Load()
}

type testHub struct {
	manager   *Manager
	engine    *reconcile.Engine
	refresher *countingRefresher
	url       string
}

func newTestHub(t *testing.T, store remote.Store, config *Config) *testHub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	manager := NewManager(config)
	go manager.Run(ctx)

	engine := reconcile.New(ctx, store, reconcile.Options{})
	refresher := &countingRefresher{}
	bridge := NewBridge(manager, engine, refresher)
	engine.OnChange(bridge.PublishView)
	go bridge.ForwardNotices(ctx, engine.Notifications())

	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(uuid.NewString(), conn, manager)
		if !manager.Add(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))

	t.Cleanup(func() {
		engine.Wait()
		cancel()
		srv.Close()
	})

	return &testHub{
		manager:   manager,
		engine:    engine,
		refresher: refresher,
		url:       "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (h *testHub) dial(t *testing.T) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *gws.Conn, id string, msgType MessageType, payload interface{}) {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	require.NoError(t, err)
	msg.ID = id
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *gws.Conn, match func(*Message) bool) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(&msg) {
			return &msg
		}
	}
}

func isType(msgType MessageType) func(*Message) bool {
	return func(m *Message) bool { return m.Type == msgType }
}

func ackFor(id string) func(*Message) bool {
	return func(m *Message) bool {
		if m.Type != TypeAck {
			return false
		}
		var ack AckPayload
		return m.UnmarshalPayload(&ack) == nil && ack.MessageID == id
	}
}

func viewWith(pred func(ViewPayload) bool) func(*Message) bool {
	return func(m *Message) bool {
		if m.Type != TypeView {
			return false
		}
		var view ViewPayload
		return m.UnmarshalPayload(&view) == nil && pred(view)
	}
}

func TestBridge_GreetsWithView(t *testing.T) {
	hub := newTestHub(t, &memStore{}, nil)
	hub.engine.SetOwner("alice")
	require.NoError(t, hub.engine.ApplyRefresh("alice", []domain.Note{{ID: "n1", OwnerID: "alice", Title: "hello"}}))

	conn := hub.dial(t)
	msg := readUntil(t, conn, isType(TypeView))

	var view ViewPayload
	require.NoError(t, msg.UnmarshalPayload(&view))
	require.Len(t, view.Notes, 1)
	assert.Equal(t, "hello", view.Notes[0].Title)
	assert.Equal(t, "alice", view.Status.OwnerKey)
	assert.True(t, view.Status.Loaded)
	assert.False(t, view.Status.Empty)
}

func TestBridge_CreateIntent(t *testing.T) {
	hub := newTestHub(t, &memStore{}, nil)
	hub.engine.SetOwner("alice")
	conn := hub.dial(t)
	readUntil(t, conn, isType(TypeView))

	send(t, conn, "m1", TypeCreate, CreatePayload{Title: "groceries", Body: "milk"})

	msg := readUntil(t, conn, ackFor("m1"))
	var ack AckPayload
	require.NoError(t, msg.UnmarshalPayload(&ack))
	assert.True(t, ack.Success)
	assert.NotEmpty(t, ack.NoteID)

	readUntil(t, conn, viewWith(func(v ViewPayload) bool {
		return len(v.Notes) == 1 && v.Notes[0].ID == ack.NoteID && !v.Status.Saving
	}))
}

func TestBridge_UpdateAndDeleteIntents(t *testing.T) {
	hub := newTestHub(t, &memStore{}, nil)
	hub.engine.SetOwner("alice")
	require.NoError(t, hub.engine.ApplyRefresh("alice", []domain.Note{{ID: "n1", OwnerID: "alice", Title: "old"}}))
	conn := hub.dial(t)

	title := "new"
	send(t, conn, "u1", TypeUpdate, UpdatePayload{ID: "n1", Title: &title})
	readUntil(t, conn, ackFor("u1"))
	assert.Equal(t, "new", hub.engine.View()[0].Title)

	// the view change is published before the intent is acknowledged
	send(t, conn, "d1", TypeDelete, DeletePayload{ID: "n1"})
	readUntil(t, conn, viewWith(func(v ViewPayload) bool { return len(v.Notes) == 0 }))
	msg := readUntil(t, conn, ackFor("d1"))
	var ack AckPayload
	require.NoError(t, msg.UnmarshalPayload(&ack))
	assert.True(t, ack.Success)
	assert.Empty(t, hub.engine.View())
}

func TestBridge_RefusedIntents(t *testing.T) {
	hub := newTestHub(t, &memStore{}, nil)
	conn := hub.dial(t)

	tests := []struct {
		name    string
		msgType MessageType
		payload interface{}
		wantErr string
	}{
		{"create without session", TypeCreate, CreatePayload{Title: "x"}, "no active session"},
		{"delete unknown note", TypeDelete, DeletePayload{ID: "ghost"}, "no active session"},
		{"unknown type", MessageType("explode"), nil, "unsupported message type"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := fmt.Sprintf("r%d", i)
			send(t, conn, id, tt.msgType, tt.payload)

			var ack AckPayload
			require.NoError(t, readUntil(t, conn, ackFor(id)).UnmarshalPayload(&ack))
			assert.False(t, ack.Success)
			assert.Contains(t, ack.Error, tt.wantErr)
		})
	}

	hub.engine.SetOwner("alice")
	send(t, conn, "e1", TypeCreate, CreatePayload{Title: "  ", Body: ""})
	var ack AckPayload
	require.NoError(t, readUntil(t, conn, ackFor("e1")).UnmarshalPayload(&ack))
	assert.False(t, ack.Success)
	assert.Equal(t, reconcile.ErrEmptyNote.Error(), ack.Error)
}

func TestBridge_RefreshAndPing(t *testing.T) {
	hub := newTestHub(t, &memStore{}, nil)
	conn := hub.dial(t)

	send(t, conn, "f1", TypeRefresh, nil)
	var ack AckPayload
	require.NoError(t, readUntil(t, conn, ackFor("f1")).UnmarshalPayload(&ack))
	assert.True(t, ack.Success)
	assert.Equal(t, int32(1), hub.refresher.calls.Load())

	hub.refresher.inactive.Store(true)
	send(t, conn, "f2", TypeRefresh, nil)
	require.NoError(t, readUntil(t, conn, ackFor("f2")).UnmarshalPayload(&ack))
	assert.False(t, ack.Success)

	send(t, conn, "p1", TypePing, nil)
	readUntil(t, conn, isType(TypePong))
}

func TestBridge_ForwardsNotices(t *testing.T) {
	hub := newTestHub(t, &memStore{insertErr: &remote.TransportError{Op: "insert", Err: errors.New("connection refused")}}, nil)
	hub.engine.SetOwner("alice")
	conn := hub.dial(t)

	send(t, conn, "c1", TypeCreate, CreatePayload{Title: "doomed"})

	msg := readUntil(t, conn, isType(TypeNotice))
	var notice NoticePayload
	require.NoError(t, msg.UnmarshalPayload(&notice))
	assert.Equal(t, "create", notice.Kind)
	assert.Equal(t, string(remote.ClassTransport), notice.Class)
	assert.True(t, notice.RolledBack)
	assert.Contains(t, notice.Message, "connection refused")

	assert.Empty(t, hub.engine.View())
}

func TestManager_MaxClients(t *testing.T) {
	config := DefaultConfig()
	config.MaxClients = 1
	hub := newTestHub(t, &memStore{}, config)

	first := hub.dial(t)
	readUntil(t, first, isType(TypeView))

	second := hub.dial(t)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.True(t, gws.IsCloseError(err, gws.CloseNoStatusReceived, gws.CloseNormalClosure, gws.CloseAbnormalClosure), err.Error())

	assert.Equal(t, 1, hub.manager.Connections())
}

func TestManager_ShutdownDisconnects(t *testing.T) {
	manager := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(done)
	}()

	cancel()
	<-done

	assert.False(t, manager.Add(NewClient("late", nil, manager)))
	assert.Equal(t, 0, manager.Connections())
}

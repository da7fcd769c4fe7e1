package websocket

import (
	"encoding/json"
	"time"

	"quicknotes/internal/domain"
)

type MessageType string

// Server to client.
const (
	TypeView   MessageType = "view"
	TypeNotice MessageType = "notice"
	TypeAck    MessageType = "ack"
	TypePong   MessageType = "pong"
)

// Client to server.
const (
	TypeCreate  MessageType = "create"
	TypeUpdate  MessageType = "update"
	TypeDelete  MessageType = "delete"
	TypeRefresh MessageType = "refresh"
	TypePing    MessageType = "ping"
)

type Message struct {
	Type MessageType `json:"type"`
	// ID is chosen by the client and echoed back in the ack.
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type StatusPayload struct {
	OwnerKey string `json:"owner_key"`
	Loaded   bool   `json:"loaded"`
	Empty    bool   `json:"empty"`
	Saving   bool   `json:"saving"`
	Pending  int    `json:"pending"`
}

// ViewPayload is a full snapshot. Clients replace what they show with it.
type ViewPayload struct {
	Notes  []domain.Note `json:"notes"`
	Status StatusPayload `json:"status"`
}

type NoticePayload struct {
	Kind       string    `json:"kind"`
	RecordID   string    `json:"record_id,omitempty"`
	Class      string    `json:"class"`
	RolledBack bool      `json:"rolled_back"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

type CreatePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type UpdatePayload struct {
	ID    string  `json:"id"`
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

type DeletePayload struct {
	ID string `json:"id"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	NoteID    string `json:"note_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

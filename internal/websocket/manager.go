// Package websocket fans the engine's view out to connected UIs and carries
// their intents back.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type Config struct {
	MaxClients     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func DefaultConfig() *Config {
	return &Config{
		MaxClients:     8,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 << 10,
	}
}

type Manager struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex

	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage
	done          chan struct{}

	maxClients     int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	messageHandler MessageHandler
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

// ConnectHandler is implemented by message handlers that want to greet a
// client once it has been registered.
type ConnectHandler interface {
	ClientConnected(client *Client)
}

func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		clients:        make(map[string]*Client),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		done:           make(chan struct{}),
		maxClients:     config.MaxClients,
		writeWait:      config.WriteWait,
		pongWait:       config.PongWait,
		pingPeriod:     config.PingPeriod,
		maxMessageSize: config.MaxMessageSize,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

// Run serves registrations and client messages until ctx is done, then
// disconnects every client. Message handlers run on this goroutine.
func (m *Manager) Run(ctx context.Context) {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

// Add hands client to Run. It reports false once the manager has shut down.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	if len(m.clients) >= m.maxClients {
		m.clientsMutex.Unlock()
		glog.Warningf("[ui] max clients (%d) reached, refusing %s", m.maxClients, client.ID)
		close(client.Send)
		return
	}
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	glog.Infof("[ui] client registered: %s", client.ID)

	if greeter, ok := m.messageHandler.(ConnectHandler); ok {
		greeter.ClientConnected(client)
	}
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		glog.Infof("[ui] client unregistered: %s", client.ID)
	}
}

func (m *Manager) shutdown() {
	close(m.done)

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	for id, client := range m.clients {
		delete(m.clients, id)
		close(client.Send)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		glog.Warningf("[ui] malformed message from %s: %v", clientMsg.Client.ID, err)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			glog.Warningf("[ui] error handling %s from %s: %v", msg.Type, clientMsg.Client.ID, err)
		}
	}
}

// Broadcast queues message for every client. A client whose buffer is full
// is disconnected rather than waited on.
func (m *Manager) Broadcast(message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	for id, client := range m.clients {
		select {
		case client.Send <- messageBytes:
		default:
			glog.Warningf("[ui] client %s send buffer full, closing connection", id)
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
	}

	return nil
}

// SendToClient queues message for client if it is still registered.
func (m *Manager) SendToClient(client *Client, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if m.clients[client.ID] != client {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		glog.Warningf("[ui] client %s send buffer full", client.ID)
	}

	return nil
}

func (m *Manager) Connections() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

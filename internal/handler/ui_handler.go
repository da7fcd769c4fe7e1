package handler

import (
	"net/http"

	"quicknotes/internal/middleware"
	"quicknotes/internal/websocket"
	"quicknotes/pkg/response"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"
)

// UIHandler upgrades local UI connections and hands them to the manager.
// There is no token check: the UI runs as the signed-in user and is served on
// a loopback address. The upgrader's default origin check refuses
// cross-origin browser pages.
type UIHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
}

func NewUIHandler(manager *websocket.Manager) *UIHandler {
	return &UIHandler{
		manager: manager,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *UIHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[ui] failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(uuid.NewString(), conn, h.manager)
	if !h.manager.Add(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// NewUIRouter serves the UI socket at /ws and metrics at /metrics.
func NewUIRouter(ui *UIHandler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware())

	r.HandleFunc("/ws", ui.HandleConnection).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		response.Success(w, map[string]string{
			"status":  "healthy",
			"service": "notesctl",
		})
	}).Methods("GET")

	return r
}

package eventbus

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

const wsBufferSize = 1024

// WebSocketHandler relays Hub events to browser clients over a
// websocket connection, one goroutine pumping events out per
// connection (spec §4.6's browser push channel).
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a handler relaying hub's events.
func NewWebSocketHandler(hub *Hub, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:    hub,
		logger: logger.With("component", "eventbus"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsBufferSize,
			WriteBufferSize: wsBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and streams every
// subsequent Hub event to the client as a JSON text frame until the
// connection closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer sub.Close()

	readFailed := make(chan struct{})
	go func() {
		defer close(readFailed)
		for {
			t, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == "PING" {
				if err := conn.WriteMessage(t, []byte("PONG")); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-readFailed:
			return
		case event, ok := <-sub.Channel():
			if !ok {
				return
			}
			encoded, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to encode event", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
				return
			}
		}
	}
}

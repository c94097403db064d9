package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/bridge"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

// StreamHandler pushes bridge events to websocket clients as JSON frames.
type StreamHandler struct {
	Notifier *bridge.Notifier
	log      zerolog.Logger
}

func NewStreamHandler(n *bridge.Notifier, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{Notifier: n, log: log}
}

// GET /api/events/stream
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.Notifier.Subscribe()
	defer cancel()

	// Inbound frames are drained and ignored; the read loop only notices the
	// peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

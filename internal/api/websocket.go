package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out each tick's rendered events to every connected /stream
// client, modeled on the teacher's gorilla/websocket usage for live
// settlement notifications.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcastRaw(payload []byte) {
	if len(payload) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- payload:
		default:
			// Slow consumer: disconnect it rather than block the tick
			// loop.
			h.unregisterLocked(conn, ch)
		}
	}
}

func (h *Hub) unregisterLocked(conn *websocket.Conn, ch chan []byte) {
	close(ch)
	delete(h.clients, conn)
}

// handleStream upgrades the connection and streams every subsequent
// POST /tick's event batch as a JSON text frame until the client
// disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	ch := s.hub.register(conn)
	defer s.hub.unregister(conn)

	// Drain incoming control frames (pings/close) until the client hangs
	// up; this connection is write-only from the server's perspective.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for payload := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

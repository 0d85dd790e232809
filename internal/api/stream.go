package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait = 5 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = streamPongWait * 9 / 10
)

// Hub fans mark snapshots out to websocket subscribers. MarksChanged never
// blocks: a subscriber that has not consumed its previous snapshot gets the
// newer one in its place.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	last    []float64
	clients map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger:  logger,
		clients: make(map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkStreamOrigin,
	}
	return h
}

// checkStreamOrigin accepts browsers on loopback origins, and non-browser
// clients that connect from loopback.
func checkStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return isLoopbackRemoteAddr(r.RemoteAddr)
	}
	return isAllowedOrigin(origin)
}

func (h *Hub) MarksChanged(times []float64) {
	msg, err := json.Marshal(MarksEvent{Type: "marks", Marks: nonNil(times)})
	if err != nil {
		h.logger.Error("encode marks event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = times
	for s := range h.clients {
		s.offer(msg)
	}
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *subscriber) offer(msg []byte) {
	for {
		select {
		case s.send <- msg:
			return
		default:
		}
		select {
		case <-s.send:
		default:
		}
	}
}

// ServeHTTP upgrades the request and streams snapshots until the client goes
// away. The first message is the current snapshot.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, 1)}

	h.mu.Lock()
	initial, _ := json.Marshal(MarksEvent{Type: "marks", Marks: nonNil(h.last)})
	s.send <- initial
	h.clients[s] = struct{}{}
	h.mu.Unlock()

	go h.readPump(s)
	h.writePump(s)
}

// readPump discards client messages; it exists to process control frames and
// notice disconnects.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)
	s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(streamPingEvery)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		delete(h.clients, s)
		close(s.send)
	}
}

func nonNil(times []float64) []float64 {
	if times == nil {
		return []float64{}
	}
	return times
}

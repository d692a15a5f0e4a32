// Package monitor streams live connection events (log lines, status
// changes, errors) to WebSocket subscribers so a browser or script can
// watch a running test setup without attaching to the TUI.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cmbsolver/tuitcptester/internal/logging"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// Event is one monitor frame. Conn is the instance id, Name the
// user-facing connection name.
type Event struct {
	Type    string `json:"type"`
	Conn    string `json:"conn,omitempty"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Time    int64  `json:"time"`
}

// Hub fans every event out to all subscribers. Subscribers that cannot
// keep up or whose socket breaks are dropped on the first failed write.
type Hub struct {
	upgrader       websocket.Upgrader
	clients        map[*websocket.Conn]*subscriber
	allowedOrigins []string
	pingInterval   time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
	mu             sync.RWMutex
}

// subscriber serializes writes; gorilla conns do not allow concurrent
// writers.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewHub(allowedOrigins []string, pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	hub := &Hub{
		clients:        make(map[*websocket.Conn]*subscriber),
		allowedOrigins: allowedOrigins,
		pingInterval:   pingInterval,
		stopCh:         make(chan struct{}),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return hub.isAllowedOrigin(r.Header.Get("Origin"), r.Host)
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	hub.startPingLoop()
	return hub
}

// HandleWS upgrades the request and keeps the subscriber registered until
// its socket closes. Subscribers only read; inbound frames are drained for
// disconnect detection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("monitor upgrade failed", logging.Field{Key: "error", Value: err})
		return
	}
	defer conn.Close()

	conn.SetReadLimit(4096)

	sub := &subscriber{conn: conn}
	h.mu.Lock()
	h.clients[conn] = sub
	h.mu.Unlock()

	if err := sub.writeJSON(Event{Type: "hello", Time: time.Now().Unix()}); err != nil {
		h.removeClient(conn)
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.removeClient(conn)
}

// Broadcast sends the event to every subscriber. Write failures drop the
// subscriber immediately so one dead socket cannot stall the rest.
func (h *Hub) Broadcast(ev Event) {
	if ev.Time == 0 {
		ev.Time = time.Now().Unix()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logging.Warn("monitor event marshal failed", logging.Field{Key: "error", Value: err})
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.clients))
	for _, sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.writeMessage(websocket.TextMessage, data); err != nil {
			h.removeClient(sub.conn)
			sub.conn.Close()
		}
	}
}

func (h *Hub) BroadcastLog(connID, name, msg string) {
	h.Broadcast(Event{Type: "log", Conn: connID, Name: name, Message: msg})
}

func (h *Hub) BroadcastStatus(connID, name string, status types.Status) {
	h.Broadcast(Event{Type: "status", Conn: connID, Name: name, Status: status.String()})
}

func (h *Hub) BroadcastError(connID, name, msg string) {
	h.Broadcast(Event{Type: "error", Conn: connID, Name: name, Message: msg})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) startPingLoop() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.pingClients()
			}
		}
	}()
}

func (h *Hub) pingClients() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.clients))
	for _, sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.writeMessage(websocket.PingMessage, nil); err != nil {
			h.removeClient(sub.conn)
			sub.conn.Close()
		}
	}
}

// Close stops the ping loop and disconnects every subscriber.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	h.wg.Wait()

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.clients))
	for _, sub := range h.clients {
		subs = append(subs, sub)
	}
	h.clients = make(map[*websocket.Conn]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.conn.Close()
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (s *subscriber) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *subscriber) writeMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(messageType, data)
}

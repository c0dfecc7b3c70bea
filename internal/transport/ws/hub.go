package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"quizclash/internal/service"
)

// Message is the WebSocket envelope format, both directions.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type broadcastMessage struct {
	room string
	data []byte
}

// Hub is the room registry: it maps room keys to the sessions currently
// joined and fans broadcasts out to them. Membership is process-local and
// rebuilt from scratch on restart; durable state lives in the score store.
//
// Hub implements service.Registry and service.Broadcaster. Membership
// mutation is synchronous so a broadcast queued right after a join is
// delivered to the joiner; delivery runs on a single loop so broadcast
// order is preserved.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[service.Session]struct{}
	byConn map[service.Session]map[string]struct{}

	broadcast chan broadcastMessage
	logger    *slog.Logger
}

// NewHub creates a hub and starts its delivery loop.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		rooms:     make(map[string]map[service.Session]struct{}),
		byConn:    make(map[service.Session]map[string]struct{}),
		broadcast: make(chan broadcastMessage, 256),
		logger:    logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for msg := range h.broadcast {
		h.mu.RLock()
		for s := range h.rooms[msg.room] {
			s.Deliver(msg.data)
		}
		h.mu.RUnlock()
	}
}

// Join adds the session to the room's set. Idempotent; a session may be in
// several rooms at once.
func (h *Hub) Join(room string, s service.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[service.Session]struct{})
	}
	if _, ok := h.rooms[room][s]; ok {
		return
	}
	h.rooms[room][s] = struct{}{}

	if h.byConn[s] == nil {
		h.byConn[s] = make(map[string]struct{})
	}
	h.byConn[s][room] = struct{}{}

	h.logger.Debug("session joined room", "session", s.ID(), "room", room)
}

// Leave removes the session from the room's set. No-op if absent.
func (h *Hub) Leave(room string, s service.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(room, s)
}

// OnSessionClosed removes the session from every room it joined.
func (h *Hub) OnSessionClosed(s service.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.byConn[s] {
		h.removeLocked(room, s)
	}
	h.logger.Debug("session closed", "session", s.ID())
}

func (h *Hub) removeLocked(room string, s service.Session) {
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined, ok := h.byConn[s]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(h.byConn, s)
		}
	}
}

// MembersOf returns a snapshot of the room's current sessions.
func (h *Hub) MembersOf(room string) []service.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]service.Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		members = append(members, s)
	}
	return members
}

// BroadcastToRoom sends an event to every session in the room at delivery
// time (implements service.Broadcaster).
func (h *Hub) BroadcastToRoom(room string, event string, payload interface{}) {
	data, err := marshalMessage(event, payload)
	if err != nil {
		h.logger.Error("marshal broadcast failed", "room", room, "event", event, "err", err)
		return
	}
	h.broadcast <- broadcastMessage{room: room, data: data}
}

func marshalMessage(event string, payload interface{}) ([]byte, error) {
	msg := Message{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}
	return json.Marshal(&msg)
}

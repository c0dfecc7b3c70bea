package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizclash/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// Budget for the store round-trips behind one inbound event.
	eventTimeout = 10 * time.Second
)

// Inbound event names.
const (
	evtJoin      = "join"
	evtGetPlayer = "get-player"
	evtStart     = "start"
	evtSetScore  = "set-score"
	evtFinish    = "finish"
	evtLeave     = "leave"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connection is one client session. It implements service.Session; the
// hub references it, the pumps own it.
type Connection struct {
	id   string
	send chan []byte
}

// ID returns the session's transport identity.
func (c *Connection) ID() string { return c.id }

// Deliver enqueues a frame for the write pump. Never blocks; a session
// that cannot keep up drops frames rather than stalling the room.
func (c *Connection) Deliver(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

type joinPayload struct {
	Name string `json:"name"`
	Hero string `json:"hero"`
	Room string `json:"room"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type scorePayload struct {
	Room string `json:"room"`
	Name string `json:"name"`
	// Score is the delta to add, not an absolute value.
	Score int `json:"score"`
}

type playerPayload struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

// Handler upgrades HTTP requests and pumps inbound events into the
// dispatcher.
type Handler struct {
	dispatcher *service.Dispatcher
	logger     *slog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(dispatcher *service.Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Serve handles GET /v1/ws.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	conn := &Connection{
		id:   uuid.New().String(),
		send: make(chan []byte, 256),
	}

	h.logger.Info("session connected", "session", conn.id, "remote", r.RemoteAddr)

	if data, err := marshalMessage("confirmation", "connected!"); err == nil {
		conn.Deliver(data)
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.dispatcher.SessionClosed(conn)
		close(conn.send)
		wsConn.Close()
		h.logger.Info("session disconnected", "session", conn.id)
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "session", conn.id, "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("malformed frame", "session", conn.id, "err", err)
			continue
		}
		h.handleEvent(conn, &msg)
	}
}

// handleEvent runs one inbound event to completion before the next frame
// is read, so events from one connection are applied in arrival order.
func (h *Handler) handleEvent(conn *Connection, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch msg.Event {
	case evtJoin:
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.logger.Warn("bad join payload", "session", conn.id, "err", err)
			return
		}
		h.dispatcher.Join(ctx, conn, p.Room, p.Name, p.Hero)

	case evtGetPlayer:
		var p roomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.logger.Warn("bad get-player payload", "session", conn.id, "err", err)
			return
		}
		h.dispatcher.RequestPlayers(ctx, conn, p.Room)

	case evtStart:
		var p roomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.logger.Warn("bad start payload", "session", conn.id, "err", err)
			return
		}
		h.dispatcher.Start(p.Room)

	case evtSetScore:
		var p scorePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.logger.Warn("bad set-score payload", "session", conn.id, "err", err)
			return
		}
		h.dispatcher.SetScore(ctx, p.Room, p.Name, p.Score)

	case evtFinish:
		var p playerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.logger.Warn("bad finish payload", "session", conn.id, "err", err)
			return
		}
		h.dispatcher.Finish(ctx, p.Room, p.Name)

	case evtLeave:
		var p playerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.logger.Warn("bad leave payload", "session", conn.id, "err", err)
			return
		}
		h.dispatcher.Leave(ctx, conn, p.Room, p.Name)

	default:
		h.logger.Warn("unknown event", "session", conn.id, "event", msg.Event)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

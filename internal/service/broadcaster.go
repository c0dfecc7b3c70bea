package service

// Session is one connected client as seen by the engine. The transport
// layer owns the connection; the engine only addresses it.
type Session interface {
	ID() string
	Deliver(data []byte)
}

// Registry tracks which sessions are joined to which rooms (avoids import
// cycle with the transport package, which implements it).
type Registry interface {
	Join(room string, s Session)
	Leave(room string, s Session)
	OnSessionClosed(s Session)
	MembersOf(room string) []Session
}

// Broadcaster fans an event out to every session currently in a room.
type Broadcaster interface {
	BroadcastToRoom(room string, event string, payload interface{})
}

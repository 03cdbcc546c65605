package signaling

import "time"

// EventKind names a room lifecycle event.
type EventKind string

const (
	EventJoined           EventKind = "joined"
	EventPaired           EventKind = "paired"
	EventPeerDisconnected EventKind = "peer-disconnected"
	EventRoomClosed       EventKind = "room-closed"
)

// SessionEvent is emitted by the hub as rooms fill and drain.
type SessionEvent struct {
	Kind     EventKind
	RoomID   string
	Role     Role
	ClientID string
	At       time.Time
}

// EventSink receives session events. Publish is called from the hub
// goroutine and must not block.
type EventSink interface {
	Publish(ev SessionEvent)
}

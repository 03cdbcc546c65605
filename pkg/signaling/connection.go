package signaling

import "time"

// ConnState is the per-connection protocol state.
type ConnState int

const (
	StateUnjoined ConnState = iota
	StateJoined
	StatePaired
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StatePaired:
		return "paired"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink is the outbound half of a transport connection. Send must not block:
// it returns false when the frame was discarded. Close must be idempotent.
type Sink interface {
	Send(data []byte) bool
	Close()
}

// ConnMeta is transport metadata captured on accept.
type ConnMeta struct {
	RemoteAddr string
	UserAgent  string
}

// Connection is the hub's record of one live socket. It is only touched from
// the hub goroutine.
type Connection struct {
	ID          string
	ClientID    string
	RoomID      string
	Role        Role
	State       ConnState
	RemoteAddr  string
	DeviceType  string
	ConnectedAt time.Time

	sink Sink
}

func (c *Connection) open() bool {
	return c.State != StateClosed
}

func (c *Connection) label() string {
	if c.RoomID == "" {
		return "unjoined connection " + c.ID
	}
	return c.Role.String() + " (" + c.RoomID + ")"
}

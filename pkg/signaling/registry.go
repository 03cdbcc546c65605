package signaling

import (
	"sort"
	"time"
)

// Room pairs at most one sender and one receiver.
type Room struct {
	ID        string
	CreatedAt time.Time

	sender   *Connection
	receiver *Connection
}

// Slot returns the connection occupying role, or nil.
func (r *Room) Slot(role Role) *Connection {
	switch role {
	case RoleSender:
		return r.sender
	case RoleReceiver:
		return r.receiver
	default:
		return nil
	}
}

func (r *Room) setSlot(role Role, c *Connection) {
	switch role {
	case RoleSender:
		r.sender = c
	case RoleReceiver:
		r.receiver = c
	}
}

// IsEmpty reports whether neither slot is occupied.
func (r *Room) IsEmpty() bool {
	return r.sender == nil && r.receiver == nil
}

// RoomInfo is a read-only snapshot of a room.
type RoomInfo struct {
	RoomID     string    `json:"roomId"`
	Sender     bool      `json:"sender"`
	Receiver   bool      `json:"receiver"`
	Complete   bool      `json:"complete"`
	CreatedAt  time.Time `json:"createdAt"`
	AgeSeconds int64     `json:"ageSeconds"`
}

// Registry maps room ids to rooms. It is not safe for concurrent use; the hub
// goroutine is its only owner.
type Registry struct {
	rooms map[string]*Room
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
}

// GetOrCreate returns the room for id, creating an empty one when unseen.
// The bool reports whether the room was created.
func (g *Registry) GetOrCreate(id string) (*Room, bool) {
	if room, ok := g.rooms[id]; ok {
		return room, false
	}
	room := &Room{ID: id, CreatedAt: g.now()}
	g.rooms[id] = room
	return room, true
}

// Get looks up a room without creating it.
func (g *Registry) Get(id string) (*Room, bool) {
	room, ok := g.rooms[id]
	return room, ok
}

// AssignSlot places c in the role slot. It fails with ErrSlotOccupied when
// the slot is already taken and leaves the room untouched.
func (g *Registry) AssignSlot(room *Room, role Role, c *Connection) error {
	if !role.valid() {
		return ErrInvalidRole
	}
	if room.Slot(role) != nil {
		return ErrSlotOccupied
	}
	room.setSlot(role, c)
	return nil
}

// VacateSlot clears the role slot and reports whether the room is now empty.
func (g *Registry) VacateSlot(room *Room, role Role) bool {
	room.setSlot(role, nil)
	return room.IsEmpty()
}

// DeleteIfEmpty removes the room when both slots are empty and reports
// whether it did.
func (g *Registry) DeleteIfEmpty(room *Room) bool {
	if !room.IsEmpty() {
		return false
	}
	if current, ok := g.rooms[room.ID]; ok && current == room {
		delete(g.rooms, room.ID)
		return true
	}
	return false
}

// IsComplete reports whether both slots are occupied.
func (g *Registry) IsComplete(room *Room) bool {
	return room.sender != nil && room.receiver != nil
}

// Len is the number of live rooms.
func (g *Registry) Len() int {
	return len(g.rooms)
}

// Snapshot lists live rooms ordered by id.
func (g *Registry) Snapshot() []RoomInfo {
	now := g.now()
	out := make([]RoomInfo, 0, len(g.rooms))
	for _, room := range g.rooms {
		out = append(out, RoomInfo{
			RoomID:     room.ID,
			Sender:     room.sender != nil,
			Receiver:   room.receiver != nil,
			Complete:   g.IsComplete(room),
			CreatedAt:  room.CreatedAt,
			AgeSeconds: int64(now.Sub(room.CreatedAt) / time.Second),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

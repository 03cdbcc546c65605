package signaling

import (
	"encoding/json"
)

// handleInbound parses one frame and dispatches it by type. Every failure
// that concerns the sender is answered with an error envelope; the socket is
// never closed for a bad message.
func (h *Hub) handleInbound(c *Connection, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		h.sendError(c, protocolError("Invalid message format"))
		return
	}

	h.logger.Debug("Received %s from %s", msg.Type, c.label())

	var err error
	switch msg.Type {
	case TypeJoinRoom:
		err = h.handleJoin(c, &msg)
	case TypeOffer:
		err = h.handleRelay(c, &msg, RoleSender, "Only senders can create offers")
	case TypeAnswer:
		err = h.handleRelay(c, &msg, RoleReceiver, "Only receivers can create answers")
	case TypeICECandidate:
		err = h.handleRelay(c, &msg, RoleUnassigned, "")
	default:
		err = protocolError("Unknown message type: %s", msg.Type)
	}
	if err != nil {
		h.sendError(c, err)
	}
}

func (h *Hub) handleJoin(c *Connection, msg *Message) error {
	if c.RoomID != "" {
		return conflictError("Already joined room %s", c.RoomID)
	}
	if msg.RoomID == "" || msg.Role == "" {
		return protocolError("Missing roomId or role")
	}
	role, ok := ParseRole(msg.Role)
	if !ok {
		return protocolError(`Invalid role. Use "receiver"/"windows" or "sender"/"android"`)
	}

	room, created := h.registry.GetOrCreate(msg.RoomID)
	if err := h.registry.AssignSlot(room, role, c); err != nil {
		if created {
			h.registry.DeleteIfEmpty(room)
		}
		return conflictError("Room already has a %s", role)
	}
	if created {
		h.logger.Info("Room created: %s", room.ID)
	}

	c.RoomID = room.ID
	c.Role = role
	c.ClientID = msg.ClientID
	c.State = StateJoined

	h.logger.Info("%s joined room %s (%s, %s)", role, room.ID, c.DeviceType, c.RemoteAddr)
	h.send(c, roomJoinedMessage(room.ID, role))
	h.publish(EventJoined, room.ID, role, c.ClientID)

	if h.registry.IsComplete(room) {
		sender, receiver := room.Slot(RoleSender), room.Slot(RoleReceiver)
		sender.State = StatePaired
		receiver.State = StatePaired
		h.successfulPairs++

		h.send(sender, peerJoinedMessage(room.ID, RoleReceiver))
		h.send(receiver, peerJoinedMessage(room.ID, RoleSender))
		h.publish(EventPaired, room.ID, role, c.ClientID)
		h.logger.Info("Room %s is complete, peers notified", room.ID)
	}
	return nil
}

// handleRelay forwards offer, answer and ice-candidate frames to the other
// slot of the sender's room. required restricts which role may send; an
// unassigned requirement lets either role through.
func (h *Hub) handleRelay(c *Connection, msg *Message, required Role, roleText string) error {
	if c.RoomID == "" {
		return protocolError("Not in a room")
	}
	if required != RoleUnassigned && c.Role != required {
		return protocolError("%s", roleText)
	}

	out := Message{Type: msg.Type, RoomID: c.RoomID}
	switch msg.Type {
	case TypeICECandidate:
		if isAbsent(msg.Candidate) {
			return protocolError("Missing candidate")
		}
		out.Candidate = msg.Candidate
	default:
		if isAbsent(msg.SDP) {
			return protocolError("Missing sdp")
		}
		out.SDP = msg.SDP
	}

	room, ok := h.registry.Get(c.RoomID)
	if !ok {
		return protocolError("Not in a room")
	}
	target := room.Slot(c.Role.Opposite())
	if target == nil || !target.open() {
		h.logger.Warn("%s: no %s in room %s, dropping %s", KindRouting, c.Role.Opposite(), c.RoomID, msg.Type)
		return nil
	}

	h.send(target, out)
	h.logger.Debug("Forwarded %s from %s to %s", msg.Type, c.Role, target.Role)
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

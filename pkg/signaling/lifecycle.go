package signaling

import "strings"

func (h *Hub) handleConnect(c *Connection) {
	h.conns[c.ID] = c
	h.totalConnections++
	h.logger.Info("New connection %s from %s (%s)", c.ID, c.RemoteAddr, c.DeviceType)
}

// handleDisconnect tears down a connection. It is idempotent: a second call
// for the same id finds nothing and returns.
func (h *Hub) handleDisconnect(connID string, cause error) {
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	c.State = StateClosed
	c.sink.Close()

	if cause != nil {
		h.errors++
		h.logger.Warn("%s: %s dropped: %v", KindTransport, c.label(), cause)
	} else {
		h.logger.Info("%s disconnected", c.label())
	}

	if c.RoomID == "" {
		return
	}
	room, ok := h.registry.Get(c.RoomID)
	if !ok || room.Slot(c.Role) != c {
		return
	}

	h.registry.VacateSlot(room, c.Role)
	h.logger.Info("Removed %s from room %s", c.Role, room.ID)

	if peer := room.Slot(c.Role.Opposite()); peer != nil {
		peer.State = StateJoined
		h.send(peer, peerDisconnectedMessage(room.ID, c.Role))
		h.logger.Info("Notified %s about %s disconnect in room %s", peer.Role, c.Role, room.ID)
	}
	h.publish(EventPeerDisconnected, room.ID, c.Role, c.ClientID)

	if h.registry.DeleteIfEmpty(room) {
		h.logger.Info("Room deleted: %s", room.ID)
		h.publish(EventRoomClosed, room.ID, RoleUnassigned, "")
	}
}

// detectDeviceType makes a best guess from the User-Agent header. It is only
// used in logs.
func detectDeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "android"), strings.HasPrefix(ua, "okhttp"):
		return "android"
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "electron"):
		return "electron"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "safari"):
		return "safari"
	default:
		return "unknown"
	}
}

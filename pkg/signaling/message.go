package signaling

import (
	"encoding/json"
	"time"
)

// Message types, client to server.
const (
	TypeJoinRoom     = "join-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// Message types, server to client.
const (
	TypeRoomJoined       = "room-joined"
	TypePeerJoined       = "peer-joined"
	TypePeerDisconnected = "peer-disconnected"
	TypeError            = "error"
)

// Message is the JSON envelope exchanged over the socket in both directions.
// SDP and Candidate are relayed byte for byte and never inspected.
type Message struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Role      string          `json:"role,omitempty"`
	PeerRole  string          `json:"peerRole,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   string          `json:"message,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

func roomJoinedMessage(roomID string, role Role) Message {
	return Message{Type: TypeRoomJoined, RoomID: roomID, Role: role.String(), Success: true}
}

func peerJoinedMessage(roomID string, peer Role) Message {
	return Message{Type: TypePeerJoined, RoomID: roomID, PeerRole: peer.String()}
}

func peerDisconnectedMessage(roomID string, peer Role) Message {
	return Message{Type: TypePeerDisconnected, RoomID: roomID, PeerRole: peer.String()}
}

func errorMessage(text string, at time.Time) Message {
	return Message{Type: TypeError, Message: text, Timestamp: at.UTC().Format(time.RFC3339Nano)}
}

package providers

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/tphan267/mirrorcast-signal/pkg/models"
	"github.com/tphan267/mirrorcast-signal/pkg/signaling"
)

// SignalingProvider exposes the running hub to the HTTP layer
type SignalingProvider interface {
	// Stats returns a snapshot of hub counters
	Stats(ctx context.Context) (signaling.Stats, error)
	// Rooms returns a snapshot of live rooms
	Rooms(ctx context.Context) ([]signaling.RoomInfo, error)
}

// AnalyticsProvider defines analytics operations
type AnalyticsProvider interface {
	// Track records an analytics event
	Track(ctx context.Context, event Event) error
	// GetMetrics retrieves metrics for a given query
	GetMetrics(ctx context.Context, query MetricsQuery) (*MetricsResult, error)
	// History returns persisted events for one room, oldest first
	History(ctx context.Context, roomID string) ([]*models.SessionEvent, error)
}

// Event represents an analytics event
type Event struct {
	Type      string
	RoomID    string
	Role      string
	ClientID  string
	Timestamp time.Time
}

// MetricsQuery defines parameters for metrics retrieval
type MetricsQuery struct {
	Since      time.Time
	EventTypes []string
}

// MetricsResult contains aggregated metrics
type MetricsResult struct {
	Data  map[string]interface{}
	Count int64
}

// DiscoveryProvider answers the questions a client asks before it opens a
// signaling socket
type DiscoveryProvider interface {
	// CreateRoom issues a fresh room id and client id. The room itself is
	// created by the first join.
	CreateRoom() RoomTicket
	// NetworkInfo describes where the signaling socket can be reached
	NetworkInfo() NetworkInfo
	// ICEServers lists the STUN/TURN servers clients should use
	ICEServers() []webrtc.ICEServer
}

// RoomTicket is the answer to a create-room request
type RoomTicket struct {
	RoomID          string `json:"roomId"`
	ClientID        string `json:"clientId"`
	WebSocketURL    string `json:"websocket_url"`
	SignalingServer string `json:"signaling_server"`
}

// NetworkInfo describes the reachable addresses of this server
type NetworkInfo struct {
	LocalIPs      []string `json:"local_ips"`
	WebSocketURL  string   `json:"websocket_url"`
	ServerAddress string   `json:"server_address"`
	Mode          string   `json:"mode"`
}

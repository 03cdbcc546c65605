package core

import (
	"context"
	"fmt"

	"github.com/tphan267/mirrorcast-signal/pkg/config"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
	"github.com/tphan267/mirrorcast-signal/pkg/signaling"
	"github.com/tphan267/mirrorcast-signal/pkg/utils"
)

// MainApp is the main application implementation
type MainApp struct {
	providers *providers.Registry
	cfg       *config.Config
}

// NewMainApp creates a new main application instance
func NewMainApp(p *providers.Registry) *MainApp {
	return &MainApp{
		providers: p,
		cfg:       p.Config(),
	}
}

// Health is the body of GET /health
type Health struct {
	Status      string   `json:"status"`
	Mode        string   `json:"mode"`
	Version     string   `json:"version,omitempty"`
	Rooms       int      `json:"rooms"`
	Connections int      `json:"connections"`
	Uptime      int64    `json:"uptime"`
	LocalIPs    []string `json:"local_ips"`
}

// StatsReport is the body of GET /api/stats
type StatsReport struct {
	signaling.Stats
	Sessions map[string]interface{} `json:"sessions,omitempty"`
}

// Health reports liveness together with a short summary of hub state
func (a *MainApp) Health(ctx context.Context) (*Health, error) {
	sig, err := a.providers.GetSignaling()
	if err != nil {
		return nil, fmt.Errorf("failed to get signaling provider: %w", err)
	}

	stats, err := sig.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read hub stats: %w", err)
	}

	ips, err := utils.GetLocalIPs(true)
	if err != nil {
		ips = []string{}
	}

	h := &Health{
		Status:      "ok",
		Rooms:       stats.ActiveRooms,
		Connections: stats.ActiveConnections,
		Uptime:      stats.UptimeSeconds,
		LocalIPs:    ips,
	}
	if a.cfg != nil {
		h.Mode = a.cfg.Mode
		h.Version = a.cfg.Version
	}
	return h, nil
}

// Stats combines live hub counters with persisted session totals. Analytics
// is optional; without it only the hub counters are returned.
func (a *MainApp) Stats(ctx context.Context) (*StatsReport, error) {
	sig, err := a.providers.GetSignaling()
	if err != nil {
		return nil, fmt.Errorf("failed to get signaling provider: %w", err)
	}

	stats, err := sig.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read hub stats: %w", err)
	}
	report := &StatsReport{Stats: stats}

	analytics, err := a.providers.GetAnalytics()
	if err != nil {
		return report, nil
	}
	metrics, err := analytics.GetMetrics(ctx, providers.MetricsQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	report.Sessions = metrics.Data
	return report, nil
}

// Rooms lists live rooms
func (a *MainApp) Rooms(ctx context.Context) ([]signaling.RoomInfo, error) {
	sig, err := a.providers.GetSignaling()
	if err != nil {
		return nil, fmt.Errorf("failed to get signaling provider: %w", err)
	}
	return sig.Rooms(ctx)
}

// Verify that MainApp implements App interface
var _ App = (*MainApp)(nil)

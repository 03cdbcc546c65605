package discovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/tphan267/mirrorcast-signal/pkg/config"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
)

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	s := NewService()
	s.localIPs = func() ([]string, error) { return []string{"192.168.1.20", "10.0.0.5"}, nil }
	if err := s.Initialize(context.Background(), providers.NewRegistry(nil, logger.Discard(), cfg)); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s
}

func TestWebSocketURLResolution(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want string
	}{
		{"lan", &config.Config{Mode: config.ModeLocal, Host: "0.0.0.0", WSPort: 8080}, "ws://192.168.1.20:8080"},
		{"dev", &config.Config{Mode: config.ModeDev, Host: "localhost", WSPort: 9000}, "ws://localhost:9000"},
		{"public", &config.Config{Mode: config.ModeProduction, Host: "0.0.0.0", WSPort: 8080, PublicWSURL: "wss://signal.example.com/ws"}, "wss://signal.example.com/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, tt.cfg)
			if got := s.NetworkInfo().WebSocketURL; got != tt.want {
				t.Errorf("websocket_url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateRoom(t *testing.T) {
	s := newTestService(t, &config.Config{Mode: config.ModeLocal, Host: "0.0.0.0", WSPort: 8080})

	a, b := s.CreateRoom(), s.CreateRoom()
	if len(a.RoomID) != 8 || strings.ToUpper(a.RoomID) != a.RoomID {
		t.Errorf("room id %q is not an 8 character upper-case code", a.RoomID)
	}
	if a.RoomID == b.RoomID || a.ClientID == b.ClientID {
		t.Error("expected unique ids")
	}
	if a.SignalingServer != "0.0.0.0:8080" {
		t.Errorf("signaling_server = %q", a.SignalingServer)
	}
	if a.WebSocketURL != "ws://192.168.1.20:8080" {
		t.Errorf("websocket_url = %q", a.WebSocketURL)
	}
}

func TestRoutes(t *testing.T) {
	s := newTestService(t, &config.Config{
		Mode:       config.ModeLocal,
		Host:       "0.0.0.0",
		WSPort:     8080,
		ICEServers: []config.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	app := fiber.New()
	if err := s.RegisterAPIRoutes(app); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/create-room", nil))
	if err != nil {
		t.Fatal(err)
	}
	var ticket map[string]string
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &ticket); err != nil {
		t.Fatalf("invalid json %s: %v", body, err)
	}
	for _, key := range []string{"roomId", "clientId", "websocket_url", "signaling_server"} {
		if ticket[key] == "" {
			t.Errorf("missing %s in %s", key, body)
		}
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/network-info", nil))
	if err != nil {
		t.Fatal(err)
	}
	var info providers.NetworkInfo
	body, _ = io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("invalid json %s: %v", body, err)
	}
	if len(info.LocalIPs) != 2 || info.Mode != config.ModeLocal {
		t.Errorf("unexpected network info: %s", body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/ice-servers", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "stun:stun.l.google.com:19302") {
		t.Errorf("unexpected ice servers: %s", body)
	}
}

func TestInitializeRejectsBadConfig(t *testing.T) {
	tests := map[string]*config.Config{
		"bad scheme":     {ICEServers: []config.ICEServer{{URLs: []string{"udp://1.2.3.4"}}}},
		"no urls":        {ICEServers: []config.ICEServer{{}}},
		"turn anonymous": {ICEServers: []config.ICEServer{{URLs: []string{"turn:turn.example.com:3478"}}}},
		"bad public url": {PublicWSURL: "http://example.com"},
	}
	for name, cfg := range tests {
		s := NewService()
		if err := s.Initialize(context.Background(), providers.NewRegistry(nil, logger.Discard(), cfg)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

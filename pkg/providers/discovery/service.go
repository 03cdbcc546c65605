package discovery

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/tphan267/mirrorcast-signal/pkg/config"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
	"github.com/tphan267/mirrorcast-signal/pkg/utils"
)

// Service tells clients how to reach the signaling socket and hands out
// room ids. It holds no room state.
type Service struct {
	cfg        *config.Config
	logger     *logger.Logger
	iceServers []webrtc.ICEServer

	// localIPs is swapped in tests
	localIPs func() ([]string, error)
}

// NewService creates a new discovery service
func NewService() *Service {
	return &Service{
		localIPs: func() ([]string, error) { return utils.GetLocalIPs(true) },
	}
}

// Name returns the service name
func (s *Service) Name() string {
	return "discovery"
}

// Initialize validates the configured ICE servers
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	s.cfg = registry.Config()
	s.logger = registry.Logger().Named("discovery")
	if s.cfg == nil {
		return fmt.Errorf("discovery requires a configuration")
	}

	if s.cfg.PublicWSURL != "" {
		u, err := url.Parse(s.cfg.PublicWSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("public_ws_url must be a ws:// or wss:// URL, got %q", s.cfg.PublicWSURL)
		}
	}

	servers, err := toICEServers(s.cfg.ICEServers)
	if err != nil {
		return err
	}
	s.iceServers = servers

	s.logger.Info("Advertising %s with %d ICE server(s)", s.websocketURL(), len(s.iceServers))
	return nil
}

// IsRunnable returns false, discovery only answers requests
func (s *Service) IsRunnable() bool {
	return false
}

// Start is not used for discovery service
func (s *Service) Start(ctx context.Context) error {
	return nil
}

// Stop is a no-op
func (s *Service) Stop(ctx context.Context) error {
	return nil
}

// RegisterAPIRoutes registers the discovery endpoints
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	router.Get("/network-info", s.handleNetworkInfo)
	router.Post("/create-room", s.handleCreateRoom)
	router.Get("/ice-servers", s.handleICEServers)
	return nil
}

// CreateRoom issues a fresh room id and client id
func (s *Service) CreateRoom() providers.RoomTicket {
	ticket := providers.RoomTicket{
		RoomID:          utils.GenerateRoomID(),
		ClientID:        utils.GenerateClientID(),
		WebSocketURL:    s.websocketURL(),
		SignalingServer: utils.JoinHostPort(s.cfg.Host, s.cfg.WSPort),
	}
	s.logger.Info("Issued room %s to client %s", ticket.RoomID, utils.MaskID(ticket.ClientID))
	return ticket
}

// NetworkInfo describes where the signaling socket can be reached
func (s *Service) NetworkInfo() providers.NetworkInfo {
	ips, err := s.localIPs()
	if err != nil {
		s.logger.Debug("No local addresses: %v", err)
		ips = []string{}
	}
	return providers.NetworkInfo{
		LocalIPs:      ips,
		WebSocketURL:  s.websocketURL(),
		ServerAddress: utils.JoinHostPort(s.cfg.Host, s.cfg.WSPort),
		Mode:          s.cfg.Mode,
	}
}

// ICEServers lists the STUN/TURN servers clients should use
func (s *Service) ICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(s.iceServers))
	copy(out, s.iceServers)
	return out
}

// websocketURL resolves the advertised socket address: an explicit public URL
// wins, dev mode stays on localhost, anything else uses the first LAN IPv4.
func (s *Service) websocketURL() string {
	if s.cfg.PublicWSURL != "" {
		return s.cfg.PublicWSURL
	}
	host := "localhost"
	if !s.cfg.IsDev() && s.cfg.Host != "localhost" && s.cfg.Host != "127.0.0.1" {
		if ips, err := s.localIPs(); err == nil && len(ips) > 0 {
			host = ips[0]
		}
	}
	return "ws://" + utils.JoinHostPort(host, s.cfg.WSPort)
}

func toICEServers(entries []config.ICEServer) ([]webrtc.ICEServer, error) {
	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		if len(entry.URLs) == 0 {
			return nil, fmt.Errorf("ice_servers[%d]: no urls", i)
		}
		for _, raw := range entry.URLs {
			uri, err := stun.ParseURI(raw)
			if err != nil {
				return nil, fmt.Errorf("ice_servers[%d]: invalid url %q: %w", i, raw, err)
			}
			if (uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS) && entry.Username == "" {
				return nil, fmt.Errorf("ice_servers[%d]: turn server %q needs a username", i, raw)
			}
		}

		server := webrtc.ICEServer{
			URLs:     entry.URLs,
			Username: entry.Username,
		}
		if entry.Credential != "" {
			server.Credential = entry.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func (s *Service) handleNetworkInfo(c *fiber.Ctx) error {
	return c.JSON(s.NetworkInfo())
}

func (s *Service) handleCreateRoom(c *fiber.Ctx) error {
	return c.JSON(s.CreateRoom())
}

func (s *Service) handleICEServers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"iceServers": s.ICEServers()})
}

// Verify that Service implements both Service and DiscoveryProvider interfaces
var _ providers.Service = (*Service)(nil)
var _ providers.DiscoveryProvider = (*Service)(nil)

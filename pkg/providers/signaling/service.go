package signaling

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
	"github.com/tphan267/mirrorcast-signal/pkg/signaling"
)

// Service runs the signaling hub and its WebSocket listener
type Service struct {
	hub      *signaling.Hub
	listener *signaling.Listener
	ln       net.Listener
	logger   *logger.Logger

	stopping atomic.Bool
	started  atomic.Bool
	done     chan struct{}
}

// NewService creates a new signaling service
func NewService() *Service {
	return &Service{
		done: make(chan struct{}),
	}
}

// Name returns the service name
func (s *Service) Name() string {
	return "signaling"
}

// Initialize builds the hub and binds the WebSocket port. A bind failure is
// returned here so startup fails before anything is served.
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	cfg := registry.Config()
	if cfg == nil {
		return fmt.Errorf("signaling requires a configuration")
	}
	s.logger = registry.Logger().Named("signaling")

	opts := signaling.HubOptions{
		Logger:         s.logger,
		StatsInterval:  cfg.StatsInterval,
		StatusInterval: cfg.StatusInterval,
	}
	if sink, ok := registry.GetEventSink(); ok {
		opts.Events = sink
	}
	s.hub = signaling.NewHub(opts)
	s.listener = signaling.NewListener(s.hub, signaling.ListenerOptions{
		Logger:     s.logger.Named("ws"),
		ReadLimit:  cfg.ReadLimit,
		SendBuffer: cfg.SendBuffer,
	})

	ln, err := net.Listen("tcp", cfg.WSAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.WSAddr(), err)
	}
	s.ln = ln
	return nil
}

// IsRunnable returns true
func (s *Service) IsRunnable() bool {
	return true
}

// Start runs the hub and serves WebSocket upgrades until Stop
func (s *Service) Start(ctx context.Context) error {
	s.started.Store(true)
	defer close(s.done)

	hubCtx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	go func() { hubDone <- s.hub.Run(hubCtx) }()

	serveErr := s.listener.Serve(s.ln)

	cancel()
	if err := <-hubDone; err != nil {
		s.logger.Error("Hub stopped with error: %v", err)
	}
	if serveErr != nil && !s.stopping.Load() {
		return serveErr
	}
	return nil
}

// Stop closes every socket, then stops the hub
func (s *Service) Stop(ctx context.Context) error {
	s.stopping.Store(true)
	if s.listener == nil {
		return nil
	}

	err := s.listener.Shutdown(ctx)
	// Serve may not have been reached yet
	_ = s.ln.Close()

	if !s.started.Load() {
		return err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// RegisterAPIRoutes registers nothing: hub state is served through the core
// app by the API server
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	return nil
}

// Stats returns a snapshot of hub counters
func (s *Service) Stats(ctx context.Context) (signaling.Stats, error) {
	return s.hub.Stats(ctx)
}

// Rooms returns a snapshot of live rooms
func (s *Service) Rooms(ctx context.Context) ([]signaling.RoomInfo, error) {
	return s.hub.Rooms(ctx)
}

// Addr is the bound WebSocket address
func (s *Service) Addr() net.Addr {
	return s.ln.Addr()
}

// Verify that Service implements both Service and SignalingProvider interfaces
var _ providers.Service = (*Service)(nil)
var _ providers.SignalingProvider = (*Service)(nil)

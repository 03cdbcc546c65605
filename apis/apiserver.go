package apis

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tphan267/mirrorcast-signal/pkg/api"
	"github.com/tphan267/mirrorcast-signal/pkg/core"
	applog "github.com/tphan267/mirrorcast-signal/pkg/logger"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
	"github.com/tphan267/mirrorcast-signal/pkg/signaling"
)

// ApiServer is the discovery and status HTTP server using Fiber
type ApiServer struct {
	app       *fiber.App
	coreApp   core.App
	providers *providers.Registry
}

// New creates a new HTTP server with the given service registry
func New(p *providers.Registry) (*ApiServer, error) {
	app := fiber.New(fiber.Config{
		AppName:               "MirrorCast Signal",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	s := &ApiServer{
		app:       app,
		coreApp:   core.NewMainApp(p),
		providers: p,
	}

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *ApiServer) setupMiddleware() {
	s.app.Use(recover.New())
	// request logging only when debugging
	if s.providers.Logger().Level() <= applog.DebugLevel {
		s.app.Use(logger.New())
	}
	// Clients are native apps and local tools on any origin
	s.app.Use(cors.New())
}

func (s *ApiServer) setupRoutes() error {
	s.app.Get("/health", s.handleHealth)

	apiGroup := s.app.Group("/api")
	apiGroup.Get("/stats", s.handleStats)
	apiGroup.Get("/rooms", s.handleRooms)

	return s.providers.RegisterAllRoutes(s.app)
}

// App returns the underlying Fiber app for route registration
func (s *ApiServer) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server
func (s *ApiServer) Start(addr string) error {
	s.providers.Logger().Info("Discovery API listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *ApiServer) Shutdown(ctx context.Context) error {
	s.providers.Logger().Info("Server shutdown requested")
	return s.app.ShutdownWithContext(ctx)
}

// handleHealth handles health checks. The body is a bare object so simple
// LAN probes can read it without unwrapping an envelope.
func (s *ApiServer) handleHealth(c *fiber.Ctx) error {
	health, err := s.coreApp.Health(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(health)
}

// handleStats returns hub counters and persisted session totals
func (s *ApiServer) handleStats(c *fiber.Ctx) error {
	stats, err := s.coreApp.Stats(c.Context())
	if err != nil {
		return err
	}
	return api.SuccessResp(c, stats, api.NowMeta())
}

// handleRooms lists live rooms
func (s *ApiServer) handleRooms(c *fiber.Ctx) error {
	rooms, err := s.coreApp.Rooms(c.Context())
	if err != nil {
		return err
	}
	return api.SuccessResp(c, fiber.Map{
		"count": len(rooms),
		"rooms": rooms,
	}, api.NowMeta())
}

// customErrorHandler handles errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	} else if errors.Is(err, signaling.ErrHubStopped) {
		code = fiber.StatusServiceUnavailable
	}

	return api.ErrorResp(c, api.ApiError{
		Status:  code,
		Message: err.Error(),
	})
}

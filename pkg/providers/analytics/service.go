package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tphan267/mirrorcast-signal/pkg/api"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
	"github.com/tphan267/mirrorcast-signal/pkg/models"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
	"github.com/tphan267/mirrorcast-signal/pkg/signaling"
	"github.com/tphan267/mirrorcast-signal/pkg/storage/repositories"
	"github.com/tphan267/mirrorcast-signal/pkg/utils"
)

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
)

// ErrQueueFull is returned by Track when the event queue has no room.
var ErrQueueFull = errors.New("analytics queue full")

// Service records room lifecycle events. Events are queued without blocking
// and written to the session_events table in batches by Start.
type Service struct {
	repo   *repositories.EventRepository
	logger *logger.Logger

	queue         chan *models.SessionEvent
	stop          chan struct{}
	done          chan struct{}
	stopOnce      sync.Once
	batchSize     int
	flushInterval time.Duration

	queued  atomic.Int64
	written atomic.Int64
	dropped atomic.Int64
}

// NewService creates a new analytics service
func NewService() *Service {
	return &Service{
		queue:         make(chan *models.SessionEvent, defaultQueueSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        logger.Discard(),
	}
}

// Name returns the service name
func (s *Service) Name() string {
	return "analytics"
}

// Initialize sets up the service
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	s.logger = registry.Logger().Named("analytics")
	if db := registry.DB(); db != nil {
		s.repo = db.EventRepo()
	} else {
		s.logger.Warn("No database configured, session events will not be persisted")
	}
	return nil
}

// IsRunnable returns true: events are flushed by a background writer
func (s *Service) IsRunnable() bool {
	return true
}

// Start drains the event queue until Stop is called or ctx ends
func (s *Service) Start(ctx context.Context) error {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]*models.SessionEvent, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.write(batch)
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-s.queue:
			batch = append(batch, ev)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stop:
			s.drain(&batch)
			flush()
			return nil
		case <-ctx.Done():
			s.drain(&batch)
			flush()
			return nil
		}
	}
}

func (s *Service) drain(batch *[]*models.SessionEvent) {
	for {
		select {
		case ev := <-s.queue:
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}

func (s *Service) write(batch []*models.SessionEvent) {
	if s.repo == nil {
		return
	}
	if err := s.repo.CreateBatch(batch); err != nil {
		s.logger.Error("Failed to persist %d session events: %v", len(batch), err)
		return
	}
	s.written.Add(int64(len(batch)))
}

// Stop flushes pending events and waits for the writer to exit
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterAPIRoutes registers analytics-related routes
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	group := router.Group("/api/analytics")
	group.Get("/", s.handleSummary)
	group.Get("/rooms/:id", s.handleRoomHistory)
	return nil
}

// Publish queues a hub event. It never blocks; when the queue is full the
// event is dropped.
func (s *Service) Publish(ev signaling.SessionEvent) {
	role := ""
	if ev.Role != signaling.RoleUnassigned {
		role = ev.Role.String()
	}
	if err := s.enqueue(&models.SessionEvent{
		RoomID:     ev.RoomID,
		Kind:       string(ev.Kind),
		Role:       role,
		ClientHash: utils.HashKey(ev.ClientID),
		CreatedAt:  ev.At,
	}); err != nil {
		s.logger.Warn("Dropping %s event for room %s: %v", ev.Kind, ev.RoomID, err)
	}
}

// Track records an analytics event
func (s *Service) Track(ctx context.Context, event providers.Event) error {
	if event.Type == "" {
		return errors.New("event type is required")
	}
	return s.enqueue(&models.SessionEvent{
		RoomID:     event.RoomID,
		Kind:       event.Type,
		Role:       event.Role,
		ClientHash: utils.HashKey(event.ClientID),
		CreatedAt:  event.Timestamp,
	})
}

func (s *Service) enqueue(ev *models.SessionEvent) error {
	select {
	case <-s.stop:
		s.dropped.Add(1)
		return errors.New("analytics stopped")
	default:
	}
	select {
	case s.queue <- ev:
		s.queued.Add(1)
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// GetMetrics retrieves analytics metrics based on query
func (s *Service) GetMetrics(ctx context.Context, query providers.MetricsQuery) (*providers.MetricsResult, error) {
	data := map[string]interface{}{
		"queued":  s.queued.Load(),
		"written": s.written.Load(),
		"dropped": s.dropped.Load(),
	}
	if s.repo == nil {
		return &providers.MetricsResult{Data: data}, nil
	}

	counts, err := s.repo.CountByKind(query.Since)
	if err != nil {
		return nil, err
	}

	typeFilter := make(map[string]bool)
	for _, t := range query.EventTypes {
		typeFilter[t] = true
	}

	var total int64
	byKind := make(map[string]int64, len(counts))
	for kind, n := range counts {
		if len(typeFilter) > 0 && !typeFilter[kind] {
			continue
		}
		byKind[kind] = n
		total += n
	}
	data["events"] = byKind

	paired, err := s.repo.CountRooms(string(signaling.EventPaired))
	if err != nil {
		return nil, err
	}
	data["paired_rooms"] = paired

	return &providers.MetricsResult{
		Data:  data,
		Count: total,
	}, nil
}

// History returns persisted events for one room
func (s *Service) History(ctx context.Context, roomID string) ([]*models.SessionEvent, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ByRoom(roomID)
}

func (s *Service) handleSummary(c *fiber.Ctx) error {
	query := providers.MetricsQuery{}
	if kinds := c.Query("kinds"); kinds != "" {
		query.EventTypes = strings.Split(kinds, ",")
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return api.ErrorBadRequestResp(c, "since must be an RFC3339 timestamp")
		}
		query.Since = t
	}

	result, err := s.GetMetrics(c.Context(), query)
	if err != nil {
		return err
	}
	result.Data["total"] = result.Count
	return api.SuccessResp(c, result.Data, api.NowMeta())
}

func (s *Service) handleRoomHistory(c *fiber.Ctx) error {
	events, err := s.History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return api.ErrorNotFoundResp(c, "no events for room")
	}
	return api.SuccessResp(c, events)
}

// Verify that Service implements the provider interfaces
var _ providers.Service = (*Service)(nil)
var _ providers.AnalyticsProvider = (*Service)(nil)
var _ signaling.EventSink = (*Service)(nil)

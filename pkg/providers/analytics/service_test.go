package analytics

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
	"github.com/tphan267/mirrorcast-signal/pkg/models"
	"github.com/tphan267/mirrorcast-signal/pkg/providers"
	"github.com/tphan267/mirrorcast-signal/pkg/signaling"
	"github.com/tphan267/mirrorcast-signal/pkg/storage"
)

func newTestService(t *testing.T) (*Service, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "analytics.db"), logger.Discard())
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	s := NewService()
	if err := s.Initialize(context.Background(), providers.NewRegistry(store, logger.Discard(), nil)); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s, store
}

func runService(t *testing.T, s *Service) func() {
	t.Helper()
	go func() { _ = s.Start(context.Background()) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	}
}

func TestPublishPersistsOnStop(t *testing.T) {
	s, store := newTestService(t)
	stop := runService(t, s)

	at := time.Now()
	s.Publish(signaling.SessionEvent{Kind: signaling.EventJoined, RoomID: "R1", Role: signaling.RoleReceiver, ClientID: "display", At: at})
	s.Publish(signaling.SessionEvent{Kind: signaling.EventJoined, RoomID: "R1", Role: signaling.RoleSender, ClientID: "phone", At: at})
	s.Publish(signaling.SessionEvent{Kind: signaling.EventPaired, RoomID: "R1", Role: signaling.RoleSender, At: at})
	s.Publish(signaling.SessionEvent{Kind: signaling.EventRoomClosed, RoomID: "R1", At: at})
	stop()

	events, err := store.EventRepo().ByRoom("R1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[3].Role != "" {
		t.Errorf("room-closed should carry no role, got %q", events[3].Role)
	}

	result, err := s.GetMetrics(context.Background(), providers.MetricsQuery{EventTypes: []string{"joined"}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Count != 2 {
		t.Errorf("expected 2 joined events, got %d", result.Count)
	}
	if result.Data["paired_rooms"] != int64(1) {
		t.Errorf("expected 1 paired room, got %v", result.Data["paired_rooms"])
	}
	if result.Data["written"] != int64(4) {
		t.Errorf("expected 4 written, got %v", result.Data["written"])
	}

	// publishing after stop drops instead of blocking
	s.Publish(signaling.SessionEvent{Kind: signaling.EventJoined, RoomID: "R2"})
	if s.dropped.Load() != 1 {
		t.Errorf("expected 1 dropped event, got %d", s.dropped.Load())
	}
}

func TestQueueFullDrops(t *testing.T) {
	s := NewService()
	s.queue = make(chan *models.SessionEvent, 1)

	if err := s.Track(context.Background(), providers.Event{Type: "joined", RoomID: "R"}); err != nil {
		t.Fatalf("first event should fit: %v", err)
	}
	if err := s.Track(context.Background(), providers.Event{Type: "joined", RoomID: "R"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := s.Track(context.Background(), providers.Event{}); err == nil {
		t.Fatal("expected error for empty event type")
	}

	done := make(chan struct{})
	go func() {
		s.Publish(signaling.SessionEvent{Kind: signaling.EventPaired, RoomID: "R"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	if s.dropped.Load() != 2 {
		t.Errorf("expected 2 dropped events, got %d", s.dropped.Load())
	}
}

func TestRoutes(t *testing.T) {
	s, _ := newTestService(t)
	stop := runService(t, s)
	s.Publish(signaling.SessionEvent{Kind: signaling.EventJoined, RoomID: "ROOM1", Role: signaling.RoleSender, At: time.Now()})
	stop()

	app := fiber.New()
	if err := s.RegisterAPIRoutes(app); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/analytics/rooms/ROOM1", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"kind":"joined"`) {
		t.Errorf("unexpected history response %d: %s", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/analytics/rooms/NOPE", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("expected 404 for unknown room, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/analytics?since=yesterday", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400 for bad since, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/analytics?kinds=joined", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"total":1`) {
		t.Errorf("unexpected summary: %s", body)
	}
}

package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
)

const defaultQueueSize = 256

// HubOptions configures a Hub instance.
type HubOptions struct {
	Logger *logger.Logger
	// Events receives room lifecycle events (optional).
	Events EventSink
	// StatsInterval between statistics log lines; zero disables them.
	StatsInterval time.Duration
	// StatusInterval between active-room dumps; zero disables them.
	StatusInterval time.Duration
	// QueueSize of the inbound operation queue.
	QueueSize int
}

// Stats is a snapshot of hub counters.
type Stats struct {
	ActiveRooms       int       `json:"activeRooms"`
	ActiveConnections int       `json:"activeConnections"`
	TotalConnections  int64     `json:"totalConnections"`
	SuccessfulPairs   int64     `json:"successfulPairs"`
	Errors            int64     `json:"errors"`
	StartedAt         time.Time `json:"startedAt"`
	UptimeSeconds     int64     `json:"uptimeSeconds"`
}

type opKind int

const (
	opConnect opKind = iota
	opInbound
	opDisconnect
	opQuery
)

type op struct {
	kind   opKind
	conn   *Connection
	connID string
	data   []byte
	cause  error
	query  func()
}

// Hub is the single owner of the room registry and the connection map. All
// transport events are queued to one goroutine (Run) and handled to
// completion in arrival order, so no handler needs a lock.
type Hub struct {
	registry *Registry
	conns    map[string]*Connection

	ops      chan op
	done     chan struct{}
	stopOnce sync.Once

	logger         *logger.Logger
	events         EventSink
	now            func() time.Time
	statsInterval  time.Duration
	statusInterval time.Duration

	startedAt        time.Time
	totalConnections int64
	successfulPairs  int64
	errors           int64
}

// NewHub builds a Hub. Call Run to start processing.
func NewHub(opts HubOptions) *Hub {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("SIGNAL")
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Hub{
		registry:       NewRegistry(),
		conns:          make(map[string]*Connection),
		ops:            make(chan op, queueSize),
		done:           make(chan struct{}),
		logger:         log,
		events:         opts.Events,
		now:            time.Now,
		statsInterval:  opts.StatsInterval,
		statusInterval: opts.StatusInterval,
		startedAt:      time.Now(),
	}
}

// Run processes queued operations until ctx is cancelled. On return every
// remaining connection is closed and the hub rejects further work.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	var statsC, statusC <-chan time.Time
	if h.statsInterval > 0 {
		t := time.NewTicker(h.statsInterval)
		defer t.Stop()
		statsC = t.C
	}
	if h.statusInterval > 0 {
		t := time.NewTicker(h.statusInterval)
		defer t.Stop()
		statusC = t.C
	}

	h.logger.Info("Signaling hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Signaling hub stopping")
			h.logStats(true)
			return nil
		case o := <-h.ops:
			h.process(o)
		case <-statsC:
			h.logStats(false)
		case <-statusC:
			h.logActiveRooms()
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)
		for id, c := range h.conns {
			c.State = StateClosed
			c.sink.Close()
			delete(h.conns, id)
		}
	})
}

// Connect registers a new transport connection and returns its id. Ids are
// assigned here so the caller can start delivering frames immediately; the
// queue guarantees registration is handled first.
func (h *Hub) Connect(sink Sink, meta ConnMeta) (string, error) {
	c := &Connection{
		ID:          uuid.NewString(),
		Role:        RoleUnassigned,
		State:       StateUnjoined,
		RemoteAddr:  meta.RemoteAddr,
		DeviceType:  detectDeviceType(meta.UserAgent),
		ConnectedAt: time.Now(),
		sink:        sink,
	}
	if err := h.submit(context.Background(), op{kind: opConnect, conn: c}); err != nil {
		return "", err
	}
	return c.ID, nil
}

// Deliver queues one inbound frame from connID.
func (h *Hub) Deliver(connID string, data []byte) error {
	return h.submit(context.Background(), op{kind: opInbound, connID: connID, data: data})
}

// Disconnect queues the teardown of connID. cause is nil for a clean close.
func (h *Hub) Disconnect(connID string, cause error) error {
	return h.submit(context.Background(), op{kind: opDisconnect, connID: connID, cause: cause})
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.query(ctx, func() { reply <- h.snapshotStats() }); err != nil {
		return Stats{}, err
	}
	return awaitReply(ctx, h.done, reply)
}

// Rooms returns a snapshot of live rooms.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	reply := make(chan []RoomInfo, 1)
	if err := h.query(ctx, func() { reply <- h.registry.Snapshot() }); err != nil {
		return nil, err
	}
	return awaitReply(ctx, h.done, reply)
}

func awaitReply[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-done:
		return zero, ErrHubStopped
	}
}

func (h *Hub) query(ctx context.Context, fn func()) error {
	return h.submit(ctx, op{kind: opQuery, query: fn})
}

func (h *Hub) submit(ctx context.Context, o op) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.ops <- o:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) process(o op) {
	defer func() {
		if r := recover(); r != nil {
			h.errors++
			h.logger.Error("Recovered from panic while handling operation %d: %v", o.kind, r)
		}
	}()

	switch o.kind {
	case opConnect:
		h.handleConnect(o.conn)
	case opInbound:
		c, ok := h.conns[o.connID]
		if !ok {
			h.logger.Debug("Dropping frame from unknown connection %s", o.connID)
			return
		}
		h.handleInbound(c, o.data)
	case opDisconnect:
		h.handleDisconnect(o.connID, o.cause)
	case opQuery:
		o.query()
	}
}

func (h *Hub) snapshotStats() Stats {
	return Stats{
		ActiveRooms:       h.registry.Len(),
		ActiveConnections: len(h.conns),
		TotalConnections:  h.totalConnections,
		SuccessfulPairs:   h.successfulPairs,
		Errors:            h.errors,
		StartedAt:         h.startedAt,
		UptimeSeconds:     int64(h.now().Sub(h.startedAt) / time.Second),
	}
}

// send is best-effort: closed connections and full buffers drop the frame.
func (h *Hub) send(c *Connection, msg Message) {
	if !c.open() {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal %s for %s: %v", msg.Type, c.label(), err)
		return
	}
	if !c.sink.Send(data) {
		h.logger.Warn("Send buffer full for %s, dropping %s", c.label(), msg.Type)
	}
}

func (h *Hub) sendError(c *Connection, err error) {
	h.errors++

	text := err.Error()
	kind := "Error"
	var se *Error
	if errors.As(err, &se) {
		text = se.Message
		kind = se.Kind.String()
	}
	h.logger.Warn("%s from %s: %s", kind, c.label(), text)
	h.send(c, errorMessage(text, h.now()))
}

func (h *Hub) publish(kind EventKind, roomID string, role Role, clientID string) {
	if h.events == nil {
		return
	}
	h.events.Publish(SessionEvent{
		Kind:     kind,
		RoomID:   roomID,
		Role:     role,
		ClientID: clientID,
		At:       h.now(),
	})
}

func (h *Hub) logStats(force bool) {
	if !force && len(h.conns) == 0 && h.registry.Len() == 0 {
		return
	}
	s := h.snapshotStats()
	h.logger.Info("Stats: rooms=%d connections=%d total_connections=%d successful_pairs=%d errors=%d uptime=%s",
		s.ActiveRooms, s.ActiveConnections, s.TotalConnections, s.SuccessfulPairs, s.Errors,
		time.Duration(s.UptimeSeconds)*time.Second)
}

func (h *Hub) logActiveRooms() {
	if len(h.conns) == 0 {
		return
	}
	rooms := h.registry.Snapshot()
	if len(rooms) == 0 {
		h.logger.Info("Active connections: %d, no active rooms", len(h.conns))
		return
	}
	for _, r := range rooms {
		switch {
		case r.Complete:
			h.logger.Info("Room %s (%ds old): sender and receiver connected, ready for WebRTC", r.RoomID, r.AgeSeconds)
		case r.Sender:
			h.logger.Info("Room %s (%ds old): waiting for receiver", r.RoomID, r.AgeSeconds)
		default:
			h.logger.Info("Room %s (%ds old): waiting for sender", r.RoomID, r.AgeSeconds)
		}
	}
}

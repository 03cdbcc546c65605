package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tphan267/mirrorcast-signal/pkg/logger"
)

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func (f *fakeSink) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.full {
		return false
	}
	f.frames = append(f.frames, data)
	return true
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSink) messages(t *testing.T) []Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, 0, len(f.frames))
	for _, frame := range f.frames {
		var m Message
		require.NoError(t, json.Unmarshal(frame, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeSink) last(t *testing.T) Message {
	t.Helper()
	msgs := f.messages(t)
	require.NotEmpty(t, msgs, "no frames sent")
	return msgs[len(msgs)-1]
}

func (f *fakeSink) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type recordingEvents struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (r *recordingEvents) Publish(ev SessionEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingEvents) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestHub(events EventSink) *Hub {
	return NewHub(HubOptions{Logger: logger.Discard(), Events: events})
}

// connect registers a fake connection directly, bypassing the queue.
func connect(h *Hub, id string) (*Connection, *fakeSink) {
	sink := &fakeSink{}
	c := &Connection{ID: id, State: StateUnjoined, DeviceType: "unknown", sink: sink}
	h.handleConnect(c)
	return c, sink
}

func deliver(t *testing.T, h *Hub, c *Connection, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	h.handleInbound(c, data)
}

func join(t *testing.T, h *Hub, c *Connection, roomID, role string) {
	t.Helper()
	deliver(t, h, c, map[string]string{"type": TypeJoinRoom, "roomId": roomID, "role": role})
}

func TestHubRunServesQueries(t *testing.T) {
	h := newTestHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	sink := &fakeSink{}
	id, err := h.Connect(sink, ConnMeta{RemoteAddr: "10.0.0.2:5000", UserAgent: "okhttp/4.9"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, h.Deliver(id, []byte(`{"type":"join-room","roomId":"R1","role":"android"}`)))

	qctx, qcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer qcancel()

	stats, err := h.Stats(qctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ActiveConnections)
	require.Equal(t, 1, stats.ActiveRooms)
	require.Equal(t, int64(1), stats.TotalConnections)

	rooms, err := h.Rooms(qctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, "R1", rooms[0].RoomID)
	require.True(t, rooms[0].Sender)
	require.False(t, rooms[0].Receiver)

	msg := sink.last(t)
	require.Equal(t, TypeRoomJoined, msg.Type)
	require.Equal(t, "sender", msg.Role)

	require.NoError(t, h.Disconnect(id, nil))
	stats, err = h.Stats(qctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.ActiveConnections)
	require.Equal(t, 0, stats.ActiveRooms)

	cancel()
	require.NoError(t, <-done)
}

func TestHubConcurrentJoinsFillEachSlotOnce(t *testing.T) {
	h := newTestHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer qcancel()

	// Given 200 connections
	const n = 200
	roles := []string{"sender", "android", "receiver", "WINDOWS"}
	sinks := make([]*fakeSink, n)
	ids := make([]string, n)
	for i := range sinks {
		sinks[i] = &fakeSink{}
		id, err := h.Connect(sinks[i], ConnMeta{})
		require.NoError(t, err)
		ids[i] = id
	}

	// When they all race to join the same room
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			frame := `{"type":"join-room","roomId":"RACE","role":"` + roles[i%len(roles)] + `"}`
			errs <- h.Deliver(ids[i], []byte(frame))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Then exactly one sender and one receiver got in, and only they were paired
	stats, err := h.Stats(qctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.SuccessfulPairs)
	require.Equal(t, int64(n-2), stats.Errors)

	joined := map[string]int{}
	peerJoined := 0
	for _, sink := range sinks {
		for _, msg := range sink.messages(t) {
			switch msg.Type {
			case TypeRoomJoined:
				joined[msg.Role]++
			case TypePeerJoined:
				peerJoined++
			case TypeError:
				require.Contains(t, msg.Message, "Room already has a ")
			}
		}
	}
	require.Equal(t, map[string]int{"sender": 1, "receiver": 1}, joined)
	require.Equal(t, 2, peerJoined)

	// When everyone leaves
	for _, id := range ids {
		require.NoError(t, h.Disconnect(id, nil))
	}
	rooms, err := h.Rooms(qctx)
	require.NoError(t, err)
	require.Empty(t, rooms)

	// Then the same room id starts fresh
	late := &fakeSink{}
	lateID, err := h.Connect(late, ConnMeta{})
	require.NoError(t, err)
	require.NoError(t, h.Deliver(lateID, []byte(`{"type":"join-room","roomId":"RACE","role":"receiver"}`)))

	rooms, err = h.Rooms(qctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, "RACE", rooms[0].RoomID)
	require.True(t, rooms[0].Receiver)
	require.False(t, rooms[0].Sender)
	require.False(t, rooms[0].Complete)
	require.Equal(t, TypeRoomJoined, late.last(t).Type)

	cancel()
	require.NoError(t, <-done)
}

func TestHubStopClosesConnectionsAndRejectsWork(t *testing.T) {
	h := newTestHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	sink := &fakeSink{}
	id, err := h.Connect(sink, ConnMeta{})
	require.NoError(t, err)

	// a query round-trip guarantees the connect was processed
	_, err = h.Stats(context.Background())
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)
	require.True(t, sink.isClosed())

	_, err = h.Connect(&fakeSink{}, ConnMeta{})
	require.ErrorIs(t, err, ErrHubStopped)
	require.ErrorIs(t, h.Deliver(id, []byte(`{}`)), ErrHubStopped)
	_, err = h.Stats(context.Background())
	require.ErrorIs(t, err, ErrHubStopped)
}

func TestHubRecoversFromPanickingSink(t *testing.T) {
	h := newTestHub(nil)
	c := &Connection{ID: "p", State: StateUnjoined, sink: panicSink{}}
	h.handleConnect(c)

	require.NotPanics(t, func() {
		h.process(op{kind: opInbound, connID: "p", data: []byte(`{"type":"join-room","roomId":"R","role":"sender"}`)})
	})
	require.Equal(t, int64(1), h.snapshotStats().Errors)
}

type panicSink struct{}

func (panicSink) Send([]byte) bool { panic("boom") }
func (panicSink) Close()           {}

func TestDetectDeviceType(t *testing.T) {
	tests := map[string]string{
		"":                                "unknown",
		"Mozilla/5.0 (Linux; Android 14)": "android",
		"okhttp/4.12.0":                   "android",
		"Mozilla/5.0 (Windows NT 10.0)":   "windows",
		"Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0":         "chrome",
		"Mozilla/5.0 (Macintosh) Gecko/20100101 Firefox/121.0": "firefox",
		"Go-http-client/1.1":                                   "unknown",
	}
	for ua, want := range tests {
		require.Equal(t, want, detectDeviceType(ua), ua)
	}
}

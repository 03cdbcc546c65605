package signaling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisconnectNotifiesRemainingPeer(t *testing.T) {
	events := &recordingEvents{}
	h := newTestHub(events)
	recv, recvSink := connect(h, "r")
	send, sendSink := connect(h, "s")
	join(t, h, recv, "ABCD1234", "windows")
	join(t, h, send, "ABCD1234", "android")

	h.handleDisconnect(send.ID, nil)

	require.True(t, sendSink.isClosed())
	require.Equal(t, StateClosed, send.State)

	msg := recvSink.last(t)
	require.Equal(t, TypePeerDisconnected, msg.Type)
	require.Equal(t, "ABCD1234", msg.RoomID)
	require.Equal(t, "sender", msg.PeerRole)
	require.Equal(t, StateJoined, recv.State)

	room, ok := h.registry.Get("ABCD1234")
	require.True(t, ok)
	require.Nil(t, room.Slot(RoleSender))
	require.Same(t, recv, room.Slot(RoleReceiver))

	// a new sender can take the free slot and the pair forms again
	again, againSink := connect(h, "s2")
	join(t, h, again, "ABCD1234", "sender")
	require.Equal(t, TypePeerJoined, againSink.last(t).Type)
	require.Equal(t, int64(2), h.snapshotStats().SuccessfulPairs)

	h.handleDisconnect(recv.ID, errors.New("connection reset"))
	h.handleDisconnect(again.ID, nil)
	require.Zero(t, h.registry.Len())

	require.Equal(t, []EventKind{
		EventJoined, EventJoined, EventPaired,
		EventPeerDisconnected,
		EventJoined, EventPaired,
		EventPeerDisconnected,
		EventPeerDisconnected, EventRoomClosed,
	}, events.kinds())
}

func TestDisconnectLastMemberDeletesRoom(t *testing.T) {
	h := newTestHub(nil)
	c, _ := connect(h, "c")
	join(t, h, c, "R", "sender")
	require.Equal(t, 1, h.registry.Len())

	h.handleDisconnect(c.ID, nil)
	require.Zero(t, h.registry.Len())
	require.Zero(t, h.snapshotStats().ActiveConnections)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub(nil)
	recv, recvSink := connect(h, "r")
	send, _ := connect(h, "s")
	join(t, h, recv, "R", "receiver")
	join(t, h, send, "R", "sender")
	recvSink.reset()

	h.handleDisconnect(send.ID, nil)
	h.handleDisconnect(send.ID, nil)

	require.Len(t, recvSink.messages(t), 1)
	require.Equal(t, 1, h.snapshotStats().ActiveConnections)
}

func TestDisconnectUnjoinedTouchesNoRoom(t *testing.T) {
	h := newTestHub(nil)
	member, memberSink := connect(h, "m")
	join(t, h, member, "R", "sender")
	memberSink.reset()

	loose, looseSink := connect(h, "l")
	h.handleDisconnect(loose.ID, nil)

	require.True(t, looseSink.isClosed())
	require.Empty(t, memberSink.messages(t))
	require.Equal(t, 1, h.registry.Len())
}

func TestFramesAfterDisconnectAreIgnored(t *testing.T) {
	h := newTestHub(nil)
	c, sink := connect(h, "c")
	h.handleDisconnect(c.ID, nil)

	h.process(op{kind: opInbound, connID: c.ID, data: []byte(`{"type":"join-room","roomId":"R","role":"sender"}`)})
	require.Empty(t, sink.messages(t))
	require.Zero(t, h.registry.Len())
}

func TestTransportFailureCountsAsError(t *testing.T) {
	h := newTestHub(nil)
	dropped, _ := connect(h, "d")
	closed, _ := connect(h, "c")

	h.handleDisconnect(dropped.ID, errors.New("read: connection reset by peer"))
	h.handleDisconnect(closed.ID, nil)

	require.Equal(t, int64(1), h.snapshotStats().Errors)
	require.Zero(t, h.snapshotStats().ActiveConnections)
}

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatline/internal/core"
	"chatline/internal/domain"
	"chatline/internal/store/memstore"
)

// testConn is an in-memory core.Conn capturing everything sent to it.
type testConn struct {
	id     core.ConnID
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func newTestConn(id string) *testConn {
	return &testConn{id: core.ConnID(id)}
}

func (c *testConn) ID() core.ConnID { return c.id }

func (c *testConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("stale connection")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *testConn) Close() {}

// received decodes every captured envelope of the given event type.
func received[T any](t *testing.T, c *testConn, typ string) []T {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, f := range c.frames {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Type != typ {
			continue
		}
		var payload T
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		out = append(out, payload)
	}
	return out
}

func countEvents(t *testing.T, c *testConn, typ string) int {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Type == typ {
			n++
		}
	}
	return n
}

func newTestHub() (*Hub, *memstore.Store) {
	store := memstore.New()
	return New(store), store
}

// connect attaches a connection for the user and joins it to the rooms.
func connect(h *Hub, connID string, userID string, rooms ...domain.RoomID) *testConn {
	conn := newTestConn(connID)
	h.Attach(context.Background(), conn, domain.User{ID: domain.UserID(userID), Username: userID})
	if len(rooms) > 0 {
		h.JoinRooms(context.Background(), conn, rooms)
	}
	return conn
}

func TestRouteMessage_PersistsAndBroadcastsToAllDevices(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub()

	// Alice is connected twice, Bob once, all in r1.
	alice1 := connect(h, "c1", "alice", "r1")
	alice2 := connect(h, "c2", "alice", "r1")
	bob := connect(h, "c3", "bob", "r1")

	n, err := h.RouteMessage(context.Background(), alice1, MessageInput{RoomID: "r1", Content: "hi"})
	req.NoError(err)
	req.Equal(3, n)

	// Everyone gets it, the sender's other device included.
	for _, c := range []*testConn{alice1, alice2, bob} {
		msgs := received[domain.Message](t, c, core.EvtNewMessage)
		req.Len(msgs, 1)
		req.Equal(domain.RoomID("r1"), msgs[0].RoomID)
		req.Equal(domain.UserID("alice"), msgs[0].SenderID)
		req.Equal("hi", msgs[0].Content)
	}

	persisted, err := store.MessagesByRoom(context.Background(), "r1", 0)
	req.NoError(err)
	req.Len(persisted, 1)
	req.Equal(domain.UserID("alice"), persisted[0].SenderID)
}

func TestRouteMessage_LonelyRoomStillPersists(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub()

	alice := connect(h, "c1", "alice", "solo")

	n, err := h.RouteMessage(context.Background(), alice, MessageInput{RoomID: "solo", Content: "anyone?"})
	req.NoError(err)
	req.Equal(1, n) // only the sender's own connection

	persisted, err := store.MessagesByRoom(context.Background(), "solo", 0)
	req.NoError(err)
	req.Len(persisted, 1)
}

func TestRouteMessage_PersistenceFailureReportsToSenderOnly(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub()

	alice := connect(h, "c1", "alice", "r1")
	bob := connect(h, "c2", "bob", "r1")

	store.SetFailure(errors.New("store down"))
	_, err := h.RouteMessage(context.Background(), alice, MessageInput{RoomID: "r1", Content: "hi"})
	req.Error(err)

	req.Equal(1, countEvents(t, alice, core.EvtError))
	req.Zero(countEvents(t, bob, core.EvtError))
	req.Zero(countEvents(t, bob, core.EvtNewMessage))
}

func TestRouteMessage_StaleConnectionDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub()

	alice := connect(h, "c1", "alice", "r1")
	bob := connect(h, "c2", "bob", "r1")
	carol := connect(h, "c3", "carol", "r1")
	bob.fail = true

	n, err := h.RouteMessage(context.Background(), alice, MessageInput{RoomID: "r1", Content: "hi"})
	req.NoError(err)
	req.Equal(2, n)
	req.Equal(1, countEvents(t, carol, core.EvtNewMessage))
}

func TestRouteTyping_ExcludesSender(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub()

	conn1 := connect(h, "c1", "alice", "r1")
	conn2 := connect(h, "c2", "bob", "r1")

	h.RouteTyping(conn1, "r1", true)

	typing := received[core.UserTypingEvent](t, conn2, core.EvtUserTyping)
	req.Len(typing, 1)
	req.Equal(domain.UserID("alice"), typing[0].UserID)
	req.Zero(countEvents(t, conn1, core.EvtUserTyping))

	h.RouteTyping(conn1, "r1", false)
	req.Equal(1, countEvents(t, conn2, core.EvtUserStopTyping))
	req.Zero(countEvents(t, conn1, core.EvtUserStopTyping))
}

func TestJoinRooms_AnnouncesOnlineToPeersOnly(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub()

	bob := connect(h, "c1", "bob", "r1")
	alice := connect(h, "c2", "alice", "r1")

	statuses := received[core.UserStatusChangedEvent](t, bob, core.EvtUserStatusChanged)
	req.Len(statuses, 1)
	req.Equal(domain.UserID("alice"), statuses[0].UserID)
	req.Equal(StatusOnline, statuses[0].Status)

	// No self-notification.
	req.Zero(countEvents(t, alice, core.EvtUserStatusChanged))
}

func TestDetach_AnnouncesOfflineAndCleansMembership(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub()

	bob := connect(h, "c1", "bob", "r1")
	alice := connect(h, "c2", "alice", "r1", "r2")

	h.Detach(context.Background(), alice.ID())

	req.NotContains(h.rooms.MembersOf("r1"), domain.UserID("alice"))
	req.NotContains(h.rooms.MembersOf("r2"), domain.UserID("alice"))
	req.Empty(h.registry.Lookup("alice"))
	req.False(store.Online("alice"))

	statuses := received[core.UserStatusChangedEvent](t, bob, core.EvtUserStatusChanged)
	req.Len(statuses, 2) // online, then offline
	req.Equal(StatusOffline, statuses[1].Status)
}

func TestDetach_IsIdempotent(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub()

	alice := connect(h, "c1", "alice", "r1")
	h.Detach(context.Background(), alice.ID())
	req.NotPanics(func() {
		h.Detach(context.Background(), alice.ID())
	})
}

func TestDetach_OtherDeviceKeepsUserOnline(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub()

	alice1 := connect(h, "c1", "alice", "r1")
	_ = connect(h, "c2", "alice", "r1")
	bob := connect(h, "c3", "bob", "r1")

	h.Detach(context.Background(), alice1.ID())

	// Alice still has a live device in r1: member set intact, no
	// offline announcement.
	req.Contains(h.rooms.MembersOf("r1"), domain.UserID("alice"))
	req.True(store.Online("alice"))
	statuses := received[core.UserStatusChangedEvent](t, bob, core.EvtUserStatusChanged)
	for _, s := range statuses {
		req.NotEqual(StatusOffline, s.Status)
	}
}

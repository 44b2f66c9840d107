package core

import (
	"context"
	"testing"

	"github.com/parlorchat/parlor-server/internal/store"
)

func disconnect(hub *Hub, c *Client) {
	close(c.Commands)
	hub.Unregister(c)
}

func TestJoinDefaultRoomAlwaysSucceeds(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")

	conn := connect(t, hub, "c1", alice)
	defer disconnect(hub, conn)

	// No membership record exists for the default room; joining still works.
	conn.Commands <- &Command{Kind: CommandJoinRoom, Room: DefaultRoom}
	ev := mustEvent(t, conn.Events, EventJoinedRoom)
	if ev.Room != DefaultRoom || !ev.Success {
		t.Fatalf("unexpected join ack: %+v", ev)
	}
}

func TestJoinUnknownRoomYieldsRoomNotFound(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")

	conn := connect(t, hub, "c1", alice)
	defer disconnect(hub, conn)

	conn.Commands <- &Command{Kind: CommandJoinRoom, Room: "no-such-room"}
	ev := mustEvent(t, conn.Events, EventRoomError)
	if ev.Err == nil || ev.Err.Code != ErrCodeRoomNotFound {
		t.Fatalf("expected ROOM_NOT_FOUND, got %+v", ev)
	}
	if len(hub.RoomPresence("no-such-room")) != 0 {
		t.Fatal("failed join must not create a subscription")
	}
}

func TestJoinWithoutInviteYieldsNotInvited(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")
	bob := mustUser(t, st, "bob", "")
	mustRoom(t, st, "team", alice)

	conn := connect(t, hub, "c1", bob)
	defer disconnect(hub, conn)

	conn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
	ev := mustEvent(t, conn.Events, EventRoomError)
	if ev.Err == nil || ev.Err.Code != ErrCodeNotInvited {
		t.Fatalf("expected NOT_INVITED, got %+v", ev)
	}
}

func TestSendToRoomWithoutMembershipPersistsNothing(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")
	bob := mustUser(t, st, "bob", "")
	mustRoom(t, st, "team", alice)

	conn := connect(t, hub, "c1", bob)
	defer disconnect(hub, conn)

	conn.Commands <- &Command{Kind: CommandSendMessage, Room: "team", Text: "hi"}
	ev := mustEvent(t, conn.Events, EventRoomError)
	if ev.Err == nil || ev.Err.Code != ErrCodeNotInvited {
		t.Fatalf("expected NOT_INVITED, got %+v", ev)
	}
	if n := countMessages(t, st, "team"); n != 0 {
		t.Fatalf("store must be unchanged, found %d messages", n)
	}
}

func TestWhitespaceMessageRejectedBeforePersistence(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")

	conn := connect(t, hub, "c1", alice)
	defer disconnect(hub, conn)

	conn.Commands <- &Command{Kind: CommandSendMessage, Room: DefaultRoom, Text: "   "}
	ev := mustEvent(t, conn.Events, EventRoomError)
	if ev.Err == nil || ev.Err.Message != "Empty message" {
		t.Fatalf("expected empty-message error, got %+v", ev)
	}
	if n := countMessages(t, st, DefaultRoom); n != 0 {
		t.Fatalf("store must be unchanged, found %d messages", n)
	}
}

func TestMessageDeliveredOnlyToSubscribers(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")
	carol := mustUser(t, st, "carol", "")
	bob := mustUser(t, st, "bob", "")
	mustRoom(t, st, "team", alice, carol)

	aConn := connect(t, hub, "a1", alice)
	cConn := connect(t, hub, "c1", carol)
	bConn := connect(t, hub, "b1", bob)
	defer disconnect(hub, aConn)
	defer disconnect(hub, cConn)
	defer disconnect(hub, bConn)

	aConn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
	mustEvent(t, aConn.Events, EventJoinedRoom)
	cConn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
	mustEvent(t, cConn.Events, EventJoinedRoom)

	// Bob is not a member: his join is refused and he must never see "hi".
	bConn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
	bev := mustEvent(t, bConn.Events, EventRoomError)
	if bev.Err == nil || bev.Err.Code != ErrCodeNotInvited {
		t.Fatalf("expected NOT_INVITED for bob, got %+v", bev)
	}

	aConn.Commands <- &Command{Kind: CommandSendMessage, Room: "team", Text: "hi"}

	for _, conn := range []*Client{aConn, cConn} {
		ev := mustEvent(t, conn.Events, EventNewMessage)
		if ev.Message == nil || ev.Message.Text != "hi" || ev.Message.Room != "team" {
			t.Fatalf("unexpected message event: %+v", ev)
		}
		if ev.Message.ID == 0 || ev.Message.CreatedAt.IsZero() {
			t.Fatalf("broadcast record must be the persisted one: %+v", ev.Message)
		}
	}
	noEvent(t, bConn.Events, EventNewMessage)

	if n := countMessages(t, st, "team"); n != 1 {
		t.Fatalf("expected exactly one persisted message, got %d", n)
	}
}

func TestDefaultRoomDeliveryIsGlobal(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")
	bob := mustUser(t, st, "bob", "")

	aConn := connect(t, hub, "a1", alice)
	bConn := connect(t, hub, "b1", bob)
	defer disconnect(hub, aConn)
	defer disconnect(hub, bConn)

	aConn.Commands <- &Command{Kind: CommandSendMessage, Room: DefaultRoom, Text: "hello all"}

	for _, conn := range []*Client{aConn, bConn} {
		ev := mustEvent(t, conn.Events, EventNewMessage)
		if ev.Message.Text != "hello all" {
			t.Fatalf("unexpected message: %+v", ev.Message)
		}
	}
}

func TestRosterDeduplicatesConnectionsPerUser(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "Alice")
	bob := mustUser(t, st, "bob", "")

	a1 := connect(t, hub, "a1", alice)
	a2 := connect(t, hub, "a2", alice)
	observer := connect(t, hub, "b1", bob)
	defer disconnect(hub, observer)

	roster := hub.OnlineUsers()
	if len(roster) != 2 {
		t.Fatalf("expected 2 roster entries, got %+v", roster)
	}

	// First of Alice's connections closes: she stays online.
	disconnect(hub, a1)
	ev := mustEvent(t, observer.Events, EventOnlineUsers)
	if len(ev.Roster) != 2 {
		t.Fatalf("alice should still be listed, got %+v", ev.Roster)
	}

	// Last connection closes: she disappears from the roster broadcast.
	disconnect(hub, a2)
	ev = mustEvent(t, observer.Events, EventOnlineUsers)
	if len(ev.Roster) != 1 || ev.Roster[0].UserID != bob.ID {
		t.Fatalf("expected only bob online, got %+v", ev.Roster)
	}
}

func TestDisplayNameStableAcrossConnections(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice@example.com", "")

	// No claim, no stored name: derived from the username local part.
	a1 := connect(t, hub, "a1", alice)
	defer disconnect(hub, a1)

	roster := hub.OnlineUsers()
	if len(roster) != 1 || roster[0].DisplayName != "Alice" {
		t.Fatalf("expected derived name Alice, got %+v", roster)
	}

	// A second connection presenting a claim still gets the established name.
	a2 := NewClient("a2", alice.ID, alice.Username, "Other Name")
	hub.Register(context.Background(), a2)
	mustEvent(t, a2.Events, EventOnlineUsers)
	defer disconnect(hub, a2)

	if a2.DisplayName != "Alice" {
		t.Fatalf("expected stable display name, got %q", a2.DisplayName)
	}
}

func TestDoubleJoinIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")
	carol := mustUser(t, st, "carol", "")
	mustRoom(t, st, "team", alice, carol)

	aConn := connect(t, hub, "a1", alice)
	cConn := connect(t, hub, "c1", carol)
	defer disconnect(hub, aConn)
	defer disconnect(hub, cConn)

	cConn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
	mustEvent(t, cConn.Events, EventJoinedRoom)

	// Two joins in a row: two acks, one subscription, one arrival notice.
	aConn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
	aConn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
	mustEvent(t, aConn.Events, EventJoinedRoom)
	mustEvent(t, aConn.Events, EventJoinedRoom)

	mustEvent(t, cConn.Events, EventUserJoined)
	noEvent(t, cConn.Events, EventUserJoined)

	if n := len(hub.RoomPresence("team")); n != 2 {
		t.Fatalf("expected 2 subscribed users, got %d", n)
	}
}

func TestLeaveRoomNotifiesRemainingSubscribers(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "Alice")
	carol := mustUser(t, st, "carol", "")
	mustRoom(t, st, "team", alice, carol)

	aConn := connect(t, hub, "a1", alice)
	cConn := connect(t, hub, "c1", carol)
	defer disconnect(hub, aConn)
	defer disconnect(hub, cConn)

	for _, conn := range []*Client{aConn, cConn} {
		conn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
		mustEvent(t, conn.Events, EventJoinedRoom)
	}

	aConn.Commands <- &Command{Kind: CommandLeaveRoom, Room: "team"}
	ev := mustEvent(t, cConn.Events, EventUserLeft)
	if ev.UserID != alice.ID || ev.Room != "team" || ev.DisplayName != "Alice" {
		t.Fatalf("unexpected user-left: %+v", ev)
	}

	// Leaving is always permitted; leaving again is a no-op.
	aConn.Commands <- &Command{Kind: CommandLeaveRoom, Room: "team"}
	noEvent(t, cConn.Events, EventUserLeft)
}

func TestTypingForwardedToRoomExcludingSender(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "Alice")
	bob := mustUser(t, st, "bob", "")

	aConn := connect(t, hub, "a1", alice)
	bConn := connect(t, hub, "b1", bob)
	defer disconnect(hub, aConn)
	defer disconnect(hub, bConn)

	aConn.Commands <- &Command{Kind: CommandTyping, Room: DefaultRoom}

	ev := mustEvent(t, bConn.Events, EventTyping)
	if ev.Username != "Alice" || ev.Room != DefaultRoom {
		t.Fatalf("unexpected typing event: %+v", ev)
	}
	noEvent(t, aConn.Events, EventTyping)

	if n := countMessages(t, st, DefaultRoom); n != 0 {
		t.Fatal("typing must not be persisted")
	}
}

func TestRoomDeletedForceUnsubscribesEveryone(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")
	carol := mustUser(t, st, "carol", "")
	room := mustRoom(t, st, "team", alice, carol)

	aConn := connect(t, hub, "a1", alice)
	cConn := connect(t, hub, "c1", carol)
	defer disconnect(hub, aConn)
	defer disconnect(hub, cConn)

	for _, conn := range []*Client{aConn, cConn} {
		conn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
		mustEvent(t, conn.Events, EventJoinedRoom)
	}

	hub.RoomDeleted(room.ID, "team")

	for _, conn := range []*Client{aConn, cConn} {
		ev := mustEvent(t, conn.Events, EventRoomDeleted)
		if ev.RoomID != room.ID || ev.Room != "team" {
			t.Fatalf("unexpected room-deleted: %+v", ev)
		}
	}
	if len(hub.RoomPresence("team")) != 0 {
		t.Fatal("subscriber set should be empty after deletion")
	}
}

func TestMemberRemovedAdjustsBroadcastScope(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil)
	alice := mustUser(t, st, "alice", "")
	carol := mustUser(t, st, "carol", "Carol")
	room := mustRoom(t, st, "team", alice, carol)

	aConn := connect(t, hub, "a1", alice)
	cConn := connect(t, hub, "c1", carol)
	defer disconnect(hub, aConn)
	defer disconnect(hub, cConn)

	for _, conn := range []*Client{aConn, cConn} {
		conn.Commands <- &Command{Kind: CommandJoinRoom, Room: "team"}
		mustEvent(t, conn.Events, EventJoinedRoom)
	}

	hub.MemberRemoved(carol.ID, room.ID, "team")

	ev := mustEvent(t, aConn.Events, EventUserLeft)
	if ev.UserID != carol.ID || ev.DisplayName != "Carol" || ev.RoomID != room.ID {
		t.Fatalf("unexpected user-left: %+v", ev)
	}

	presence := hub.RoomPresence("team")
	if len(presence) != 1 || presence[0].UserID != alice.ID {
		t.Fatalf("carol should be unsubscribed, got %+v", presence)
	}
}

// slowDirectory stalls room lookups until released, so a test can interleave
// a disconnect with a command whose directory call is still in flight.
type slowDirectory struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (s *slowDirectory) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.Store.GetRoomByName(ctx, name)
}

func TestDisconnectDuringRoomLookupDropsLateEvents(t *testing.T) {
	st := newTestStore(t)
	slow := &slowDirectory{Store: st, entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(slow, nil)
	alice := mustUser(t, st, "alice", "")

	conn := connect(t, hub, "a1", alice)
	conn.Commands <- &Command{Kind: CommandJoinRoom, Room: "no-such-room"}
	conn.Commands <- &Command{Kind: CommandJoinRoom, Room: "no-such-room"}
	<-slow.entered

	// The connection drops while its session is still inside the lookup.
	hub.Unregister(conn)
	close(slow.release)

	// The second command entering the directory proves the session survived
	// sending the first command's room-error to an unregistered client.
	<-slow.entered
	close(conn.Commands)

	for ev := range conn.Events {
		if ev.Kind == EventRoomError {
			t.Fatalf("room error delivered after disconnect: %+v", ev)
		}
	}
	if roster := hub.OnlineUsers(); len(roster) != 0 {
		t.Fatalf("roster should be empty after disconnect, got %+v", roster)
	}
}

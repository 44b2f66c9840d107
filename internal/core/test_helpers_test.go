package core

import (
	"context"
	"testing"
	"time"

	"github.com/parlorchat/parlor-server/internal/store"
	"github.com/parlorchat/parlor-server/internal/store/sqlite"
)

func newTestStore(t testing.TB) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func mustUser(t testing.TB, st store.Store, username, name string) *store.User {
	t.Helper()

	u, err := st.CreateUser(context.Background(), username, "hash", name)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u
}

func mustRoom(t *testing.T, st store.Store, name string, creator *store.User, members ...*store.User) *store.Room {
	t.Helper()

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	room, err := st.CreateRoom(context.Background(), name, name, false, &creator.ID, ids)
	if err != nil {
		t.Fatalf("failed to create room %s: %v", name, err)
	}
	return room
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for kind %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent asserts that no event of the given kind arrives within the window.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// connect registers a fresh connection for the user and waits for the initial
// roster push so later assertions start from a known point.
func connect(t *testing.T, hub *Hub, connID string, u *store.User) *Client {
	t.Helper()

	c := NewClient(connID, u.ID, u.Username, "")
	hub.Register(context.Background(), c)
	mustEvent(t, c.Events, EventOnlineUsers)
	return c
}

func countMessages(t *testing.T, st store.Store, room string) int {
	t.Helper()

	msgs, err := st.ListMessages(context.Background(), room, 1000)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	return len(msgs)
}

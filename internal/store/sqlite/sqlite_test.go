package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/parlorchat/parlor-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func mustCreateUser(t *testing.T, s *SQLiteStore, username, name string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), username, "hash", name)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u
}

func TestCreateUserAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := mustCreateUser(t, s, "alice@example.com", "Alice")

	byID, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Username != "alice@example.com" || byID.Name != "Alice" {
		t.Fatalf("unexpected user: %+v", byID)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.CreateUser(ctx, "alice@example.com", "hash", ""); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetUsersByUsernamesReportsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", "")
	mustCreateUser(t, s, "bob", "")

	users, missing, err := s.GetUsersByUsernames(ctx, []string{"alice", "ghost", "bob"})
	if err != nil {
		t.Fatalf("GetUsersByUsernames failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Fatalf("expected [ghost] missing, got %v", missing)
	}
}

func TestCreateRoomAlwaysIncludesCreator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	creator := mustCreateUser(t, s, "alice", "")
	member := mustCreateUser(t, s, "bob", "")

	room, err := s.CreateRoom(ctx, "team", "Team", false, &creator.ID, []int64{member.ID})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if room.Name != "team" || room.CreatorID == nil || *room.CreatorID != creator.ID {
		t.Fatalf("unexpected room: %+v", room)
	}

	for _, uid := range []int64{creator.ID, member.ID} {
		ok, err := s.IsMember(ctx, room.ID, uid)
		if err != nil {
			t.Fatalf("IsMember failed: %v", err)
		}
		if !ok {
			t.Fatalf("user %d should be a member", uid)
		}
	}

	// Room names are globally unique.
	if _, err := s.CreateRoom(ctx, "team", "Other", false, &creator.ID, nil); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestMembershipMutations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	creator := mustCreateUser(t, s, "alice", "")
	bob := mustCreateUser(t, s, "bob", "")

	room, err := s.CreateRoom(ctx, "team", "Team", false, &creator.ID, nil)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	if err := s.AddMembers(ctx, room.ID, []int64{bob.ID, bob.ID}); err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}

	ids, err := s.ListMemberIDs(ctx, room.ID)
	if err != nil {
		t.Fatalf("ListMemberIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 members, got %v", ids)
	}

	if err := s.RemoveMembers(ctx, room.ID, []int64{bob.ID}); err != nil {
		t.Fatalf("RemoveMembers failed: %v", err)
	}
	ok, err := s.IsMember(ctx, room.ID, bob.ID)
	if err != nil {
		t.Fatalf("IsMember failed: %v", err)
	}
	if ok {
		t.Fatal("bob should no longer be a member")
	}
}

func TestSearchRoomsExcludesOwnRooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, s, "alice", "")
	bob := mustCreateUser(t, s, "bob", "")

	if _, err := s.CreateRoom(ctx, "team-a", "Project Alpha", false, &alice.ID, nil); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := s.CreateRoom(ctx, "team-b", "Project Beta", false, &bob.ID, nil); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := s.CreateRoom(ctx, "dm:1_2", "DM", true, nil, []int64{alice.ID, bob.ID}); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	rooms, err := s.SearchRooms(ctx, alice.ID, "Project", 10)
	if err != nil {
		t.Fatalf("SearchRooms failed: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != "team-b" {
		t.Fatalf("expected only team-b, got %+v", rooms)
	}
}

func TestDeleteRoomRemovesMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, s, "alice", "")
	room, err := s.CreateRoom(ctx, "team", "Team", false, &alice.ID, nil)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	if err := s.DeleteRoom(ctx, room.ID); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}
	if _, err := s.GetRoomByID(ctx, room.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rooms, err := s.ListRoomsForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListRoomsForUser failed: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expected no rooms, got %+v", rooms)
	}

	if err := s.DeleteRoom(ctx, room.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestAppendMessageResolvesSender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, s, "alice@example.com", "Alice")

	msg, err := s.AppendMessage(ctx, &alice.ID, "global", "hello")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if msg.ID == 0 {
		t.Fatal("expected assigned message id")
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("expected assigned creation timestamp")
	}
	if msg.FromUsername != "alice@example.com" || msg.FromName != "Alice" {
		t.Fatalf("sender not resolved: %+v", msg)
	}

	// System message with no sender.
	sys, err := s.AppendMessage(ctx, nil, "global", "welcome")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if sys.FromID != nil || sys.FromUsername != "" {
		t.Fatalf("unexpected sender on system message: %+v", sys)
	}
}

func TestListMessagesOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, s, "alice", "")

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		if _, err := s.AppendMessage(ctx, &alice.ID, "global", text); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}
	if _, err := s.AppendMessage(ctx, &alice.ID, "other", "elsewhere"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "global", 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Newest three, oldest first.
	want := []string{"two", "three", "four"}
	for i, msg := range msgs {
		if msg.Text != want[i] {
			t.Fatalf("expected %q at %d, got %q", want[i], i, msg.Text)
		}
	}
}

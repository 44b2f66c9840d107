package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("already exists")

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Name         string // optional friendly display name, empty if unset
	CreatedAt    time.Time
}

// Room is the durable membership record for a chat room.
type Room struct {
	ID          int64
	Name        string // globally unique internal name
	DisplayName string
	IsDM        bool
	CreatorID   *int64 // nil for DM rooms
	CreatedAt   time.Time
}

// Message is a persisted chat message. Rows are append-only; CreatedAt is
// assigned by the insert and insertion order defines room history order.
type Message struct {
	ID        int64
	FromID    *int64 // nil for system messages
	Room      string // target room name; the default room has no rooms row
	Text      string
	CreatedAt time.Time

	// Sender identity resolved at read time for convenience.
	FromUsername string
	FromName     string
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password and optional display name.
	CreateUser(ctx context.Context, username, passwordHash, name string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUsersByUsernames resolves a set of usernames to users. Usernames with
	// no account are returned in the second slice.
	GetUsersByUsernames(ctx context.Context, usernames []string) ([]*User, []string, error)

	// SearchUsers searches for users by username prefix/substring.
	SearchUsers(ctx context.Context, query string, limit int) ([]*User, error)
}

// RoomStore is the room directory: it owns the persisted membership records
// the realtime layer authorizes against.
type RoomStore interface {
	// CreateRoom creates a room. The creator (when set) is always stored as a
	// member, whether or not it appears in memberIDs.
	CreateRoom(ctx context.Context, name, displayName string, isDM bool, creatorID *int64, memberIDs []int64) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// GetRoomByName retrieves a room by its unique name.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// ListRoomsForUser lists rooms the user is a member of, newest first.
	ListRoomsForUser(ctx context.Context, userID int64) ([]*Room, error)

	// AddMembers adds users to a room, skipping existing members.
	AddMembers(ctx context.Context, roomID int64, userIDs []int64) error

	// RemoveMembers removes users from a room.
	RemoveMembers(ctx context.Context, roomID int64, userIDs []int64) error

	// IsMember reports whether the user is in the room's member set.
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)

	// ListMemberIDs lists the room's member user IDs.
	ListMemberIDs(ctx context.Context, roomID int64) ([]int64, error)

	// DeleteRoom removes the room and its membership rows.
	DeleteRoom(ctx context.Context, id int64) error

	// SearchRooms finds non-DM rooms matching the query by display name,
	// excluding rooms the user already belongs to.
	SearchRooms(ctx context.Context, excludeUserID int64, query string, limit int) ([]*Room, error)
}

// MessageStore handles durable message persistence.
type MessageStore interface {
	// AppendMessage durably inserts a message and returns the stored record
	// with its assigned ID, timestamp, and resolved sender identity. The
	// returned record is the only thing the realtime layer may broadcast.
	AppendMessage(ctx context.Context, fromID *int64, room, text string) (*Message, error)

	// ListMessages returns the newest `limit` messages for a room, ordered
	// oldest first.
	ListMessages(ctx context.Context, room string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

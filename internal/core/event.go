package core

import "github.com/parlorchat/parlor-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoinedRoom acknowledges a successful join to the requester.
	EventJoinedRoom EventKind = iota
	// EventRoomError reports a recoverable failure of a room action.
	EventRoomError
	// EventNewMessage delivers a persisted chat message.
	EventNewMessage
	// EventUserJoined notifies room subscribers about an arrival.
	EventUserJoined
	// EventUserLeft notifies room subscribers about a departure.
	EventUserLeft
	// EventOnlineUsers delivers the deduplicated roster to every client.
	EventOnlineUsers
	// EventRoomDeleted tells subscribers their room was removed.
	EventRoomDeleted
	// EventTyping forwards a typing notice to room subscribers.
	EventTyping
)

// RosterEntry is one user in the online-users roster.
type RosterEntry struct {
	UserID      int64
	Username    string
	DisplayName string
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind
	Room string

	// EventJoinedRoom
	Success bool

	// EventRoomError
	Err *RoomError

	// EventNewMessage
	Message *store.Message

	// EventUserJoined / EventUserLeft / EventTyping
	UserID      int64
	Username    string
	DisplayName string

	// EventOnlineUsers
	Roster []RosterEntry

	// EventRoomDeleted
	RoomID int64
}

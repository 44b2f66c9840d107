package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for events coming from the client. Data is decoded
// per event type: join-room and leave-room carry a bare JSON string (the room
// name), send-message and typing carry objects.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundJoinRoom    = "join-room"
	InboundLeaveRoom   = "leave-room"
	InboundSendMessage = "send-message"
	InboundTyping      = "typing"

	OutboundJoinedRoom  = "joined-room"
	OutboundRoomError   = "room-error"
	OutboundNewMessage  = "new-message"
	OutboundUserJoined  = "user-joined"
	OutboundUserLeft    = "user-left"
	OutboundOnlineUsers = "online-users"
	OutboundRoomDeleted = "room-deleted"
	OutboundTyping      = "typing"
)

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// TypingData announces that a user is composing a message.
type TypingData struct {
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// JoinedRoom acknowledges a join attempt; Success is false when a room-error
// follows.
type JoinedRoom struct {
	Room    string `json:"room"`
	Success bool   `json:"success"`
}

// RoomError reports why a join or send was refused. Code is empty for plain
// validation failures such as an empty message.
type RoomError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Sender identifies the author of a message. A zero ID with empty names marks
// a system message.
type Sender struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// NewMessage is a chat message fanned out to room subscribers.
type NewMessage struct {
	ID        int64     `json:"id"`
	From      Sender    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserJoined notifies room subscribers that someone joined.
type UserJoined struct {
	DisplayName string `json:"displayName"`
	Room        string `json:"room"`
}

// UserLeft notifies room subscribers that someone left. RoomID is set when the
// departure came from a membership change rather than a live leave.
type UserLeft struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	RoomName    string `json:"roomName"`
	RoomID      int64  `json:"roomId,omitempty"`
}

// OnlineUser is one entry of the deduplicated presence roster.
type OnlineUser struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// RoomDeleted tells subscribers the room no longer exists.
type RoomDeleted struct {
	RoomID   int64  `json:"roomId"`
	RoomName string `json:"roomName"`
}

// Typing is forwarded to everyone else in the room.
type Typing struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

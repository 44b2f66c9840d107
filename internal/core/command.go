package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client to a room after authorization.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandSendMessage persists and delivers a chat message to a room.
	CommandSendMessage
	// CommandTyping forwards a best-effort typing notice to a room.
	CommandTyping
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	Room string
	Text string
	// Username is the name a typing notice should display; the sender's
	// display name is used when empty.
	Username string
}

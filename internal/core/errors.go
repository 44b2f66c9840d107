package core

// Room-error codes reported to clients. None of these terminate the
// connection; the client may retry the action.
const (
	ErrCodeInvalidRoom  = "INVALID_ROOM"
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	ErrCodeNotInvited   = "NOT_INVITED"
	ErrCodeServerError  = "SERVER_ERROR"
)

// RoomError wraps a code and human-readable message.
type RoomError struct {
	Code    string
	Message string
}

func (e *RoomError) Error() string {
	return e.Message
}

func roomError(code, msg string) *RoomError {
	return &RoomError{Code: code, Message: msg}
}

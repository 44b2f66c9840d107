package core

import (
	"context"
	"errors"

	"github.com/parlorchat/parlor-server/internal/store"
)

// Action is the kind of room access being authorized.
type Action int

const (
	// ActionJoin authorizes subscribing to a room.
	ActionJoin Action = iota
	// ActionPost authorizes sending a message to a room.
	ActionPost
)

// Guard answers whether a user may act on a room by consulting the persisted
// membership record. The default room bypasses the record entirely. The check
// is re-evaluated on every join and every send: membership can change between
// a join and a later post, so a prior join never authorizes a send.
type Guard struct {
	directory store.RoomStore
}

// NewGuard creates a guard backed by the given room directory.
func NewGuard(directory store.RoomStore) *Guard {
	return &Guard{directory: directory}
}

// Authorize returns nil when the action is allowed, or a RoomError describing
// why not. Directory failures surface as SERVER_ERROR; the caller reports
// them and treats the action as failed.
func (g *Guard) Authorize(ctx context.Context, userID int64, roomName string, _ Action) *RoomError {
	if roomName == DefaultRoom {
		return nil
	}

	room, err := g.directory.GetRoomByName(ctx, roomName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return roomError(ErrCodeRoomNotFound, "Room not found")
		}
		return roomError(ErrCodeServerError, "Failed to look up room")
	}

	member, err := g.directory.IsMember(ctx, room.ID, userID)
	if err != nil {
		return roomError(ErrCodeServerError, "Failed to check membership")
	}
	if !member {
		return roomError(ErrCodeNotInvited, "You are not invited to this room.")
	}

	return nil
}

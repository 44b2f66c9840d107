package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/log"
	"github.com/parlorchat/parlor-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room management endpoints. Mutations
// that affect live subscribers (delete, remove, leave) are pushed through the
// hub so connected clients hear about them immediately.
type RoomHandlers struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		hub:   hub,
		log:   log.Component(logger, "rooms"),
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name            string   `json:"name" binding:"required,min=1,max=64"`
	DisplayName     string   `json:"displayName"`
	MemberUsernames []string `json:"memberUsernames"`
}

// MembersRequest names users to invite to or remove from a room.
type MembersRequest struct {
	Usernames []string `json:"usernames" binding:"required,min=1"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	IsDM        bool   `json:"isDm"`
	CreatorID   *int64 `json:"creatorId,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		DisplayName: room.DisplayName,
		IsDM:        room.IsDM,
		CreatorID:   room.CreatorID,
		CreatedAt:   room.CreatedAt.Format(time.RFC3339),
	}
}

// CreateRoom handles room creation. The creator always becomes a member; any
// listed usernames are added too, and unknown ones fail the whole request.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || name == core.DefaultRoom {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name"})
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = name
	}

	memberIDs := make([]int64, 0, len(req.MemberUsernames))
	if len(req.MemberUsernames) > 0 {
		users, missing, err := h.store.GetUsersByUsernames(c.Request.Context(), req.MemberUsernames)
		if err != nil {
			h.log.Error().Err(err).Msg("failed to resolve member usernames")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		if len(missing) > 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("unknown users: %s", strings.Join(missing, ", ")),
			})
			return
		}
		for _, u := range users {
			memberIDs = append(memberIDs, u.ID)
		}
	}

	room, err := h.store.CreateRoom(c.Request.Context(), name, displayName, false, &uid, memberIDs)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_name", room.Name).Int64("room_id", room.ID).Int64("creator_id", uid).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// ListRooms handles listing the rooms the user belongs to.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rooms, err := h.store.ListRoomsForUser(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomResponse(room))
	}
	c.JSON(http.StatusOK, response)
}

// GetRoom returns a single room the user belongs to.
// GET /api/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.memberRoom(c, uid)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, roomResponse(room))
}

// DeleteRoom deletes a room. Only the creator may delete; live subscribers
// receive a room-deleted event.
// DELETE /api/rooms/:id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.roomByID(c)
	if !ok {
		return
	}
	if room.CreatorID == nil || *room.CreatorID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the creator can delete this room"})
		return
	}

	if err := h.store.DeleteRoom(c.Request.Context(), room.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to delete room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.RoomDeleted(room.ID, room.Name)
	h.log.Info().Int64("room_id", room.ID).Str("room_name", room.Name).Msg("room deleted")
	c.Status(http.StatusNoContent)
}

// Invite adds users to a room. Only the creator may invite.
// POST /api/rooms/:id/invite
func (h *RoomHandlers) Invite(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.roomByID(c)
	if !ok {
		return
	}
	if room.CreatorID == nil || *room.CreatorID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the creator can invite to this room"})
		return
	}

	users, ok := h.resolveUsers(c)
	if !ok {
		return
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	if err := h.store.AddMembers(c.Request.Context(), room.ID, ids); err != nil {
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to add members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Remove removes users from a room. Only the creator may remove; removed users
// with live subscriptions are force-unsubscribed.
// POST /api/rooms/:id/remove
func (h *RoomHandlers) Remove(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.roomByID(c)
	if !ok {
		return
	}
	if room.CreatorID == nil || *room.CreatorID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the creator can remove from this room"})
		return
	}

	users, ok := h.resolveUsers(c)
	if !ok {
		return
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		if u.ID == uid {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "creator cannot remove themselves; delete the room instead"})
			return
		}
		ids = append(ids, u.ID)
	}
	if err := h.store.RemoveMembers(c.Request.Context(), room.ID, ids); err != nil {
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to remove members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	for _, id := range ids {
		h.hub.MemberRemoved(id, room.ID, room.Name)
	}
	c.Status(http.StatusNoContent)
}

// Leave removes the requesting user from a room and force-unsubscribes their
// live connections.
// POST /api/rooms/:id/leave
func (h *RoomHandlers) Leave(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.memberRoom(c, uid)
	if !ok {
		return
	}
	if room.CreatorID != nil && *room.CreatorID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "creator cannot leave; delete the room instead"})
		return
	}

	if err := h.store.RemoveMembers(c.Request.Context(), room.ID, []int64{uid}); err != nil {
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to leave room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.MemberRemoved(uid, room.ID, room.Name)
	c.Status(http.StatusNoContent)
}

// Join adds the requesting user to a room found via search.
// POST /api/rooms/:id/join
func (h *RoomHandlers) Join(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.roomByID(c)
	if !ok {
		return
	}
	if room.IsDM {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot join a direct message room"})
		return
	}

	if err := h.store.AddMembers(c.Request.Context(), room.ID, []int64{uid}); err != nil {
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to join room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, roomResponse(room))
}

// Search finds joinable rooms by name fragment. Queries shorter than three
// characters return nothing, matching the client behavior.
// GET /api/rooms/search?q=
func (h *RoomHandlers) Search(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 3 {
		c.JSON(http.StatusOK, []RoomResponse{})
		return
	}

	rooms, err := h.store.SearchRooms(c.Request.Context(), uid, q, 20)
	if err != nil {
		h.log.Error().Err(err).Str("query", q).Msg("failed to search rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomResponse(room))
	}
	c.JSON(http.StatusOK, response)
}

// Present lists the users currently connected and subscribed to a room.
// GET /api/rooms/:id/present
func (h *RoomHandlers) Present(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room, ok := h.memberRoom(c, uid)
	if !ok {
		return
	}

	roster := h.hub.RoomPresence(room.Name)
	response := make([]OnlineUserResponse, 0, len(roster))
	for _, entry := range roster {
		response = append(response, OnlineUserResponse{
			UserID:      entry.UserID,
			Username:    entry.Username,
			DisplayName: entry.DisplayName,
		})
	}
	c.JSON(http.StatusOK, response)
}

// DMRequest names the other party of a direct message room.
type DMRequest struct {
	Username string `json:"username" binding:"required"`
}

// OpenDM finds or creates the direct message room between the requesting user
// and one other user. The room name is derived from the pair of user IDs so
// repeated calls converge on the same room.
// POST /api/rooms/dm
func (h *RoomHandlers) OpenDM(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req DMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	other, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to look up user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if other.ID == uid {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot open a direct message with yourself"})
		return
	}

	lo, hi := uid, other.ID
	if lo > hi {
		lo, hi = hi, lo
	}
	name := fmt.Sprintf("dm:%d_%d", lo, hi)

	room, err := h.store.GetRoomByName(c.Request.Context(), name)
	if err == nil {
		c.JSON(http.StatusOK, roomResponse(room))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to look up dm room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	displayName := other.Name
	if displayName == "" {
		displayName = other.Username
	}
	room, err = h.store.CreateRoom(c.Request.Context(), name, displayName, true, &uid, []int64{other.ID})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with the other party; the room exists now.
			if room, err = h.store.GetRoomByName(c.Request.Context(), name); err == nil {
				c.JSON(http.StatusOK, roomResponse(room))
				return
			}
		}
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to create dm room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, roomResponse(room))
}

// roomByID loads the room named by the :id path parameter, writing the error
// response itself when it fails.
func (h *RoomHandlers) roomByID(c *gin.Context) (*store.Room, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return nil, false
	}

	room, err := h.store.GetRoomByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return nil, false
		}
		h.log.Error().Err(err).Int64("room_id", id).Msg("failed to load room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	return room, true
}

// memberRoom is roomByID plus a membership check for the requesting user.
func (h *RoomHandlers) memberRoom(c *gin.Context, uid int64) (*store.Room, bool) {
	room, ok := h.roomByID(c)
	if !ok {
		return nil, false
	}

	member, err := h.store.IsMember(c.Request.Context(), room.ID, uid)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this room"})
		return nil, false
	}
	return room, true
}

// resolveUsers maps the request's usernames to users, rejecting the request
// when any are unknown.
func (h *RoomHandlers) resolveUsers(c *gin.Context) ([]*store.User, bool) {
	var req MembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return nil, false
	}

	users, missing, err := h.store.GetUsersByUsernames(c.Request.Context(), req.Usernames)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to resolve usernames")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("unknown users: %s", strings.Join(missing, ", ")),
		})
		return nil, false
	}
	return users, true
}

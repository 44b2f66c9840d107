package core

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/store"
)

// DefaultRoom is the distinguished room every authenticated connection may
// join and post to without a membership check. Connections are subscribed to
// it on registration.
const DefaultRoom = "global"

// Hub coordinates all live connections: presence, room subscriber sets, and
// message fan-out. Shared state is guarded by a single mutex; store calls
// (membership lookups, message appends) always happen outside the lock, in
// the per-connection session goroutine, with a short critical section
// afterwards to apply the result.
type Hub struct {
	store store.Store
	guard *Guard
	log   zerolog.Logger

	mu       sync.Mutex
	clients  map[*Client]struct{}
	presence map[int64]*presenceEntry
	rooms    map[string]*roomSet
}

// NewHub creates a hub backed by the given store. The store acts as both the
// room directory (authorization) and the durable message log.
func NewHub(st store.Store, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:    st,
		guard:    NewGuard(st),
		log:      logger.With().Str("component", "hub").Logger(),
		clients:  make(map[*Client]struct{}),
		presence: make(map[int64]*presenceEntry),
		rooms:    make(map[string]*roomSet),
	}
}

// Register adds an authenticated connection: it resolves the display name,
// records presence, subscribes the connection to the default room, pushes the
// updated roster to everyone, and starts the connection's session goroutine.
// The session drains c.Commands until the channel is closed.
func (h *Hub) Register(ctx context.Context, c *Client) {
	if c.DisplayName == "" {
		c.DisplayName = h.storedName(ctx, c.UserID)
	}
	if c.DisplayName == "" {
		c.DisplayName = DeriveDisplayName(c.Username)
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if entry, ok := h.presence[c.UserID]; ok {
		entry.count++
		// Keep one display name for all of a user's connections.
		c.DisplayName = entry.DisplayName
	} else {
		h.presence[c.UserID] = &presenceEntry{
			RosterEntry: RosterEntry{
				UserID:      c.UserID,
				Username:    c.Username,
				DisplayName: c.DisplayName,
			},
			count: 1,
		}
	}
	h.subscribeLocked(c, DefaultRoom)
	h.broadcastRosterLocked()
	h.mu.Unlock()

	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("client registered")

	go h.session(ctx, c)
}

// Unregister removes a connection: it drops it from every room's subscriber
// set, decrements presence (removing the entry when the user's last
// connection closed), re-broadcasts the roster, and closes the event channel.
// Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	for name := range c.rooms {
		if rs, ok := h.rooms[name]; ok {
			rs.remove(c)
			if rs.empty() {
				delete(h.rooms, name)
			}
		}
	}

	if entry, ok := h.presence[c.UserID]; ok {
		entry.count--
		if entry.count <= 0 {
			delete(h.presence, c.UserID)
		}
	}
	h.broadcastRosterLocked()
	c.closeEvents()
	h.mu.Unlock()

	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("client unregistered")
}

// session consumes one connection's commands in FIFO order. Blocking store
// calls happen here, never under the hub lock, so a slow directory lookup for
// one connection cannot stall presence bookkeeping for the rest.
func (h *Hub) session(ctx context.Context, c *Client) {
	for cmd := range c.Commands {
		switch cmd.Kind {
		case CommandJoinRoom:
			h.joinRoom(ctx, c, cmd.Room)
		case CommandLeaveRoom:
			h.leaveRoom(c, cmd.Room)
		case CommandSendMessage:
			h.sendMessage(ctx, c, cmd.Room, cmd.Text)
		case CommandTyping:
			h.typing(c, cmd.Room, cmd.Username)
		}
	}
}

func (h *Hub) joinRoom(ctx context.Context, c *Client, roomName string) {
	if roomName == "" {
		c.send(&Event{Kind: EventRoomError, Err: roomError(ErrCodeInvalidRoom, "Room name required")})
		return
	}

	if rerr := h.guard.Authorize(ctx, c.UserID, roomName, ActionJoin); rerr != nil {
		h.log.Debug().Int64("user_id", c.UserID).Str("room", roomName).Str("code", rerr.Code).Msg("join denied")
		c.send(&Event{Kind: EventRoomError, Room: roomName, Err: rerr})
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	added := h.subscribeLocked(c, roomName)
	c.send(&Event{Kind: EventJoinedRoom, Room: roomName, Success: true})
	if added && roomName != DefaultRoom {
		h.rooms[roomName].broadcastExcept(c, &Event{
			Kind:        EventUserJoined,
			Room:        roomName,
			UserID:      c.UserID,
			DisplayName: c.DisplayName,
		})
	}
	h.mu.Unlock()
}

func (h *Hub) leaveRoom(c *Client, roomName string) {
	if roomName == "" {
		return
	}

	h.mu.Lock()
	rs, ok := h.rooms[roomName]
	if !ok || !rs.remove(c) {
		h.mu.Unlock()
		return
	}
	delete(c.rooms, roomName)
	rs.broadcast(&Event{
		Kind:        EventUserLeft,
		Room:        roomName,
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
	})
	if rs.empty() {
		delete(h.rooms, roomName)
	}
	h.mu.Unlock()
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, roomName, text string) {
	if roomName == "" {
		roomName = DefaultRoom
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.send(&Event{Kind: EventRoomError, Room: roomName, Err: roomError("", "Empty message")})
		return
	}

	if rerr := h.guard.Authorize(ctx, c.UserID, roomName, ActionPost); rerr != nil {
		h.log.Debug().Int64("user_id", c.UserID).Str("room", roomName).Str("code", rerr.Code).Msg("send denied")
		c.send(&Event{Kind: EventRoomError, Room: roomName, Err: rerr})
		return
	}

	// Durable write first: only the stored record is ever broadcast.
	msg, err := h.store.AppendMessage(ctx, &c.UserID, roomName, text)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomName).Msg("failed to persist message")
		c.send(&Event{Kind: EventRoomError, Room: roomName, Err: roomError(ErrCodeServerError, "Failed to send message")})
		return
	}

	ev := &Event{Kind: EventNewMessage, Room: roomName, Message: msg}

	h.mu.Lock()
	if roomName == DefaultRoom {
		// Default-room delivery is global: every connected client.
		for client := range h.clients {
			client.send(ev)
		}
	} else if rs, ok := h.rooms[roomName]; ok {
		rs.broadcast(ev)
	}
	h.mu.Unlock()
}

func (h *Hub) typing(c *Client, roomName, username string) {
	if roomName == "" {
		roomName = DefaultRoom
	}
	if username == "" {
		username = c.DisplayName
	}

	h.mu.Lock()
	if rs, ok := h.rooms[roomName]; ok {
		rs.broadcastExcept(c, &Event{Kind: EventTyping, Room: roomName, Username: username})
	}
	h.mu.Unlock()
}

// RoomDeleted is called by the room directory's REST layer when a room is
// removed. Subscribers are told and then force-unsubscribed.
func (h *Hub) RoomDeleted(roomID int64, roomName string) {
	h.mu.Lock()
	rs, ok := h.rooms[roomName]
	if !ok {
		h.mu.Unlock()
		return
	}
	rs.broadcast(&Event{Kind: EventRoomDeleted, Room: roomName, RoomID: roomID})
	for client := range rs.clients {
		delete(client.rooms, roomName)
	}
	delete(h.rooms, roomName)
	h.mu.Unlock()

	h.log.Info().Str("room", roomName).Msg("room deleted, subscribers dropped")
}

// MemberRemoved is called by the REST layer when a user leaves or is removed
// from a room's membership. Remaining subscribers are notified and the user's
// live connections lose the subscription so broadcast scope matches the
// persisted record.
func (h *Hub) MemberRemoved(userID, roomID int64, roomName string) {
	h.mu.Lock()
	rs, ok := h.rooms[roomName]
	if !ok {
		h.mu.Unlock()
		return
	}

	displayName := ""
	if entry, ok := h.presence[userID]; ok {
		displayName = entry.DisplayName
	}

	rs.broadcast(&Event{
		Kind:        EventUserLeft,
		Room:        roomName,
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
	})

	for client := range rs.clients {
		if client.UserID == userID {
			rs.remove(client)
			delete(client.rooms, roomName)
		}
	}
	if rs.empty() {
		delete(h.rooms, roomName)
	}
	h.mu.Unlock()
}

// OnlineUsers returns a snapshot of the deduplicated roster.
func (h *Hub) OnlineUsers() []RosterEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rosterLocked()
}

// RoomPresence returns the users with at least one connection currently
// subscribed to the room.
func (h *Hub) RoomPresence(roomName string) []RosterEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomName]
	if !ok {
		return nil
	}

	seen := make(map[int64]struct{}, len(rs.clients))
	entries := make([]RosterEntry, 0, len(rs.clients))
	for client := range rs.clients {
		if _, dup := seen[client.UserID]; dup {
			continue
		}
		seen[client.UserID] = struct{}{}
		entries = append(entries, RosterEntry{
			UserID:      client.UserID,
			Username:    client.Username,
			DisplayName: client.DisplayName,
		})
	}
	return entries
}

// subscribeLocked adds the connection to a room's subscriber set, creating
// the set on first use. Returns true when the subscription is new.
func (h *Hub) subscribeLocked(c *Client, roomName string) bool {
	rs, ok := h.rooms[roomName]
	if !ok {
		rs = newRoomSet(roomName)
		h.rooms[roomName] = rs
	}
	if _, subscribed := c.rooms[roomName]; subscribed {
		return false
	}
	rs.add(c)
	c.rooms[roomName] = struct{}{}
	return true
}

// storedName looks the user up in the directory for a stored display name.
// Failures only mean falling back to the derived name.
func (h *Hub) storedName(ctx context.Context, userID int64) string {
	if h.store == nil {
		return ""
	}
	user, err := h.store.GetUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Name
}

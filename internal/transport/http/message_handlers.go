package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/log"
	"github.com/parlorchat/parlor-server/internal/store"
)

const defaultHistoryLimit = 50

// MessageHandlers serves message history. Access follows the same rules as
// the realtime path: the default room is open to everyone, any other room
// requires membership.
type MessageHandlers struct {
	store store.Store
	guard *core.Guard
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, guard *core.Guard, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		guard: guard,
		log:   log.Component(logger, "messages"),
	}
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID        int64          `json:"id"`
	From      SenderResponse `json:"from"`
	To        string         `json:"to"`
	Text      string         `json:"text"`
	CreatedAt string         `json:"createdAt"`
}

// SenderResponse identifies the author of a message.
type SenderResponse struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// History returns the most recent messages for a room, oldest first.
// GET /api/messages/:room?limit=
func (h *MessageHandlers) History(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	room := c.Param("room")
	if rerr := h.guard.Authorize(c.Request.Context(), uid, room, core.ActionJoin); rerr != nil {
		switch rerr.Code {
		case core.ErrCodeRoomNotFound:
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		case core.ErrCodeNotInvited:
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this room"})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), room, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, MessageResponse{
			ID: m.ID,
			From: SenderResponse{
				Username: m.FromUsername,
				Name:     m.FromName,
			},
			To:        m.Room,
			Text:      m.Text,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}

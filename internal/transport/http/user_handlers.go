package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/log"
	"github.com/parlorchat/parlor-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, hub *core.Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		hub:   hub,
		log:   log.Component(logger, "users"),
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// OnlineUserResponse is one entry of a presence roster in API responses.
type OnlineUserResponse struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// SearchUsers handles searching for users.
// GET /api/users/search?q=query
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 3 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "search query must be at least 3 characters"})
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), query, 20)
	if err != nil {
		h.log.Error().Err(err).Str("query", query).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		if u.ID == uid {
			continue
		}
		response = append(response, UserResponse{
			ID:       u.ID,
			Username: u.Username,
			Name:     u.Name,
		})
	}

	c.JSON(http.StatusOK, response)
}

// OnlineUsers returns the deduplicated roster of connected users.
// GET /api/users/online
func (h *UserHandlers) OnlineUsers(c *gin.Context) {
	roster := h.hub.OnlineUsers()
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

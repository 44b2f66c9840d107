package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/parlorchat/parlor-server/internal/auth"
	"github.com/parlorchat/parlor-server/internal/config"
	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/store"
)

// NewServer builds the HTTP server: the WebSocket endpoint, the auth
// endpoints, and the room/message REST API.
func NewServer(hub *core.Hub, st store.Store, authService *auth.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	rateLimited := RateLimitMiddleware(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)

	wsHandler := NewWSHandler(hub, authService, logger)
	router.GET("/ws", rateLimited, wsHandler.Handle)

	apiHandlers := NewAPIHandlers(authService, logger)
	authGroup := router.Group("/api/auth")
	authGroup.Use(rateLimited)
	{
		authGroup.POST("/register", apiHandlers.Register)
		authGroup.POST("/login", apiHandlers.Login)
	}

	roomHandlers := NewRoomHandlers(st, hub, logger)
	userHandlers := NewUserHandlers(st, hub, logger)
	messageHandlers := NewMessageHandlers(st, core.NewGuard(st), logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.POST("/rooms", roomHandlers.CreateRoom)
		api.GET("/rooms", roomHandlers.ListRooms)
		api.GET("/rooms/search", roomHandlers.Search)
		api.POST("/rooms/dm", roomHandlers.OpenDM)
		api.GET("/rooms/:id", roomHandlers.GetRoom)
		api.DELETE("/rooms/:id", roomHandlers.DeleteRoom)
		api.POST("/rooms/:id/invite", roomHandlers.Invite)
		api.POST("/rooms/:id/remove", roomHandlers.Remove)
		api.POST("/rooms/:id/leave", roomHandlers.Leave)
		api.POST("/rooms/:id/join", roomHandlers.Join)
		api.GET("/rooms/:id/present", roomHandlers.Present)

		api.GET("/messages/:room", messageHandlers.History)

		api.GET("/users/search", userHandlers.SearchUsers)
		api.GET("/users/online", userHandlers.OnlineUsers)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/auth"
	"github.com/vmelnik/chatrelay/internal/config"
	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/service/channels"
	"github.com/vmelnik/chatrelay/internal/service/messages"
)

// Deps bundles everything the HTTP layer routes to.
type Deps struct {
	Config      config.Config
	Coordinator *core.Coordinator
	Auth        *auth.Service
	Channels    *channels.Service
	Messages    *messages.Service
	Log         *zerolog.Logger
}

// NewServer builds the HTTP server with the realtime endpoint and the REST
// API. The stop channel ends background work owned by the router, such as
// the rate limiter reset loop.
func NewServer(d Deps, stop <-chan struct{}) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(d.Log))

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	engine.GET("/ws", gin.WrapH(NewWSHandler(d.Coordinator, d.Log)))

	authLimit := newRateLimiter(d.Config.AuthRateLimit)
	authLimit.startReset(stop)

	api := NewAPIHandlers(d.Auth, d.Log)
	engine.POST("/api/register", authLimit.middleware(), api.Register)
	engine.POST("/api/login", authLimit.middleware(), api.Login)

	ch := NewChannelHandlers(d.Channels, d.Log)
	msg := NewMessageHandlers(d.Messages, d.Log)

	authed := engine.Group("/api", AuthMiddleware(d.Auth, d.Log))
	authed.POST("/channels", ch.Create)
	authed.GET("/channels", ch.List)
	authed.GET("/channels/search", ch.Search)
	authed.GET("/channels/:id", ch.Get)
	authed.DELETE("/channels/:id", ch.Delete)
	authed.POST("/channels/:id/leave", ch.Leave)
	authed.DELETE("/channels/:id/members/:userId", ch.RemoveMember)
	authed.POST("/channels/:id/requests", ch.RequestJoin)
	authed.POST("/channels/:id/requests/:userId/approve", ch.ApproveJoin)
	authed.POST("/channels/:id/requests/:userId/reject", ch.RejectJoin)
	authed.GET("/channels/:id/messages", msg.List)
	authed.POST("/channels/:id/messages", msg.Create)

	return &stdhttp.Server{
		Addr:              d.Config.Addr,
		Handler:           engine,
		ReadHeaderTimeout: d.Config.ReadHeaderTimeout,
	}
}

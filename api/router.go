// Package api is the HTTP transport: a JSON API under /api/v1 and a
// websocket that pushes new messages of one conversation.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rishta/identity"
	"rishta/lifecycle"
	"rishta/profiles"
)

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	SendRate  float64 // messages per second per user, 0 disables limiting
	SendBurst int
	Logger    *slog.Logger
	Storage   Pinger
}

type Handler struct {
	svc      *lifecycle.Service
	ident    *identity.Service
	profiles *profiles.Service
	storage  Pinger
	limits   *userLimits
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(svc *lifecycle.Service, ident *identity.Service, prof *profiles.Service, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:      svc,
		ident:    ident,
		profiles: prof,
		storage:  opts.Storage,
		limits:   newUserLimits(opts.SendRate, opts.SendBurst),
		logger:   logger.With("component", "http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Router wires every route onto a new gin engine.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/register", h.register)
		v1.POST("/auth/login", h.login)

		// token in the query string, browsers cannot set headers on websockets
		v1.GET("/conversations/:id/ws", h.conversationSocket)

		authed := v1.Group("", h.requireAuth())
		authed.GET("/profiles/me", h.getMyProfile)
		authed.PUT("/profiles/me", h.putMyProfile)
		authed.GET("/profiles/:id", h.getProfile)
		authed.GET("/profiles", h.browseProfiles)

		authed.POST("/connections", h.requestConnection)
		authed.GET("/connections", h.listConnections)
		authed.GET("/connections/status/:user_id", h.connectionStatus)
		authed.POST("/connections/:id/accept", h.acceptConnection)

		authed.POST("/conversations", h.openConversation)
		authed.GET("/conversations", h.listConversations)
		authed.GET("/conversations/:id/messages", h.listMessages)
		authed.POST("/conversations/:id/messages", h.limitSends(), h.sendMessage)
		authed.POST("/conversations/:id/read", h.markRead)

		authed.GET("/notifications", h.listNotifications)
		authed.POST("/notifications/read", h.markNotificationsRead)
	}
	return r
}

func (h *Handler) health(c *gin.Context) {
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

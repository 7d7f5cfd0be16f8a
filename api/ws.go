package api

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rishta/apperr"
	"rishta/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type wsEvent struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

// conversationSocket pushes every new message of the conversation to the
// client until either side closes. The client only needs to answer pings.
func (h *Handler) conversationSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c)
	}
	if token == "" {
		abortWithError(c, apperr.New(apperr.CodeNotAuthenticated, "missing token"))
		return
	}
	sess, err := h.ident.Verify(token)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		ws    *websocket.Conn
		wmu   sync.Mutex
		ready = make(chan struct{})
	)
	// Subscribe before upgrading so a non-participant still gets a plain
	// HTTP error. Deliveries wait until the socket exists.
	sub, err := h.svc.SubscribeToNewMessages(ctx, sess, c.Param("id"), func(m models.Message) {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
		wmu.Lock()
		defer wmu.Unlock()
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(wsEvent{Type: "message", Message: m}); err != nil {
			h.logger.Debug("websocket write failed", "user_id", sess.UserID, "error", err)
			cancel()
		}
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer sub.Cancel()

	ws, err = h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	close(ready)

	log := h.logger.With("user_id", sess.UserID, "conversation_id", c.Param("id"))
	log.Info("websocket connected")
	defer log.Info("websocket closed")

	go keepAlive(ctx, ws, pingPeriod, cancel)

	ws.SetReadLimit(1024)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// keepAlive pings ws every period and closes it once ctx is done, which
// also unblocks a pending read. A failed ping cancels ctx.
func keepAlive(ctx context.Context, ws *websocket.Conn, period time.Duration, cancel context.CancelFunc) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer ws.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cancel()
				return
			}
		}
	}
}

package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"rishta/apperr"
	"rishta/identity"
	"rishta/metrics"
)

const sessionKey = "session"

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()

		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			h.logger.Error("request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		h.logger.Info("request", attrs...)
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortWithError(c, apperr.New(apperr.CodeNotAuthenticated, "missing token"))
			return
		}
		sess, err := h.ident.Verify(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// session returns the caller set by requireAuth, or the zero Session.
func session(c *gin.Context) identity.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return identity.Session{}
	}
	sess, _ := v.(identity.Session)
	return sess
}

// userLimits hands out one token bucket per user.
type userLimits struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimits(perSecond float64, burst int) *userLimits {
	if burst <= 0 {
		burst = 1
	}
	return &userLimits{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *userLimits) allow(userID string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (h *Handler) limitSends() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limits.allow(session(c).UserID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Code:    "RATE_LIMITED",
				Message: "too many messages, slow down",
			}})
			return
		}
		c.Next()
	}
}

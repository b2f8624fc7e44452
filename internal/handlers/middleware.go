package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestId"
)

// requestIDMiddleware tags every request with an id, reusing the caller's if present.
func (h *Handler) requestIDMiddleware(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(requestIDHeader, id)
	c.Next()
}

// commandRateLimit keeps a misbehaving client from flooding the control socket.
func (h *Handler) commandRateLimit(c *gin.Context) {
	if !h.commands.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "too many commands, slow down",
		})
		return
	}
	c.Next()
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

package handlers

import (
	"stablemint-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades clients onto the push stream.
type WebSocketHandler struct {
	push *services.WebSocketPushService
}

// NewWebSocketHandler creates the handler.
func NewWebSocketHandler(push *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{push: push}
}

// ConnectHandler upgrades the request.
// GET /ws
func (h *WebSocketHandler) ConnectHandler(c *gin.Context) {
	if err := h.push.HandleUpgrade(c.Writer, c.Request); err != nil {
		// The upgrader already wrote the error response.
		c.Abort()
		return
	}
}

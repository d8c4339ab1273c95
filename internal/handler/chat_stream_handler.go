package handler

import (
	"strings"

	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/pkg/serverutils"
	internalWS "ai-chatflow-be/internal/websocket"
	"ai-chatflow-be/pkg/chat/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ChatStreamHandler upgrades an authenticated request to the conversation event stream.
type ChatStreamHandler struct {
	hub       *internalWS.Hub
	sessions  *session.Manager
	jwtSecret string
	logger    logger.ILogger
}

func NewChatStreamHandler(hub *internalWS.Hub, sessions *session.Manager, jwtSecret string, log logger.ILogger) *ChatStreamHandler {
	return &ChatStreamHandler{
		hub:       hub,
		sessions:  sessions,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *ChatStreamHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/chat/v1/ws", h.ServeWs)
}

// ServeWs accepts the token as ?token= (browsers can't set headers on upgrade) or as a Bearer header.
func (h *ChatStreamHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
	}

	userID, err := serverutils.ParseUserToken(h.jwtSecret, tokenStr)
	if err != nil {
		h.logger.Warn("ChatStreamHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// Events are emitted by the session store, so make sure one exists before listening.
	if _, err := h.sessions.Store(c.UserContext(), userID); err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ChatStreamHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("ChatStreamHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

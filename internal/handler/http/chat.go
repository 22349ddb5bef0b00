package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collabboard/internal/domain"
	"collabboard/internal/middleware"
	"collabboard/internal/service"
)

// ChatHandler 会话相关的 HTTP 接口，与 WebSocket 事件共用 DeliveryService
type ChatHandler struct {
	delivery *service.DeliveryService
}

func NewChatHandler(delivery *service.DeliveryService) *ChatHandler {
	if delivery == nil {
		panic("DeliveryService cannot be nil for ChatHandler")
	}
	return &ChatHandler{delivery: delivery}
}

// SendMessageRequest POST /api/chats/:chatId/messages 的请求体
type SendMessageRequest struct {
	Content  string `json:"content" binding:"required"`
	ClientID string `json:"client_id"`
}

type UnreadResponse struct {
	ChatID string `json:"chat_id"`
	Unread int    `json:"unread"`
}

type MarkReadResponse struct {
	ChatID string   `json:"chat_id"`
	Read   []string `json:"read"`
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		logrus.Warn("Handler: User ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
	}
	return userID, ok
}

// Unread GET /api/chats/:chatId/unread
func (h *ChatHandler) Unread(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID := c.Param("chatId")
	n, err := h.delivery.UnreadCount(c.Request.Context(), chatID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, UnreadResponse{ChatID: chatID, Unread: n})
}

// History GET /api/chats/:chatId/messages?limit=50
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ErrorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	msgs, err := h.delivery.History(c.Request.Context(), c.Param("chatId"), userID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"messages": msgs})
}

// Send POST /api/chats/:chatId/messages
func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "content is required")
		return
	}
	msg, err := h.delivery.Send(c.Request.Context(), service.Origin{UserID: userID}, c.Param("chatId"), req.Content, req.ClientID)
	if errors.Is(err, service.ErrMessageNotPersisted) && msg != nil {
		// 消息已实时投递但未落库，客户端可用相同内容重发
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": service.CodeMessageNotPersisted, "message_id": msg.ID})
		return
	}
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, msg)
}

// MarkRead POST /api/chats/:chatId/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID := c.Param("chatId")
	changes, err := h.delivery.MarkRead(c.Request.Context(), service.Origin{UserID: userID}, chatID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	read := []string{}
	for _, ch := range changes {
		read = append(read, ch.MessageIDs...)
	}
	SuccessResponse(c, http.StatusOK, MarkReadResponse{ChatID: chatID, Read: read})
}

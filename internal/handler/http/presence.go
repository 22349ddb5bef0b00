package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"collabboard/internal/service"
)

type PresenceHandler struct {
	presence *service.PresenceService
}

func NewPresenceHandler(presence *service.PresenceService) *PresenceHandler {
	if presence == nil {
		panic("PresenceService cannot be nil for PresenceHandler")
	}
	return &PresenceHandler{presence: presence}
}

type PresenceResponse struct {
	UserID   string     `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Get GET /api/presence/:userId
func (h *PresenceHandler) Get(c *gin.Context) {
	userID := c.Param("userId")
	online, lastSeen := h.presence.Status(c.Request.Context(), userID)
	resp := PresenceResponse{UserID: userID, IsOnline: online}
	if !lastSeen.IsZero() {
		resp.LastSeen = &lastSeen
	}
	SuccessResponse(c, http.StatusOK, resp)
}

type OnlineUsersResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// List GET /api/presence
func (h *PresenceHandler) List(c *gin.Context) {
	users, err := h.presence.OnlineUsers(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, OnlineUsersResponse{Users: users, Count: len(users)})
}

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collabboard/internal/domain"
	"collabboard/internal/middleware"
	"collabboard/internal/registry"
	"collabboard/internal/repository"
	"collabboard/internal/repository/mocks"
	"collabboard/internal/service"
)

// nopNotifier 丢弃所有出站事件
type nopNotifier struct{}

func (nopNotifier) SendTo([]string, domain.Envelope, domain.Delivery)       {}
func (nopNotifier) SendToUser(string, domain.Envelope, domain.Delivery) int { return 0 }
func (nopNotifier) Broadcast(domain.Envelope, domain.Delivery)             {}

type chatFixture struct {
	router   *gin.Engine
	chats    *mocks.ChatRepository
	messages *mocks.MessageRepository
}

// newChatFixture 以固定的 userID 模拟 Auth 中间件
func newChatFixture(t *testing.T, userID string) *chatFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := registry.New(registry.Conf{Grace: time.Hour})
	t.Cleanup(reg.Close)
	chats := new(mocks.ChatRepository)
	messages := new(mocks.MessageRepository)
	delivery := service.NewDeliveryService(chats, messages, reg, nopNotifier{}, nil, service.DeliveryConfig{Spawn: func(func()) {}})
	h := NewChatHandler(delivery)

	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	})
	api.GET("/chats/:chatId/unread", h.Unread)
	api.GET("/chats/:chatId/messages", h.History)
	api.POST("/chats/:chatId/messages", h.Send)
	api.POST("/chats/:chatId/read", h.MarkRead)
	return &chatFixture{router: r, chats: chats, messages: messages}
}

func (f *chatFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func twoPartyChat() *domain.Chat {
	return &domain.Chat{ID: "c1", Members: []domain.ChatMember{{ChatID: "c1", UserID: "alice"}, {ChatID: "c1", UserID: "bob"}}}
}

func TestChatHandler_Unauthenticated(t *testing.T) {
	f := newChatFixture(t, "")

	w := f.do(nethttp.MethodGet, "/api/chats/c1/unread", nil)

	assert.Equal(t, nethttp.StatusUnauthorized, w.Code)
}

func TestChatHandler_Unread(t *testing.T) {
	// Arrange
	f := newChatFixture(t, "bob")
	f.chats.On("FindByID", mock.Anything, "c1").Return(twoPartyChat(), nil).Once()
	f.chats.On("UnreadCount", mock.Anything, "c1", "bob").Return(3, nil).Once()

	// Act
	w := f.do(nethttp.MethodGet, "/api/chats/c1/unread", nil)

	// Assert
	require.Equal(t, nethttp.StatusOK, w.Code)
	var resp UnreadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, UnreadResponse{ChatID: "c1", Unread: 3}, resp)
	f.chats.AssertExpectations(t)
}

func TestChatHandler_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name     string
		user     string
		repoErr  error
		chat     *domain.Chat
		expected int
	}{
		{name: "Chat not found", user: "bob", repoErr: repository.ErrChatNotFound, expected: nethttp.StatusNotFound},
		{name: "Not a participant", user: "mallory", chat: twoPartyChat(), expected: nethttp.StatusForbidden},
		{name: "Repository failure", user: "bob", repoErr: errors.New("db down"), expected: nethttp.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newChatFixture(t, tc.user)
			f.chats.On("FindByID", mock.Anything, "c1").Return(tc.chat, tc.repoErr).Once()

			w := f.do(nethttp.MethodGet, "/api/chats/c1/unread", nil)

			assert.Equal(t, tc.expected, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			if tc.expected == nethttp.StatusNotFound {
				assert.Equal(t, service.CodeChatNotFound, body["code"])
			}
		})
	}
}

func TestChatHandler_Send(t *testing.T) {
	// Arrange
	f := newChatFixture(t, "alice")
	f.chats.On("FindByID", mock.Anything, "c1").Return(twoPartyChat(), nil).Once()
	f.messages.On("Create", mock.Anything, mock.AnythingOfType("*domain.Message"), mock.Anything).Return(nil).Once()

	// Act
	w := f.do(nethttp.MethodPost, "/api/chats/c1/messages", SendMessageRequest{Content: "hello", ClientID: "tmp-1"})

	// Assert
	require.Equal(t, nethttp.StatusCreated, w.Code)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, domain.StatusSent, msg.Status, "bob 离线")
	f.messages.AssertExpectations(t)
}

func TestChatHandler_SendNotPersisted(t *testing.T) {
	f := newChatFixture(t, "alice")
	f.chats.On("FindByID", mock.Anything, "c1").Return(twoPartyChat(), nil).Once()
	f.messages.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	w := f.do(nethttp.MethodPost, "/api/chats/c1/messages", SendMessageRequest{Content: "hello"})

	require.Equal(t, nethttp.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, service.CodeMessageNotPersisted, body["code"])
	assert.NotEmpty(t, body["message_id"])
}

func TestChatHandler_SendValidation(t *testing.T) {
	f := newChatFixture(t, "alice")

	w := f.do(nethttp.MethodPost, "/api/chats/c1/messages", map[string]string{})
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)

	w = f.do(nethttp.MethodPost, "/api/chats/c1/messages", SendMessageRequest{Content: "   "})
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	f.chats.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestChatHandler_History(t *testing.T) {
	f := newChatFixture(t, "alice")
	msgs := []domain.Message{{ID: "m2", ChatID: "c1", Content: "b"}, {ID: "m1", ChatID: "c1", Content: "a"}}
	f.chats.On("FindByID", mock.Anything, "c1").Return(twoPartyChat(), nil).Once()
	f.messages.On("ListByChat", mock.Anything, "c1", 2).Return(msgs, nil).Once()

	w := f.do(nethttp.MethodGet, "/api/chats/c1/messages?limit=2", nil)

	require.Equal(t, nethttp.StatusOK, w.Code)
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "m2", resp.Messages[0].ID)

	w = f.do(nethttp.MethodGet, "/api/chats/c1/messages?limit=zero", nil)
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
}

func TestChatHandler_MarkRead(t *testing.T) {
	f := newChatFixture(t, "bob")
	f.chats.On("FindByID", mock.Anything, "c1").Return(twoPartyChat(), nil).Once()
	f.messages.On("MarkRead", mock.Anything, "c1", "bob", mock.AnythingOfType("time.Time")).Return([]domain.StatusChange{
		{SenderID: "alice", RecipientID: "bob", MessageIDs: []string{"m1", "m2"}, Status: domain.StatusRead},
	}, nil).Once()

	w := f.do(nethttp.MethodPost, "/api/chats/c1/read", nil)

	require.Equal(t, nethttp.StatusOK, w.Code)
	var resp MarkReadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"m1", "m2"}, resp.Read)
	f.messages.AssertExpectations(t)
}

func TestPresenceHandler_Get(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	reg := registry.New(registry.Conf{Grace: time.Hour})
	t.Cleanup(reg.Close)
	repo := new(mocks.PresenceRepository)
	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.On("LastSeen", mock.Anything, "alice").Return(seen, nil).Once()
	repo.On("LastSeen", mock.Anything, "ghost").Return(time.Time{}, repository.ErrNotFound).Once()
	h := NewPresenceHandler(service.NewPresenceService(reg, nopNotifier{}, repo, nil))
	r := gin.New()
	r.GET("/api/presence/:userId", h.Get)

	// Act
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/api/presence/alice", nil))

	// Assert
	require.Equal(t, nethttp.StatusOK, w.Code)
	var resp PresenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsOnline)
	require.NotNil(t, resp.LastSeen)
	assert.True(t, seen.Equal(*resp.LastSeen))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/api/presence/ghost", nil))
	var ghost PresenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ghost))
	assert.Nil(t, ghost.LastSeen)
}

func TestPresenceHandler_List(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	reg := registry.New(registry.Conf{})
	t.Cleanup(reg.Close)
	repo := new(mocks.PresenceRepository)
	repo.On("OnlineUsers", mock.Anything).Return([]string{"alice", "bob"}, nil).Once()
	repo.On("OnlineUsers", mock.Anything).Return(nil, errors.New("redis down")).Once()
	h := NewPresenceHandler(service.NewPresenceService(reg, nopNotifier{}, repo, nil))
	r := gin.New()
	r.GET("/api/presence", h.List)

	// Act
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/api/presence", nil))

	// Assert
	require.Equal(t, nethttp.StatusOK, w.Code)
	var resp OnlineUsersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"alice", "bob"}, resp.Users)
	assert.Equal(t, 2, resp.Count)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/api/presence", nil))
	assert.Equal(t, nethttp.StatusInternalServerError, w.Code)
	repo.AssertExpectations(t)
}

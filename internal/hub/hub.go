package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collabboard/internal/domain"
	"collabboard/internal/metrics"
	"collabboard/internal/registry"
	"collabboard/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 一次 stroke-complete 可能包含上千个点。
	maxMessageSize = 256 * 1024

	// 单个入站事件的处理超时
	dispatchTimeout = 10 * time.Second
)

// Hub 维护活跃连接表，把入站事件分发给服务层，并实现 service.Notifier 完成出站投递。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	registry   registry.Registry
	whiteboard *service.WhiteboardService
	delivery   *service.DeliveryService
	metrics    *metrics.Metrics
	log        *logrus.Entry
}

// NewHub 创建 Hub。服务层依赖 Hub 作为 Notifier，因此服务通过 Attach 在之后注入。
func NewHub(reg registry.Registry, m *metrics.Metrics) *Hub {
	if reg == nil {
		panic("Registry cannot be nil for Hub")
	}
	return &Hub{
		clients:  make(map[string]*Client),
		registry: reg,
		metrics:  m,
		log:      logrus.WithField("component", "hub"),
	}
}

// Attach 注入事件处理服务，必须在接受连接前调用
func (h *Hub) Attach(whiteboard *service.WhiteboardService, delivery *service.DeliveryService) {
	if whiteboard == nil {
		panic("WhiteboardService cannot be nil for Hub")
	}
	if delivery == nil {
		panic("DeliveryService cannot be nil for Hub")
	}
	h.whiteboard = whiteboard
	h.delivery = delivery
}

// Register 登记已通过认证的连接并通知注册表
func (h *Hub) Register(c *Client) {
	if c == nil {
		h.log.Error("Attempted to register a nil client")
		return
	}
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.registry.Register(c.userID, c.id)
	h.updateGauges(n)
	c.log.Info("Client registered to Hub")
}

// Unregister 移除连接：离开所有房间，关闭发送队列，并通知注册表。重复调用是安全的。
func (h *Hub) Unregister(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.closeSend()
	if h.whiteboard != nil {
		h.whiteboard.Disconnect(c.id)
	}
	h.registry.Unregister(c.userID, c.id)
	h.updateGauges(n)
	c.log.Info("Client unregistered from Hub")
}

func (h *Hub) updateGauges(connections int) {
	h.metrics.SetConnections(connections)
	if s, ok := h.registry.(interface{ Stats() (int, int) }); ok {
		users, _ := s.Stats()
		h.metrics.SetOnlineUsers(users)
	}
}

// Len 当前连接数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) lookup(ids []string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) all() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// --- service.Notifier ---

// SendTo 向指定连接投递。未知连接被忽略。
func (h *Hub) SendTo(ids []string, env domain.Envelope, class domain.Delivery) {
	h.deliver(h.lookup(ids), env, class)
}

// SendToUser 向用户的所有连接投递
func (h *Hub) SendToUser(userID string, env domain.Envelope, class domain.Delivery) int {
	targets := h.lookup(h.registry.ConnectionsFor(userID))
	h.deliver(targets, env, class)
	return len(targets)
}

// Broadcast 向所有连接投递
func (h *Hub) Broadcast(env domain.Envelope, class domain.Delivery) {
	h.deliver(h.all(), env, class)
}

func (h *Hub) deliver(targets []*Client, env domain.Envelope, class domain.Delivery) {
	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).WithField("type", env.Type).Error("Failed to marshal outbound event")
		return
	}
	for _, c := range targets {
		if c.enqueue(data) {
			continue
		}
		h.metrics.DroppedFrame(class.String())
		if class == domain.BestEffort {
			c.log.WithField("type", env.Type).Debug("Client send channel full, best-effort frame dropped")
			continue
		}
		h.evict(c, env.Type)
	}
}

// evict 可靠帧无法入队时断开慢连接，客户端重连后通过快照重同步。
// 注销异步进行，调用方可能正持有服务层的锁。
func (h *Hub) evict(c *Client, eventType string) {
	if !c.markEvicted() {
		return
	}
	h.metrics.SlowEviction()
	c.log.WithField("type", eventType).Warn("Client send channel full on reliable frame, evicting slow consumer")
	go func() {
		c.closeConn(websocket.ClosePolicyViolation, "slow consumer")
		h.Unregister(c)
	}()
}

// Close 关闭全部连接
func (h *Hub) Close() {
	for _, c := range h.all() {
		c.closeConn(websocket.CloseGoingAway, "server shutting down")
		h.Unregister(c)
	}
	h.log.Info("Hub closed all client connections")
}

// --- 入站事件 ---

type addPageRequest struct {
	Page  domain.Page `json:"page"`
	Index *int        `json:"index"`
}

// Dispatch 处理一个入站帧。同一连接的帧由 ReadPump 依次调用，保证按接收顺序处理。
func (h *Hub) Dispatch(c *Client, raw []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		c.log.WithError(err).Debug("Malformed frame from client")
		h.sendError(c, "", service.ErrInvalidEvent, "")
		return
	}
	h.metrics.InboundEvent(env.Type)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	o := service.Origin{ConnectionID: c.id, UserID: c.userID}
	decode := func(v interface{}) error {
		if err := env.DecodePayload(v); err != nil {
			return fmt.Errorf("%w: %v", service.ErrInvalidEvent, err)
		}
		return nil
	}

	var err error
	switch env.Type {
	case domain.EventJoinRoom:
		_, err = h.whiteboard.Join(ctx, o, env.RoomID)
	case domain.EventLeaveRoom:
		err = h.whiteboard.Leave(o, env.RoomID)
	case domain.EventCursor:
		var p domain.CursorPayload
		if err = decode(&p); err == nil {
			h.whiteboard.MoveCursor(o, env.RoomID, domain.Cursor{X: p.X, Y: p.Y})
		}
	case domain.EventStrokeSegment:
		var p domain.Segment
		if err = decode(&p); err == nil {
			err = h.whiteboard.Segment(o, env.RoomID, p)
		}
	case domain.EventStrokeDone:
		var p domain.StrokePayload
		if err = decode(&p); err == nil {
			_, err = h.whiteboard.CommitStroke(ctx, o, env.RoomID, p.Stroke)
		}
	case domain.EventErase:
		var p domain.ErasePayload
		if err = decode(&p); err == nil {
			err = h.whiteboard.Erase(ctx, o, env.RoomID, p.StrokeID)
		}
	case domain.EventClear:
		err = h.whiteboard.Clear(ctx, o, env.RoomID)
	case domain.EventSetActivePage:
		var p domain.SetActivePagePayload
		if err = decode(&p); err == nil {
			if p.Index == nil {
				err = service.ErrInvalidEvent
			} else {
				err = h.whiteboard.SetActivePage(o, env.RoomID, *p.Index)
			}
		}
	case domain.EventAddPage:
		var p addPageRequest
		if len(env.Payload) > 0 {
			err = decode(&p)
		}
		if err == nil {
			index := -1
			if p.Index != nil {
				index = *p.Index
			}
			err = h.whiteboard.AddPage(o, env.RoomID, p.Page, index)
		}
	case domain.EventSendMessage:
		var p domain.SendMessagePayload
		if err = decode(&p); err == nil {
			_, err = h.delivery.Send(ctx, o, env.ChatID, p.Content, p.ClientID)
			if errors.Is(err, service.ErrMessageNotPersisted) {
				// 已由投递引擎通知发送者
				err = nil
			}
		}
	case domain.EventMarkChatRead:
		_, err = h.delivery.MarkRead(ctx, o, env.ChatID)
	default:
		c.log.WithField("type", env.Type).Debug("Unknown event type")
		err = service.ErrInvalidEvent
	}

	if err != nil {
		h.sendError(c, env.Type, err, env.RoomID)
	}
}

func (h *Hub) sendError(c *Client, eventType string, err error, roomID string) {
	code := service.ErrorCode(err)
	env, mErr := domain.NewEnvelope(domain.EventError, domain.ErrorPayload{Code: code, Message: err.Error()})
	if mErr != nil {
		return
	}
	env.RoomID = roomID
	c.log.WithFields(logrus.Fields{"type": eventType, "code": code}).WithError(err).Debug("Event rejected")
	h.deliver([]*Client{c}, env, domain.Reliable)
}

package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultSendQueue 每个连接出站队列的容量
const DefaultSendQueue = 256

// Client 代表一个已认证的 WebSocket 连接。
// 同一用户的每个标签页都是独立的 Client，拥有各自的连接 ID。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	userID string
	send   chan []byte
	log    *logrus.Entry

	mu      sync.Mutex
	closed  bool
	evicted bool
}

// NewClient 创建一个新的 Client 实例。queue <= 0 时使用 DefaultSendQueue。
func NewClient(hub *Hub, conn *websocket.Conn, userID string, queue int) *Client {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	id := uuid.NewString()
	return &Client{
		hub:    hub,
		conn:   conn,
		id:     id,
		userID: userID,
		send:   make(chan []byte, queue),
		log:    logrus.WithFields(logrus.Fields{"user_id": userID, "connection_id": id}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Run 注册到 Hub 并启动读写 goroutine
func (c *Client) Run() {
	c.hub.Register(c)
	go c.WritePump()
	go c.ReadPump()
}

// enqueue 非阻塞地放入发送队列，队列已满或已关闭时返回 false
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送队列，WritePump 随之退出
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) markEvicted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.evicted || c.closed {
		return false
	}
	c.evicted = true
	return true
}

func (c *Client) closeConn(code int, reason string) {
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// ReadPump 从 WebSocket 读取事件并交给 Hub 依次处理。
// 它在自己的 goroutine 中运行，退出时注销连接。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.log.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.log.Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.hub.Dispatch(c, message)
	}
}

// WritePump 将发送队列中的帧写入 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了发送队列
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

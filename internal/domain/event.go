package domain

import (
	"encoding/json"
	"fmt"
)

// 客户端 -> 服务端
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventCursor        = "cursor"
	EventStrokeSegment = "stroke-begin-segment"
	EventStrokeDone    = "stroke-complete"
	EventErase         = "erase"
	EventClear         = "clear"
	EventSetActivePage = "set-active-page"
	EventAddPage       = "add-page"
	EventSendMessage   = "send-message"
	EventMarkChatRead  = "mark-chat-read"
)

// 服务端 -> 客户端
const (
	EventRoomSnapshot      = "room-snapshot"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventCursorMoved       = "cursor"
	EventSegmentBroadcast  = "stroke-segment"
	EventStrokeBroadcast   = "stroke-broadcast"
	EventEraseBroadcast    = "erase-broadcast"
	EventRoomCleared       = "room-cleared"
	EventActivePageChanged = "active-page-changed"
	EventPageAdded         = "page-added"
	EventPresenceChanged   = "presence-changed"
	EventMessageReceived   = "message-received"
	EventMessageAck        = "message-ack"
	EventMessageStatus     = "message-status-changed"
	EventError             = "error"
)

// Delivery 出站事件的投递等级
type Delivery int

const (
	// BestEffort 队列满时直接丢弃 (光标、进行中的线段、在线状态)
	BestEffort Delivery = iota
	// Reliable 队列满时断开慢连接，由客户端重连后重同步
	Reliable
)

func (d Delivery) String() string {
	if d == Reliable {
		return "reliable"
	}
	return "best_effort"
}

// Envelope 是线上所有 JSON 帧的外层结构
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	ChatID  string          `json:"chat_id,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope 构造带 payload 的事件
func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	env := Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env.Payload = raw
	return env, nil
}

// DecodePayload 将 payload 解析到 v，payload 为空时返回错误
func (e Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Type, err)
	}
	return nil
}

// --- payloads ---

type CursorPayload struct {
	ConnectionID string  `json:"connection_id,omitempty"`
	UserID       string  `json:"user_id,omitempty"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

type SegmentPayload struct {
	ConnectionID string `json:"connection_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Segment
}

type StrokePayload struct {
	Stroke Stroke `json:"stroke"`
}

type ErasePayload struct {
	StrokeID     string `json:"stroke_id"`
	ConnectionID string `json:"connection_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

type ClearPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

type SetActivePagePayload struct {
	Index        *int   `json:"index"`
	ConnectionID string `json:"connection_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

type AddPagePayload struct {
	Page         Page   `json:"page"`
	Index        int    `json:"index"`
	Pages        int    `json:"pages,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

type ParticipantPayload struct {
	Participant Participant `json:"participant"`
}

type PresencePayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

type SendMessagePayload struct {
	Content  string `json:"content"`
	ClientID string `json:"client_id,omitempty"`
}

type MessagePayload struct {
	Message  Message `json:"message"`
	ClientID string  `json:"client_id,omitempty"`
	Unread   *int    `json:"unread,omitempty"`
}

type MessageAckPayload struct {
	Message   Message `json:"message"`
	ClientID  string  `json:"client_id,omitempty"`
	Persisted bool    `json:"persisted"`
}

type MessageStatusPayload struct {
	MessageIDs  []string      `json:"message_ids"`
	Status      MessageStatus `json:"status"`
	RecipientID string        `json:"recipient_id"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

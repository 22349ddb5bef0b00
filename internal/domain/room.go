package domain

import (
	"encoding/json"
	"time"
)

// Cursor 参与者光标位置
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant 表示房间中的一个参与者。
// 以连接为粒度：同一用户在两个标签页打开同一房间时有两个独立条目。
type Participant struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	AvatarRef    string    `json:"avatar_ref,omitempty"`
	Color        string    `json:"color"`
	Cursor       Cursor    `json:"cursor"`
	JoinedAt     time.Time `json:"joined_at"`
}

// ParticipantInfo 是加入房间时由 UserDirectory 提供的展示信息
type ParticipantInfo struct {
	UserID      string
	DisplayName string
	AvatarRef   string
}

// Page 白板页面。Data 由客户端定义，服务端原样保存。
type Page struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RoomSnapshot 是加入房间时返回的重同步快照。
// 晚加入者丢弃 seq <= Seq 的后续广播即可与老成员视图一致。
type RoomSnapshot struct {
	RoomID        string        `json:"room_id"`
	Participants  []Participant `json:"participants"`
	RecentStrokes []Stroke      `json:"recent_strokes"`
	Pages         []Page        `json:"pages"`
	ActivePage    int           `json:"active_page"`
	Seq           uint64        `json:"seq"`
}

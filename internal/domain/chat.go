package domain

import "time"

// MessageStatus 消息状态，只能沿 sent -> delivered -> read 前进。
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid 报告状态是否为已知值
func (s MessageStatus) Valid() bool { return s.rank() > 0 }

// CanAdvanceTo 报告从 s 到 next 是否是一次严格前进
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Valid() && next.rank() > s.rank()
}

// Max 返回两个状态中更靠后的一个
func (s MessageStatus) Max(other MessageStatus) MessageStatus {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// Chat 表示一个会话 (私聊或群聊)。
type Chat struct {
	ID            string       `gorm:"primaryKey;size:64"`
	IsGroup       bool         `gorm:"not null;default:false"`
	LastMessageID string       `gorm:"size:64"`
	CreatedAt     time.Time    `gorm:"autoCreateTime"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime"`
	Members       []ChatMember `gorm:"foreignKey:ChatID"`
}

// ChatMember 会话成员，同时承载该成员的未读计数。
type ChatMember struct {
	ChatID      string `gorm:"primaryKey;size:64"`
	UserID      string `gorm:"primaryKey;size:64;index"`
	UnreadCount int    `gorm:"not null;default:0"`
	LastReadAt  *time.Time
}

// ParticipantIDs 返回会话全部成员的用户 ID
func (c *Chat) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasParticipant 报告 userID 是否为会话成员
func (c *Chat) HasParticipant(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Message 聊天消息。Status 是所有接收者回执的聚合：
// delivered 表示至少一个接收者已收到，read 表示至少一个接收者已读。
type Message struct {
	ID        string        `gorm:"primaryKey;size:64" json:"id"`
	ChatID    string        `gorm:"size:64;index:idx_chat_created;not null" json:"chat_id"`
	SenderID  string        `gorm:"size:64;index;not null" json:"sender_id"`
	Content   string        `gorm:"type:text;not null" json:"content"`
	Status    MessageStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt time.Time     `gorm:"index:idx_chat_created;not null" json:"created_at"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"-"`
}

// MessageReceipt 每个接收者对一条消息的回执
type MessageReceipt struct {
	MessageID string        `gorm:"primaryKey;size:64"`
	UserID    string        `gorm:"primaryKey;size:64;index:idx_receipt_user_status"`
	ChatID    string        `gorm:"size:64;index;not null"`
	Status    MessageStatus `gorm:"size:16;index:idx_receipt_user_status;not null"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime"`
}

// StatusChange 描述一批消息因某个接收者而发生的状态变化，按发送者分组通知。
type StatusChange struct {
	SenderID    string
	RecipientID string
	MessageIDs  []string
	Status      MessageStatus
}

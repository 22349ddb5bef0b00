package repository

import (
	"context"
	"time"

	"collabboard/internal/domain"
)

// ChatRepository 会话与成员未读计数的持久化
type ChatRepository interface {
	// FindByID 返回会话及其成员，不存在时返回 ErrChatNotFound
	FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
	// Save 创建或更新会话及其成员
	Save(ctx context.Context, chat *domain.Chat) error
	// UnreadCount 返回 userID 在会话中的未读计数
	UnreadCount(ctx context.Context, chatID, userID string) (int, error)
}

// MessageRepository 消息、回执与未读计数在同一事务中变更
type MessageRepository interface {
	// Create 在一个事务中写入消息、每个接收者的回执，并为回执为 sent/delivered 的接收者递增未读计数。
	// 消息 ID 已存在时返回 ErrDuplicateEntry 且不做任何修改。
	Create(ctx context.Context, msg *domain.Message, receipts []domain.MessageReceipt) error
	// MarkRead 将 readerID 在会话中所有未读回执置为 read，清零其未读计数，
	// 并把聚合状态推进到 read。返回按发送者分组的变化。
	MarkRead(ctx context.Context, chatID, readerID string, at time.Time) ([]domain.StatusChange, error)
	// PendingChats 返回 userID 仍有 sent 回执的会话 ID
	PendingChats(ctx context.Context, userID string) ([]string, error)
	// MarkDelivered 将 userID 在会话中的 sent 回执推进到 delivered (上线后的补投递)，
	// 只返回本次真正推进的回执。
	MarkDelivered(ctx context.Context, chatID, userID string) ([]domain.StatusChange, error)
	// ListByChat 按创建时间倒序返回最近的消息
	ListByChat(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
}

// ActionRepository 白板事件归档
type ActionRepository interface {
	SaveBatch(ctx context.Context, actions []domain.Action) error
}

// PresenceRepository 在线标记的持久化 (尽力而为)
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID string, online bool, at time.Time) error
	LastSeen(ctx context.Context, userID string) (time.Time, error)
	OnlineUsers(ctx context.Context) ([]string, error)
}

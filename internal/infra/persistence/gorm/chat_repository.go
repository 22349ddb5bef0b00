package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collabboard/internal/domain"
	"collabboard/internal/repository"
)

// GormChatRepository 是 ChatRepository 接口的 GORM 实现
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository 创建 GormChatRepository 实例
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	if db == nil {
		panic("database connection cannot be nil for GormChatRepository")
	}
	return &GormChatRepository{db: db}
}

// FindByID 查找会话并预加载成员
func (r *GormChatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	err := r.db.WithContext(ctx).Preload("Members").Where("id = ?", chatID).First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrChatNotFound
		}
		return nil, fmt.Errorf("gorm: find chat by id '%s': %w", chatID, err)
	}
	return &chat, nil
}

// Save 创建或更新会话，新成员以零未读加入，已有成员的计数保持不变
func (r *GormChatRepository) Save(ctx context.Context, chat *domain.Chat) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Save(chat).Error; err != nil {
			return err
		}
		for i := range chat.Members {
			chat.Members[i].ChatID = chat.ID
		}
		if len(chat.Members) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&chat.Members).Error
	})
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save chat '%s': %w", chat.ID, err)
	}
	return nil
}

// UnreadCount 返回成员的未读计数
func (r *GormChatRepository) UnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	var member domain.ChatMember
	err := r.db.WithContext(ctx).Where("chat_id = ? AND user_id = ?", chatID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("gorm: unread count for chat '%s' user '%s': %w", chatID, userID, err)
	}
	return member.UnreadCount, nil
}

package gormpersistence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"collabboard/internal/domain"
	"collabboard/internal/repository"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现。
// 消息状态、回执与未读计数总在同一事务中修改。
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

var unreadStatuses = []domain.MessageStatus{domain.StatusSent, domain.StatusDelivered}

// Create 写入消息与回执，并为尚未读的接收者递增未读计数
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message, receipts []domain.MessageReceipt) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		unread := make([]string, 0, len(receipts))
		for i := range receipts {
			receipts[i].MessageID = msg.ID
			receipts[i].ChatID = msg.ChatID
			if receipts[i].Status != domain.StatusRead {
				unread = append(unread, receipts[i].UserID)
			}
		}
		if len(receipts) > 0 {
			if err := tx.Create(&receipts).Error; err != nil {
				return err
			}
		}
		if len(unread) > 0 {
			err := tx.Model(&domain.ChatMember{}).
				Where("chat_id = ? AND user_id IN ?", msg.ChatID, unread).
				UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
			if err != nil {
				return err
			}
		}
		return tx.Model(&domain.Chat{}).Where("id = ?", msg.ChatID).Update("last_message_id", msg.ID).Error
	})
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create message '%s' in chat '%s': %w", msg.ID, msg.ChatID, err)
	}
	return nil
}

// MarkRead 读者的全部未读回执置为 read，聚合状态推进到 read，未读计数清零
func (r *GormMessageRepository) MarkRead(ctx context.Context, chatID, readerID string, at time.Time) ([]domain.StatusChange, error) {
	var changes []domain.StatusChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var receipts []domain.MessageReceipt
		err := tx.Where("chat_id = ? AND user_id = ? AND status IN ?", chatID, readerID, unreadStatuses).
			Find(&receipts).Error
		if err != nil {
			return err
		}
		if len(receipts) > 0 {
			ids := receiptMessageIDs(receipts)
			err = tx.Model(&domain.MessageReceipt{}).
				Where("user_id = ? AND message_id IN ?", readerID, ids).
				Update("status", domain.StatusRead).Error
			if err != nil {
				return err
			}
			err = tx.Model(&domain.Message{}).
				Where("id IN ? AND status <> ?", ids, domain.StatusRead).
				Update("status", domain.StatusRead).Error
			if err != nil {
				return err
			}
			if changes, err = groupBySender(tx, ids, readerID, domain.StatusRead); err != nil {
				return err
			}
		}
		// 即使没有未读回执也清零，让漂移的计数在下一次成功调用时自我修正
		return tx.Model(&domain.ChatMember{}).
			Where("chat_id = ? AND user_id = ?", chatID, readerID).
			Updates(map[string]interface{}{"unread_count": 0, "last_read_at": at}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: mark chat '%s' read for '%s': %w", chatID, readerID, err)
	}
	return changes, nil
}

// PendingChats 返回 userID 仍有 sent 回执的会话，按 ID 排序
func (r *GormMessageRepository) PendingChats(ctx context.Context, userID string) ([]string, error) {
	var chatIDs []string
	err := r.db.WithContext(ctx).Model(&domain.MessageReceipt{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusSent).
		Distinct("chat_id").Order("chat_id asc").Pluck("chat_id", &chatIDs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list pending chats for '%s': %w", userID, err)
	}
	return chatIDs, nil
}

// MarkDelivered 把 userID 在会话中的 sent 回执推进到 delivered，未读计数不变。
// 只报告本次真正推进的回执；已被并发推进到 read 的不会出现在结果中。
func (r *GormMessageRepository) MarkDelivered(ctx context.Context, chatID, userID string) ([]domain.StatusChange, error) {
	var changes []domain.StatusChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var receipts []domain.MessageReceipt
		err := tx.Where("chat_id = ? AND user_id = ? AND status = ?", chatID, userID, domain.StatusSent).
			Find(&receipts).Error
		if err != nil {
			return err
		}
		if len(receipts) == 0 {
			return nil
		}
		ids := receiptMessageIDs(receipts)
		res := tx.Model(&domain.MessageReceipt{}).
			Where("user_id = ? AND message_id IN ? AND status = ?", userID, ids, domain.StatusSent).
			Update("status", domain.StatusDelivered)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if res.RowsAffected < int64(len(ids)) {
			var promoted []domain.MessageReceipt
			err := tx.Where("user_id = ? AND message_id IN ? AND status = ?", userID, ids, domain.StatusDelivered).
				Find(&promoted).Error
			if err != nil {
				return err
			}
			ids = receiptMessageIDs(promoted)
		}

		var msgs []domain.Message
		if err := tx.Select("id", "status").Where("id IN ?", ids).Find(&msgs).Error; err != nil {
			return err
		}
		advance := make([]string, 0, len(msgs))
		for _, m := range msgs {
			if m.Status.CanAdvanceTo(domain.StatusDelivered) {
				advance = append(advance, m.ID)
			}
		}
		if len(advance) > 0 {
			err = tx.Model(&domain.Message{}).
				Where("id IN ? AND status = ?", advance, domain.StatusSent).
				Update("status", domain.StatusDelivered).Error
			if err != nil {
				return err
			}
		}
		changes, err = groupBySender(tx, ids, userID, domain.StatusDelivered)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: mark pending delivered in chat '%s' for '%s': %w", chatID, userID, err)
	}
	return changes, nil
}

// ListByChat 最近的 limit 条消息，新 -> 旧
func (r *GormMessageRepository) ListByChat(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []domain.Message
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("created_at desc").Order("id desc").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list messages for chat '%s': %w", chatID, err)
	}
	return msgs, nil
}

func receiptMessageIDs(receipts []domain.MessageReceipt) []string {
	ids := make([]string, 0, len(receipts))
	for _, rc := range receipts {
		ids = append(ids, rc.MessageID)
	}
	return ids
}

// groupBySender 按发送者分组，组内按消息创建顺序排列
func groupBySender(tx *gorm.DB, ids []string, recipientID string, status domain.MessageStatus) ([]domain.StatusChange, error) {
	var msgs []domain.Message
	err := tx.Select("id", "sender_id", "created_at").Where("id IN ?", ids).
		Order("created_at asc").Order("id asc").Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	bySender := make(map[string]*domain.StatusChange)
	for _, m := range msgs {
		c, ok := bySender[m.SenderID]
		if !ok {
			c = &domain.StatusChange{SenderID: m.SenderID, RecipientID: recipientID, Status: status}
			bySender[m.SenderID] = c
		}
		c.MessageIDs = append(c.MessageIDs, m.ID)
	}
	out := make([]domain.StatusChange, 0, len(bySender))
	for _, c := range bySender {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out, nil
}

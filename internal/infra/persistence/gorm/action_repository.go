package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"collabboard/internal/domain"
)

// GormActionRepository 是 ActionRepository 接口的 GORM 实现 (白板事件归档)
type GormActionRepository struct {
	db *gorm.DB
}

// NewGormActionRepository 创建 GormActionRepository 实例
func NewGormActionRepository(db *gorm.DB) *GormActionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormActionRepository")
	}
	return &GormActionRepository{db: db}
}

// SaveBatch 批量写入归档记录
func (r *GormActionRepository) SaveBatch(ctx context.Context, actions []domain.Action) error {
	if len(actions) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&actions).Error; err != nil {
		return fmt.Errorf("gorm: failed to save action batch (size %d): %w", len(actions), err)
	}
	return nil
}

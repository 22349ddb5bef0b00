package repository

import (
	"context"

	"collabboard/internal/domain"
)

// UserRepository 只读的用户目录，用于填充房间参与者的展示信息。
type UserRepository interface {
	// FindByID 用户不存在时返回 ErrUserNotFound
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

package domain

import "time"

// User 是 UserDirectory 中的用户展示信息 (只读)。
type User struct {
	ID          string    `gorm:"primaryKey;size:64"`
	DisplayName string    `gorm:"size:191;not null"`
	AvatarRef   string    `gorm:"size:512"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

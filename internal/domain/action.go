package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// 归档操作类型
const (
	ActionStroke = "stroke"
	ActionErase  = "erase"
	ActionClear  = "clear"
)

// Action 是白板事件的归档记录。实时状态以内存为准，归档只是最终一致的副本。
type Action struct {
	ID         uint      `gorm:"primaryKey"`
	RoomID     string    `gorm:"size:64;index;not null"`
	UserID     string    `gorm:"size:64;index;not null"`
	ActionType string    `gorm:"size:50;not null"`
	StrokeID   string    `gorm:"size:64;index"`
	Data       string    `gorm:"type:text"`
	Seq        uint64    `gorm:"not null"`
	OccurredAt time.Time `gorm:"index;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// ParseStroke 将 Data 解析为 Stroke，只对 stroke 类型有意义。
func (a *Action) ParseStroke() (Stroke, error) {
	var s Stroke
	if a.ActionType != ActionStroke {
		return s, fmt.Errorf("action type %s carries no stroke", a.ActionType)
	}
	if a.Data == "" {
		return s, fmt.Errorf("action data is empty for action type %s", a.ActionType)
	}
	if err := json.Unmarshal([]byte(a.Data), &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal stroke data: %w", err)
	}
	return s, nil
}

// SetStroke 序列化 Stroke 到 Data
func (a *Action) SetStroke(s Stroke) error {
	bytes, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal stroke data: %w", err)
	}
	a.Data = string(bytes)
	a.StrokeID = s.ID
	return nil
}

package domain

import "time"

// Point 画板坐标点
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeStyle 笔画样式，服务端不解释其含义，只做透传。
type StrokeStyle struct {
	Color   string  `json:"color,omitempty"`
	Width   float64 `json:"width,omitempty"`
	Tool    string  `json:"tool,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
}

// Stroke 是一次已提交的笔画 (stroke-complete)。
// 创建后不可变，删除通过 erase 事件表达。
type Stroke struct {
	ID                 string      `json:"id"`
	Points             []Point     `json:"points"`
	Style              StrokeStyle `json:"style"`
	Page               int         `json:"page"`
	OriginConnectionID string      `json:"origin_connection_id"`
	UserID             string      `json:"user_id"`
	Timestamp          time.Time   `json:"timestamp"`
	Seq                uint64      `json:"seq"` // 房间内单调递增的服务端序号
}

// Segment 是绘制过程中的临时线段，只做尽力广播，不进入房间日志。
type Segment struct {
	StrokeID string      `json:"stroke_id,omitempty"`
	Points   []Point     `json:"points"`
	Style    StrokeStyle `json:"style"`
}

package roomstate

import "collabboard/internal/domain"

// StrokeLog 固定容量的笔画环形缓冲，满时淘汰最旧的条目。
type StrokeLog struct {
	buf  []domain.Stroke
	head int // 最旧条目的位置
	size int
}

// NewStrokeLog capacity 必须为正
func NewStrokeLog(capacity int) *StrokeLog {
	if capacity <= 0 {
		panic("stroke log capacity must be positive")
	}
	return &StrokeLog{buf: make([]domain.Stroke, capacity)}
}

func (l *StrokeLog) idx(i int) int { return (l.head + i) % len(l.buf) }

// Len 当前条目数
func (l *StrokeLog) Len() int { return l.size }

// Cap 容量
func (l *StrokeLog) Cap() int { return len(l.buf) }

// Append 追加一条笔画，返回被淘汰的条目 (如有)
func (l *StrokeLog) Append(s domain.Stroke) (domain.Stroke, bool) {
	if l.size < len(l.buf) {
		l.buf[l.idx(l.size)] = s
		l.size++
		return domain.Stroke{}, false
	}
	evicted := l.buf[l.head]
	l.buf[l.head] = s
	l.head = (l.head + 1) % len(l.buf)
	return evicted, true
}

func (l *StrokeLog) indexOf(id string) int {
	for i := 0; i < l.size; i++ {
		if l.buf[l.idx(i)].ID == id {
			return i
		}
	}
	return -1
}

// Find 按 ID 查找笔画
func (l *StrokeLog) Find(id string) (domain.Stroke, bool) {
	if i := l.indexOf(id); i >= 0 {
		return l.buf[l.idx(i)], true
	}
	return domain.Stroke{}, false
}

// Remove 删除指定笔画并保持其余条目的顺序，不存在时返回 false
func (l *StrokeLog) Remove(id string) (domain.Stroke, bool) {
	k := l.indexOf(id)
	if k < 0 {
		return domain.Stroke{}, false
	}
	removed := l.buf[l.idx(k)]
	for i := k; i < l.size-1; i++ {
		l.buf[l.idx(i)] = l.buf[l.idx(i+1)]
	}
	l.buf[l.idx(l.size-1)] = domain.Stroke{}
	l.size--
	return removed, true
}

// Last 返回最近的 n 条笔画，按记录顺序 (旧 -> 新)
func (l *StrokeLog) Last(n int) []domain.Stroke {
	if n <= 0 || l.size == 0 {
		return []domain.Stroke{}
	}
	if n > l.size {
		n = l.size
	}
	out := make([]domain.Stroke, 0, n)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.buf[l.idx(i)])
	}
	return out
}

// All 返回全部条目
func (l *StrokeLog) All() []domain.Stroke { return l.Last(l.size) }

// Reset 清空
func (l *StrokeLog) Reset() {
	for i := range l.buf {
		l.buf[i] = domain.Stroke{}
	}
	l.head, l.size = 0, 0
}

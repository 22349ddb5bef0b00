// Package roomstate 保存白板房间的临时状态：参与者、有界笔画日志、页面与最后活跃时间。
// 状态只存在于进程内，重启后房间从空开始。
package roomstate

import (
	"sort"
	"sync"
	"time"

	"collabboard/internal/domain"

	"github.com/sirupsen/logrus"
)

const (
	DefaultCapacity          = 100
	DefaultSnapshotEvents    = 50
	DefaultSweepInterval     = 30 * time.Minute
	DefaultInactivityTimeout = time.Hour
)

var palette = []string{
	"#E53935", "#1E88E5", "#43A047", "#FB8C00", "#8E24AA",
	"#00ACC1", "#F4511E", "#3949AB", "#7CB342", "#D81B60",
}

// Store 房间状态存储。所有修改必须经由这些方法。
type Store interface {
	GetOrCreate(roomID string) domain.RoomSnapshot
	Join(roomID, connectionID string, info domain.ParticipantInfo) (domain.RoomSnapshot, domain.Participant)
	Leave(roomID, connectionID string) (domain.Participant, bool)
	RoomsOf(connectionID string) []string
	IsParticipant(roomID, connectionID string) bool
	Connections(roomID string) []string
	UpdateCursor(roomID, connectionID string, c domain.Cursor) (domain.Participant, bool)
	Touch(roomID string)
	RecordStroke(roomID string, s domain.Stroke) (domain.Stroke, bool)
	RecordErase(roomID, strokeID string) (domain.Stroke, uint64, bool)
	FindStroke(roomID, strokeID string) (domain.Stroke, bool)
	Clear(roomID string) uint64
	SetActivePage(roomID string, index int) (uint64, bool)
	AddPage(roomID string, page domain.Page, index int) (int, int, uint64)
	SweepInactive(now time.Time, timeout time.Duration) []string
	Len() int
}

// Conf 存储配置
type Conf struct {
	Capacity       int
	SnapshotEvents int
	Clock          func() time.Time
}

func (c *Conf) norm() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.SnapshotEvents <= 0 {
		c.SnapshotEvents = DefaultSnapshotEvents
	}
	if c.SnapshotEvents > c.Capacity {
		c.SnapshotEvents = c.Capacity
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

type room struct {
	mu           sync.Mutex
	id           string
	participants map[string]*domain.Participant
	strokes      *StrokeLog
	erased       *tombstones
	pages        []domain.Page
	activePage   int
	lastActivity time.Time
	seq          uint64
	joins        int
	deleted      bool
}

func (r *room) participantList() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (r *room) snapshot(n int) domain.RoomSnapshot {
	return domain.RoomSnapshot{
		RoomID:        r.id,
		Participants:  r.participantList(),
		RecentStrokes: r.strokes.Last(n),
		Pages:         append(make([]domain.Page, 0, len(r.pages)), r.pages...),
		ActivePage:    r.activePage,
		Seq:           r.seq,
	}
}

// Memory 是 Store 的进程内实现：房间表一把读写锁，每个房间各自一把互斥锁。
type Memory struct {
	conf Conf
	log  *logrus.Entry

	mu    sync.RWMutex
	rooms map[string]*room

	memberMu sync.Mutex
	members  map[string]map[string]struct{} // connectionID -> roomIDs
}

// NewMemory 创建进程内房间存储
func NewMemory(conf Conf) *Memory {
	conf.norm()
	return &Memory{
		conf:    conf,
		log:     logrus.WithField("component", "roomstate"),
		rooms:   make(map[string]*room),
		members: make(map[string]map[string]struct{}),
	}
}

// withRoom 在房间锁内执行 fn；create 为 true 时按需创建房间。
// 房间在获取锁前被清扫删除时重新查找，保证修改不会落在已删除的房间上。
func (m *Memory) withRoom(roomID string, create bool, fn func(r *room)) bool {
	for {
		m.mu.RLock()
		r, ok := m.rooms[roomID]
		m.mu.RUnlock()
		if !ok {
			if !create {
				return false
			}
			m.mu.Lock()
			if r, ok = m.rooms[roomID]; !ok {
				r = &room{
					id:           roomID,
					participants: make(map[string]*domain.Participant),
					strokes:      NewStrokeLog(m.conf.Capacity),
					erased:       newTombstones(m.conf.Capacity),
					lastActivity: m.conf.Clock(),
				}
				m.rooms[roomID] = r
				m.log.WithField("room_id", roomID).Info("Room created")
			}
			m.mu.Unlock()
		}
		r.mu.Lock()
		if r.deleted {
			r.mu.Unlock()
			continue
		}
		fn(r)
		r.mu.Unlock()
		return true
	}
}

// GetOrCreate 幂等地创建房间并返回其完整状态
func (m *Memory) GetOrCreate(roomID string) domain.RoomSnapshot {
	var snap domain.RoomSnapshot
	m.withRoom(roomID, true, func(r *room) { snap = r.snapshot(r.strokes.Len()) })
	return snap
}

// Join 加入房间 (不存在则创建)，返回重同步快照与新参与者。
// 同一连接重复加入时更新展示信息并保留光标与颜色。
func (m *Memory) Join(roomID, connectionID string, info domain.ParticipantInfo) (domain.RoomSnapshot, domain.Participant) {
	var (
		snap domain.RoomSnapshot
		p    domain.Participant
	)
	m.withRoom(roomID, true, func(r *room) {
		now := m.conf.Clock()
		existing, ok := r.participants[connectionID]
		if !ok {
			existing = &domain.Participant{
				ConnectionID: connectionID,
				Color:        palette[r.joins%len(palette)],
				JoinedAt:     now,
			}
			r.joins++
			r.participants[connectionID] = existing
		}
		existing.UserID = info.UserID
		existing.DisplayName = info.DisplayName
		existing.AvatarRef = info.AvatarRef
		r.lastActivity = now
		p = *existing
		snap = r.snapshot(m.conf.SnapshotEvents)
	})

	m.memberMu.Lock()
	set, ok := m.members[connectionID]
	if !ok {
		set = make(map[string]struct{})
		m.members[connectionID] = set
	}
	set[roomID] = struct{}{}
	m.memberMu.Unlock()
	return snap, p
}

// Leave 移除参与者。房间变空时不删除，留给清扫处理。
func (m *Memory) Leave(roomID, connectionID string) (domain.Participant, bool) {
	var (
		p       domain.Participant
		removed bool
	)
	m.withRoom(roomID, false, func(r *room) {
		existing, ok := r.participants[connectionID]
		if !ok {
			return
		}
		delete(r.participants, connectionID)
		r.lastActivity = m.conf.Clock()
		p, removed = *existing, true
	})

	m.memberMu.Lock()
	if set, ok := m.members[connectionID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(m.members, connectionID)
		}
	}
	m.memberMu.Unlock()
	return p, removed
}

// RoomsOf 返回连接当前所在的房间，按 ID 排序
func (m *Memory) RoomsOf(connectionID string) []string {
	m.memberMu.Lock()
	roomIDs := make([]string, 0, len(m.members[connectionID]))
	for id := range m.members[connectionID] {
		roomIDs = append(roomIDs, id)
	}
	m.memberMu.Unlock()
	sort.Strings(roomIDs)
	return roomIDs
}

// IsParticipant 报告连接是否在房间中
func (m *Memory) IsParticipant(roomID, connectionID string) bool {
	var ok bool
	m.withRoom(roomID, false, func(r *room) { _, ok = r.participants[connectionID] })
	return ok
}

// Connections 返回房间中所有参与者的连接 ID
func (m *Memory) Connections(roomID string) []string {
	var ids []string
	m.withRoom(roomID, false, func(r *room) {
		ids = make([]string, 0, len(r.participants))
		for id := range r.participants {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids
}

// UpdateCursor 连接不在房间中时静默丢弃
func (m *Memory) UpdateCursor(roomID, connectionID string, c domain.Cursor) (domain.Participant, bool) {
	var (
		p  domain.Participant
		ok bool
	)
	m.withRoom(roomID, false, func(r *room) {
		existing, found := r.participants[connectionID]
		if !found {
			return
		}
		existing.Cursor = c
		r.lastActivity = m.conf.Clock()
		p, ok = *existing, true
	})
	return p, ok
}

// Touch 刷新已存在房间的最后活跃时间
func (m *Memory) Touch(roomID string) {
	m.withRoom(roomID, false, func(r *room) { r.lastActivity = m.conf.Clock() })
}

// RecordStroke 追加笔画并分配序号，溢出时淘汰最旧的笔画。
// 同一 ID 已在日志中或已被擦除/清空时不追加，返回 false；日志中存在时返回已记录的笔画。
func (m *Memory) RecordStroke(roomID string, s domain.Stroke) (domain.Stroke, bool) {
	created := false
	m.withRoom(roomID, true, func(r *room) {
		if existing, ok := r.strokes.Find(s.ID); ok {
			s = existing
			return
		}
		if r.erased.Has(s.ID) {
			return
		}
		r.seq++
		s.Seq = r.seq
		if evicted, ok := r.strokes.Append(s); ok {
			m.log.WithFields(logrus.Fields{"room_id": roomID, "stroke_id": evicted.ID}).Debug("Stroke evicted from log")
		}
		r.lastActivity = m.conf.Clock()
		created = true
	})
	return s, created
}

// RecordErase 从日志中移除笔画。未知 ID 是 no-op，不改变任何状态。
func (m *Memory) RecordErase(roomID, strokeID string) (domain.Stroke, uint64, bool) {
	var (
		removed domain.Stroke
		seq     uint64
		ok      bool
	)
	m.withRoom(roomID, false, func(r *room) {
		removed, ok = r.strokes.Remove(strokeID)
		if !ok {
			return
		}
		r.erased.Add(strokeID)
		r.seq++
		seq = r.seq
		r.lastActivity = m.conf.Clock()
	})
	return removed, seq, ok
}

// FindStroke 查找日志中的笔画
func (m *Memory) FindStroke(roomID, strokeID string) (domain.Stroke, bool) {
	var (
		s  domain.Stroke
		ok bool
	)
	m.withRoom(roomID, false, func(r *room) { s, ok = r.strokes.Find(strokeID) })
	return s, ok
}

// Clear 清空笔画日志
func (m *Memory) Clear(roomID string) uint64 {
	var seq uint64
	m.withRoom(roomID, true, func(r *room) {
		for _, st := range r.strokes.All() {
			r.erased.Add(st.ID)
		}
		r.strokes.Reset()
		r.seq++
		seq = r.seq
		r.lastActivity = m.conf.Clock()
	})
	return seq
}

// SetActivePage 后写者胜。索引超出已有页面范围时拒绝。
// 房间尚无页面时隐含一页，只接受 0。
func (m *Memory) SetActivePage(roomID string, index int) (uint64, bool) {
	var (
		seq uint64
		ok  bool
	)
	m.withRoom(roomID, true, func(r *room) {
		pages := len(r.pages)
		if pages == 0 {
			pages = 1
		}
		if index < 0 || index >= pages {
			return
		}
		r.activePage = index
		r.seq++
		seq, ok = r.seq, true
		r.lastActivity = m.conf.Clock()
	})
	return seq, ok
}

// AddPage 在 index 处插入页面 (越界或负数时追加)，返回实际位置与页面总数。
func (m *Memory) AddPage(roomID string, page domain.Page, index int) (int, int, uint64) {
	var at, total int
	var seq uint64
	m.withRoom(roomID, true, func(r *room) {
		if index < 0 || index > len(r.pages) {
			index = len(r.pages)
		}
		r.pages = append(r.pages, domain.Page{})
		copy(r.pages[index+1:], r.pages[index:])
		r.pages[index] = page
		if index <= r.activePage && len(r.pages) > 1 {
			r.activePage++
		}
		r.seq++
		at, total, seq = index, len(r.pages), r.seq
		r.lastActivity = m.conf.Clock()
	})
	return at, total, seq
}

// SweepInactive 删除 参与者为空 且 空闲超过 timeout 的房间，返回被删除的房间 ID
func (m *Memory) SweepInactive(now time.Time, timeout time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for id, r := range m.rooms {
		r.mu.Lock()
		if len(r.participants) == 0 && now.Sub(r.lastActivity) > timeout {
			r.deleted = true
			delete(m.rooms, id)
			removed = append(removed, id)
		}
		r.mu.Unlock()
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		m.log.WithFields(logrus.Fields{"removed": len(removed), "remaining": len(m.rooms)}).Info("Inactive rooms swept")
	}
	return removed
}

// tombstones 记录最近被移除的笔画 ID，容量有界，先进先出淘汰
type tombstones struct {
	ids   map[string]struct{}
	order []string
	cap   int
}

func newTombstones(capacity int) *tombstones {
	return &tombstones{ids: make(map[string]struct{}, capacity), cap: capacity}
}

func (t *tombstones) Add(id string) {
	if _, ok := t.ids[id]; ok {
		return
	}
	if len(t.order) == t.cap {
		delete(t.ids, t.order[0])
		t.order = t.order[1:]
	}
	t.ids[id] = struct{}{}
	t.order = append(t.order, id)
}

func (t *tombstones) Has(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Len 当前房间数
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

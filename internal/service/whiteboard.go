package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collabboard/internal/domain"
	"collabboard/internal/repository"
	"collabboard/internal/roomstate"
	"collabboard/internal/tasks"
)

const maxRoomIDLength = 64

// WhiteboardOptions 白板行为开关
type WhiteboardOptions struct {
	// EraseOwnStrokesOnly 为 true 时拒绝擦除他人笔画
	EraseOwnStrokesOnly bool
	// Archive 为 true 时将已提交的笔画、擦除与清空投递到归档队列
	Archive bool
	// LookupTimeout 加入房间时查询用户目录的超时
	LookupTimeout time.Duration
}

// WhiteboardService 处理白板同步事件：写入 roomstate.Store 并按投递等级扇出。
// 同一房间的可靠事件在房间锁内写入并入队，各连接看到的顺序与日志顺序一致。
type WhiteboardService struct {
	rooms    *KeyedMutex
	store    roomstate.Store
	users    repository.UserRepository
	notifier Notifier
	enqueuer TaskEnqueuer
	opts     WhiteboardOptions
	clock    func() time.Time
}

// NewWhiteboardService 创建 WhiteboardService。users 与 enqueuer 可为 nil。
func NewWhiteboardService(store roomstate.Store, users repository.UserRepository, notifier Notifier, enqueuer TaskEnqueuer, opts WhiteboardOptions) *WhiteboardService {
	if store == nil || notifier == nil {
		panic("store and notifier must be non-nil for WhiteboardService")
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 2 * time.Second
	}
	return &WhiteboardService{
		rooms:    NewKeyedMutex(),
		store:    store,
		users:    users,
		notifier: notifier,
		enqueuer: enqueuer,
		opts:     opts,
		clock:    time.Now,
	}
}

func validRoomID(roomID string) bool {
	return roomID != "" && len(roomID) <= maxRoomIDLength && strings.TrimSpace(roomID) == roomID
}

func (s *WhiteboardService) logCtx(o Origin, roomID string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"room_id":       roomID,
		"user_id":       o.UserID,
		"connection_id": o.ConnectionID,
	})
}

func (s *WhiteboardService) participantInfo(ctx context.Context, userID string) domain.ParticipantInfo {
	info := domain.ParticipantInfo{UserID: userID, DisplayName: userID}
	if s.users == nil {
		return info
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			logrus.WithError(err).WithField("user_id", userID).Warn("User directory lookup failed, using id as display name")
		}
		return info
	}
	if u.DisplayName != "" {
		info.DisplayName = u.DisplayName
	}
	info.AvatarRef = u.AvatarRef
	return info
}

// others 返回房间内除 origin 外的连接
func (s *WhiteboardService) others(roomID string, o Origin) []string {
	return without(s.store.Connections(roomID), o.ConnectionID)
}

func (s *WhiteboardService) send(ids []string, roomID string, seq uint64, eventType string, payload interface{}, class domain.Delivery) {
	if len(ids) == 0 {
		return
	}
	env, err := domain.NewEnvelope(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to build outbound event")
		return
	}
	env.RoomID = roomID
	env.Seq = seq
	s.notifier.SendTo(ids, env, class)
}

// Join 加入房间 (不存在则创建)，向来源连接发送快照，并通知其他成员。
func (s *WhiteboardService) Join(ctx context.Context, o Origin, roomID string) (domain.RoomSnapshot, error) {
	if !validRoomID(roomID) {
		return domain.RoomSnapshot{}, ErrInvalidEvent
	}
	info := s.participantInfo(ctx, o.UserID)

	unlock := s.rooms.Lock(roomID)
	snap, p := s.store.Join(roomID, o.ConnectionID, info)
	s.send([]string{o.ConnectionID}, roomID, snap.Seq, domain.EventRoomSnapshot, snap, domain.Reliable)
	s.send(s.others(roomID, o), roomID, 0, domain.EventParticipantJoined, domain.ParticipantPayload{Participant: p}, domain.Reliable)
	unlock()

	s.logCtx(o, roomID).WithField("participants", len(snap.Participants)).Info("Participant joined room")
	return snap, nil
}

// Leave 离开房间。不在房间中时为空操作。
func (s *WhiteboardService) Leave(o Origin, roomID string) error {
	if roomID == "" {
		return ErrInvalidEvent
	}
	if s.leave(roomID, o.ConnectionID) {
		s.logCtx(o, roomID).Info("Participant left room")
	}
	return nil
}

func (s *WhiteboardService) leave(roomID, connectionID string) bool {
	unlock := s.rooms.Lock(roomID)
	defer unlock()
	p, ok := s.store.Leave(roomID, connectionID)
	if !ok {
		return false
	}
	s.send(s.store.Connections(roomID), roomID, 0, domain.EventParticipantLeft, domain.ParticipantPayload{Participant: p}, domain.Reliable)
	return true
}

// Disconnect 连接关闭时调用，离开该连接所在的全部房间
func (s *WhiteboardService) Disconnect(connectionID string) {
	for _, roomID := range s.store.RoomsOf(connectionID) {
		s.leave(roomID, connectionID)
	}
}

// MoveCursor 更新光标并尽力而为地转发给其他成员。不在房间中的连接被静默丢弃。
func (s *WhiteboardService) MoveCursor(o Origin, roomID string, c domain.Cursor) {
	p, ok := s.store.UpdateCursor(roomID, o.ConnectionID, c)
	if !ok {
		return
	}
	s.send(s.others(roomID, o), roomID, 0, domain.EventCursorMoved,
		domain.CursorPayload{ConnectionID: o.ConnectionID, UserID: p.UserID, X: c.X, Y: c.Y}, domain.BestEffort)
}

// Segment 转发进行中的线段，不写入日志
func (s *WhiteboardService) Segment(o Origin, roomID string, seg domain.Segment) error {
	if roomID == "" || len(seg.Points) == 0 {
		return ErrInvalidEvent
	}
	if !s.store.IsParticipant(roomID, o.ConnectionID) {
		return nil
	}
	s.store.Touch(roomID)
	s.send(s.others(roomID, o), roomID, 0, domain.EventSegmentBroadcast,
		domain.SegmentPayload{ConnectionID: o.ConnectionID, UserID: o.UserID, Segment: seg}, domain.BestEffort)
	return nil
}

// CommitStroke 记录已完成的笔画并可靠地广播给其他连接 (包括同一用户的其他标签页)。
// 重复提交同一 ID 不会再次记录或广播；来源不在房间中时静默丢弃。
func (s *WhiteboardService) CommitStroke(ctx context.Context, o Origin, roomID string, st domain.Stroke) (domain.Stroke, error) {
	if !validRoomID(roomID) || len(st.Points) == 0 {
		return domain.Stroke{}, ErrInvalidEvent
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Page < 0 {
		return domain.Stroke{}, ErrInvalidEvent
	}
	st.OriginConnectionID = o.ConnectionID
	st.UserID = o.UserID
	st.Timestamp = s.clock().UTC()

	unlock := s.rooms.Lock(roomID)
	if !s.store.IsParticipant(roomID, o.ConnectionID) {
		unlock()
		return domain.Stroke{}, nil
	}
	recorded, created := s.store.RecordStroke(roomID, st)
	if created {
		s.send(s.others(roomID, o), roomID, recorded.Seq, domain.EventStrokeBroadcast, domain.StrokePayload{Stroke: recorded}, domain.Reliable)
	}
	unlock()

	if !created {
		s.logCtx(o, roomID).WithField("stroke_id", st.ID).Debug("Duplicate or erased stroke id ignored")
		return recorded, nil
	}
	if s.opts.Archive {
		action := domain.Action{RoomID: roomID, UserID: o.UserID, ActionType: domain.ActionStroke, Seq: recorded.Seq, OccurredAt: recorded.Timestamp}
		if err := action.SetStroke(recorded); err != nil {
			s.logCtx(o, roomID).WithError(err).Warn("Failed to encode stroke for archive")
		} else {
			s.archive(ctx, action)
		}
	}
	return recorded, nil
}

// Erase 删除笔画。未知 id 不是错误，但擦除事件仍会广播，
// 以便客户端移除已从日志中淘汰的笔画。
func (s *WhiteboardService) Erase(ctx context.Context, o Origin, roomID, strokeID string) error {
	if roomID == "" || strokeID == "" {
		return ErrInvalidEvent
	}
	unlock := s.rooms.Lock(roomID)
	if !s.store.IsParticipant(roomID, o.ConnectionID) {
		unlock()
		return nil
	}
	if s.opts.EraseOwnStrokesOnly {
		if st, ok := s.store.FindStroke(roomID, strokeID); ok && st.UserID != o.UserID {
			unlock()
			s.logCtx(o, roomID).WithField("stroke_id", strokeID).Warn("Rejected erase of another user's stroke")
			return ErrEraseForbidden
		}
	}
	_, seq, removed := s.store.RecordErase(roomID, strokeID)
	s.send(s.others(roomID, o), roomID, seq, domain.EventEraseBroadcast,
		domain.ErasePayload{StrokeID: strokeID, ConnectionID: o.ConnectionID, UserID: o.UserID}, domain.Reliable)
	unlock()

	if removed && s.opts.Archive {
		s.archive(ctx, domain.Action{RoomID: roomID, UserID: o.UserID, ActionType: domain.ActionErase, StrokeID: strokeID, Seq: seq, OccurredAt: s.clock().UTC()})
	}
	return nil
}

// Clear 清空房间笔画，通知包括发起者在内的所有成员
func (s *WhiteboardService) Clear(ctx context.Context, o Origin, roomID string) error {
	if !validRoomID(roomID) {
		return ErrInvalidEvent
	}
	unlock := s.rooms.Lock(roomID)
	if !s.store.IsParticipant(roomID, o.ConnectionID) {
		unlock()
		return nil
	}
	seq := s.store.Clear(roomID)
	s.send(s.store.Connections(roomID), roomID, seq, domain.EventRoomCleared,
		domain.ClearPayload{ConnectionID: o.ConnectionID, UserID: o.UserID}, domain.Reliable)
	unlock()
	s.logCtx(o, roomID).WithField("seq", seq).Info("Room cleared")

	if s.opts.Archive {
		s.archive(ctx, domain.Action{RoomID: roomID, UserID: o.UserID, ActionType: domain.ActionClear, Seq: seq, OccurredAt: s.clock().UTC()})
	}
	return nil
}

// SetActivePage 切换活动页 (后写者胜)，通知所有成员
func (s *WhiteboardService) SetActivePage(o Origin, roomID string, index int) error {
	if !validRoomID(roomID) {
		return ErrInvalidEvent
	}
	unlock := s.rooms.Lock(roomID)
	defer unlock()
	if !s.store.IsParticipant(roomID, o.ConnectionID) {
		return nil
	}
	seq, ok := s.store.SetActivePage(roomID, index)
	if !ok {
		return ErrInvalidEvent
	}
	idx := index
	s.send(s.store.Connections(roomID), roomID, seq, domain.EventActivePageChanged,
		domain.SetActivePagePayload{Index: &idx, ConnectionID: o.ConnectionID, UserID: o.UserID}, domain.Reliable)
	return nil
}

// AddPage 在 index 处插入页面，通知所有成员
func (s *WhiteboardService) AddPage(o Origin, roomID string, page domain.Page, index int) error {
	if !validRoomID(roomID) {
		return ErrInvalidEvent
	}
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	unlock := s.rooms.Lock(roomID)
	defer unlock()
	if !s.store.IsParticipant(roomID, o.ConnectionID) {
		return nil
	}
	at, total, seq := s.store.AddPage(roomID, page, index)
	s.send(s.store.Connections(roomID), roomID, seq, domain.EventPageAdded,
		domain.AddPagePayload{Page: page, Index: at, Pages: total, ConnectionID: o.ConnectionID, UserID: o.UserID}, domain.Reliable)
	return nil
}

func (s *WhiteboardService) archive(ctx context.Context, action domain.Action) {
	if s.enqueuer == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": action.RoomID, "action_type": action.ActionType, "seq": action.Seq})
	task, err := tasks.NewStrokeArchiveTask(action)
	if err != nil {
		logCtx.WithError(err).Error("Failed to create archive task")
		return
	}
	if _, err := s.enqueuer.EnqueueContext(ctx, task); err != nil {
		logCtx.WithError(err).Warn("Failed to enqueue archive task")
	}
}

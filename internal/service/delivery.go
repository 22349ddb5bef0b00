package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collabboard/internal/domain"
	"collabboard/internal/metrics"
	"collabboard/internal/registry"
	"collabboard/internal/repository"
	"collabboard/internal/tasks"
)

// MaxContentLength 单条消息内容的最大字符数
const MaxContentLength = 4000

// DeliveryConfig 可选依赖，零值使用默认实现
type DeliveryConfig struct {
	Clock   func() time.Time
	NewID   func() string
	Spawn   func(func())
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// DeliveryService 消息投递引擎：决定初始状态、维护回执与未读计数、通知状态变化。
type DeliveryService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	registry registry.Registry
	notifier Notifier
	enqueuer TaskEnqueuer
	locks    *KeyedMutex

	clock   func() time.Time
	newID   func() string
	spawn   func(func())
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewDeliveryService 创建 DeliveryService。enqueuer 为 nil 时持久化失败直接报告给发送者。
func NewDeliveryService(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	reg registry.Registry,
	notifier Notifier,
	enqueuer TaskEnqueuer,
	conf DeliveryConfig,
) *DeliveryService {
	if chats == nil || messages == nil || reg == nil || notifier == nil {
		panic("chat repository, message repository, registry and notifier must be non-nil for DeliveryService")
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	if conf.NewID == nil {
		conf.NewID = uuid.NewString
	}
	if conf.Spawn == nil {
		conf.Spawn = func(f func()) { go f() }
	}
	if conf.Timeout <= 0 {
		conf.Timeout = 10 * time.Second
	}
	return &DeliveryService{
		chats:    chats,
		messages: messages,
		registry: reg,
		notifier: notifier,
		enqueuer: enqueuer,
		locks:    NewKeyedMutex(),
		clock:    conf.Clock,
		newID:    conf.NewID,
		spawn:    conf.Spawn,
		timeout:  conf.Timeout,
		metrics:  conf.Metrics,
	}
}

// loadChat 取会话并确认 userID 是成员
func (s *DeliveryService) loadChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	if chatID == "" {
		return nil, ErrInvalidEvent
	}
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		mapped := mapRepoError(err, ErrChatNotFound)
		if mapped == ErrInternalServer {
			logrus.WithError(err).WithField("chat_id", chatID).Error("Failed to load chat")
		}
		return nil, mapped
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return chat, nil
}

func (s *DeliveryService) notifyUser(userID, chatID, eventType string, payload interface{}) {
	env, err := domain.NewEnvelope(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("chat_id", chatID).Error("Failed to build outbound event")
		return
	}
	env.ChatID = chatID
	s.notifier.SendToUser(userID, env, domain.Reliable)
}

func (s *DeliveryService) notifyConns(ids []string, chatID, eventType string, payload interface{}) {
	if len(ids) == 0 {
		return
	}
	env, err := domain.NewEnvelope(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("chat_id", chatID).Error("Failed to build outbound event")
		return
	}
	env.ChatID = chatID
	s.notifier.SendTo(ids, env, domain.Reliable)
}

// Send 发送一条消息。
// 初始状态在发送瞬间通过注册表判定：任一接收者在线即为 delivered。
// 消息总会实时投递；持久化失败时转入后台重试，重试也无法入队时返回 ErrMessageNotPersisted。
func (s *DeliveryService) Send(ctx context.Context, o Origin, chatID, content, clientID string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}
	chat, err := s.loadChat(ctx, chatID, o.UserID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	msg := &domain.Message{
		ID:        s.newID(),
		ChatID:    chatID,
		SenderID:  o.UserID,
		Content:   content,
		Status:    domain.StatusSent,
		CreatedAt: s.clock().UTC(),
	}
	var (
		receipts []domain.MessageReceipt
		routes   []registry.Route
	)
	for _, uid := range chat.ParticipantIDs() {
		if uid == o.UserID {
			continue
		}
		r := domain.MessageReceipt{MessageID: msg.ID, UserID: uid, ChatID: chatID, Status: domain.StatusSent}
		if route, ok := s.registry.ResolveRoute(uid); ok {
			r.Status = domain.StatusDelivered
			routes = append(routes, route)
		}
		msg.Status = msg.Status.Max(r.Status)
		receipts = append(receipts, r)
	}

	logCtx := logrus.WithFields(logrus.Fields{"chat_id": chatID, "message_id": msg.ID, "sender_id": o.UserID})
	persisted := true
	var sendErr error
	if err := s.messages.Create(ctx, msg, receipts); err != nil {
		persisted = false
		s.metrics.PersistFailure("message")
		logCtx.WithError(err).Error("Failed to persist message, scheduling retry")
		if err := s.enqueuePersist(ctx, *msg, receipts); err != nil {
			logCtx.WithError(err).Error("Failed to schedule message persistence")
			sendErr = ErrMessageNotPersisted
		}
	}
	s.metrics.MessageSent(string(msg.Status))

	// 实时投递：接收者的全部连接，以及发送者的其他连接
	live := domain.MessagePayload{Message: *msg, ClientID: clientID}
	for _, route := range routes {
		s.notifyConns(route.ConnectionIDs, chatID, domain.EventMessageReceived, live)
	}
	s.notifyConns(without(s.registry.ConnectionsFor(o.UserID), o.ConnectionID), chatID, domain.EventMessageReceived, live)

	if o.ConnectionID != "" {
		if sendErr != nil {
			s.notifyConns([]string{o.ConnectionID}, chatID, domain.EventError,
				domain.ErrorPayload{Code: CodeMessageNotPersisted, Message: sendErr.Error(), MessageID: msg.ID})
		} else {
			s.notifyConns([]string{o.ConnectionID}, chatID, domain.EventMessageAck,
				domain.MessageAckPayload{Message: *msg, ClientID: clientID, Persisted: persisted})
		}
	}

	logCtx.WithFields(logrus.Fields{"status": msg.Status, "persisted": persisted}).Info("Message sent")
	return msg, sendErr
}

func (s *DeliveryService) enqueuePersist(ctx context.Context, msg domain.Message, receipts []domain.MessageReceipt) error {
	if s.enqueuer == nil {
		return ErrMessageNotPersisted
	}
	task, err := tasks.NewMessagePersistTask(msg, receipts)
	if err != nil {
		return err
	}
	_, err = s.enqueuer.EnqueueContext(ctx, task)
	return err
}

// MarkRead 将 readerID 在会话中的未读消息置为 read，清零其未读计数并通知各发送者。
func (s *DeliveryService) MarkRead(ctx context.Context, o Origin, chatID string) ([]domain.StatusChange, error) {
	if _, err := s.loadChat(ctx, chatID, o.UserID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	changes, err := s.messages.MarkRead(ctx, chatID, o.UserID, s.clock().UTC())
	if err != nil {
		s.metrics.PersistFailure("mark_read")
		logrus.WithError(err).WithFields(logrus.Fields{"chat_id": chatID, "reader_id": o.UserID}).Error("Failed to mark chat as read")
		return nil, ErrInternalServer
	}
	s.notifyChanges(chatID, changes)
	return changes, nil
}

// DeliverPending 将 userID 尚为 sent 的回执推进到 delivered 并通知发送者。
// 逐个会话在会话锁内推进并通知，与 MarkRead 互斥，发送者不会在 read 之后收到 delivered。
func (s *DeliveryService) DeliverPending(ctx context.Context, userID string) ([]domain.StatusChange, error) {
	chatIDs, err := s.messages.PendingChats(ctx, userID)
	if err != nil {
		s.metrics.PersistFailure("mark_delivered")
		return nil, err
	}
	var all []domain.StatusChange
	for _, chatID := range chatIDs {
		changes, err := s.deliverPendingIn(ctx, chatID, userID)
		if err != nil {
			s.metrics.PersistFailure("mark_delivered")
			return all, err
		}
		all = append(all, changes...)
	}
	return all, nil
}

func (s *DeliveryService) deliverPendingIn(ctx context.Context, chatID, userID string) ([]domain.StatusChange, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	changes, err := s.messages.MarkDelivered(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	s.notifyChanges(chatID, changes)
	return changes, nil
}

func (s *DeliveryService) notifyChanges(chatID string, changes []domain.StatusChange) {
	for _, c := range changes {
		if len(c.MessageIDs) == 0 {
			continue
		}
		s.notifyUser(c.SenderID, chatID, domain.EventMessageStatus, domain.MessageStatusPayload{
			MessageIDs:  c.MessageIDs,
			Status:      c.Status,
			RecipientID: c.RecipientID,
		})
	}
}

// OnPresenceTransition 用户上线后异步补投递
func (s *DeliveryService) OnPresenceTransition(t registry.Transition) {
	if !t.Online {
		return
	}
	s.sweepPending(t.UserID)
}

// OnPresenceResumed 宽限期内重连不产生上线事件，但期间可能有消息以 sent 写入，同样补投递
func (s *DeliveryService) OnPresenceResumed(userID string, _ time.Time) {
	s.sweepPending(userID)
}

func (s *DeliveryService) sweepPending(userID string) {
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		changes, err := s.DeliverPending(ctx, userID)
		logCtx := logrus.WithField("user_id", userID)
		if err != nil {
			logCtx.WithError(err).Warn("Pending delivery sweep failed")
			return
		}
		if len(changes) > 0 {
			logCtx.WithField("senders", len(changes)).Info("Pending messages marked delivered")
		}
	})
}

// UnreadCount 返回 userID 在会话中的未读数
func (s *DeliveryService) UnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	if _, err := s.loadChat(ctx, chatID, userID); err != nil {
		return 0, err
	}
	n, err := s.chats.UnreadCount(ctx, chatID, userID)
	if err != nil {
		return 0, mapRepoError(err, ErrNotParticipant)
	}
	return n, nil
}

// History 返回会话最近的消息 (新的在前)
func (s *DeliveryService) History(ctx context.Context, chatID, userID string, limit int) ([]domain.Message, error) {
	if _, err := s.loadChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByChat(ctx, chatID, limit)
	if err != nil {
		logrus.WithError(err).WithField("chat_id", chatID).Error("Failed to list messages")
		return nil, ErrInternalServer
	}
	return msgs, nil
}

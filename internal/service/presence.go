package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"collabboard/internal/domain"
	"collabboard/internal/metrics"
	"collabboard/internal/registry"
	"collabboard/internal/repository"
)

// PresenceService 订阅注册表的上下线转换，全局广播 presence-changed，
// 并异步写入在线标记。写入失败只记录日志。
type PresenceService struct {
	registry registry.Registry
	notifier Notifier
	repo     repository.PresenceRepository
	metrics  *metrics.Metrics
	spawn    func(func())
	timeout  time.Duration
}

// NewPresenceService 创建 PresenceService。repo 为 nil 时不持久化在线标记。
func NewPresenceService(reg registry.Registry, notifier Notifier, repo repository.PresenceRepository, m *metrics.Metrics) *PresenceService {
	if reg == nil || notifier == nil {
		panic("registry and notifier must be non-nil for PresenceService")
	}
	return &PresenceService{
		registry: reg,
		notifier: notifier,
		repo:     repo,
		metrics:  m,
		spawn:    func(f func()) { go f() },
		timeout:  3 * time.Second,
	}
}

// WithSpawner 替换异步执行器，测试中用于同步执行
func (s *PresenceService) WithSpawner(spawn func(func())) *PresenceService {
	if spawn != nil {
		s.spawn = spawn
	}
	return s
}

// OnPresenceTransition 实现 registry.Listener
func (s *PresenceService) OnPresenceTransition(t registry.Transition) {
	s.metrics.PresenceTransition(t.Online)

	env, err := domain.NewEnvelope(domain.EventPresenceChanged, domain.PresencePayload{UserID: t.UserID, IsOnline: t.Online})
	if err != nil {
		logrus.WithError(err).WithField("user_id", t.UserID).Error("Failed to build presence event")
	} else {
		s.notifier.Broadcast(env, domain.BestEffort)
	}

	if s.repo == nil {
		return
	}
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.repo.SetOnline(ctx, t.UserID, t.Online, t.At); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": t.UserID,
				"online":  t.Online,
			}).Warn("Failed to persist online flag")
		}
	})
}

// Status 查询用户在线状态。内存注册表为准，持久化标记只用于最后在线时间。
func (s *PresenceService) Status(ctx context.Context, userID string) (online bool, lastSeen time.Time) {
	online = s.registry.IsOnline(userID)
	if s.repo == nil {
		return online, time.Time{}
	}
	ts, err := s.repo.LastSeen(ctx, userID)
	if err != nil {
		return online, time.Time{}
	}
	return online, ts
}

// OnlineUsers 返回持久化在线集合中的用户。集合异步维护，可能短暂落后于注册表。
func (s *PresenceService) OnlineUsers(ctx context.Context) ([]string, error) {
	if s.repo == nil {
		return []string{}, nil
	}
	users, err := s.repo.OnlineUsers(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list online users")
		return nil, ErrInternalServer
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}

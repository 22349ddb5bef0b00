package roomstate

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper 周期性清理空闲房间。清扫是幂等的，只能随 ctx 停止。
type Sweeper struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	clock    func() time.Time
	onSweep  func(removed []string, remaining int)
	log      *logrus.Entry
}

// NewSweeper interval 或 timeout 非正时使用默认值 (30m / 1h)
func NewSweeper(store Store, interval, timeout time.Duration) *Sweeper {
	if store == nil {
		panic("store cannot be nil for Sweeper")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		timeout:  timeout,
		clock:    time.Now,
		log:      logrus.WithField("component", "room_sweeper"),
	}
}

// OnSweep 注册每轮清扫后的回调 (用于指标)
func (s *Sweeper) OnSweep(fn func(removed []string, remaining int)) { s.onSweep = fn }

// SweepOnce 执行一轮清扫
func (s *Sweeper) SweepOnce() []string {
	removed := s.store.SweepInactive(s.clock(), s.timeout)
	if s.onSweep != nil {
		s.onSweep(removed, s.store.Len())
	}
	return removed
}

// Run 阻塞直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.WithFields(logrus.Fields{"interval": s.interval.String(), "timeout": s.timeout.String()}).Info("Room sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Room sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

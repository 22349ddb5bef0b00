package registry_test

import (
	"sync"
	"testing"
	"time"

	"collabboard/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler 记录被调度的回调，由测试手动触发
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	d       time.Duration
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) registry.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{fn: f, d: d}
	s.tasks = append(s.tasks, t)
	return t
}

// fireAll 触发所有未停止的定时器
func (s *fakeScheduler) fireAll() {
	s.mu.Lock()
	tasks := append([]*fakeTimer(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		if !t.stopped && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

// fireStopped 模拟 Stop 与触发竞争时回调仍被执行
func (s *fakeScheduler) fireStopped() {
	s.mu.Lock()
	tasks := append([]*fakeTimer(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		if t.stopped && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []registry.Transition
}

func (r *recorder) OnPresenceTransition(t registry.Transition) {
	r.mu.Lock()
	r.events = append(r.events, t)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []registry.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registry.Transition(nil), r.events...)
}

func newTestRegistry() (*registry.Memory, *fakeScheduler, *recorder) {
	sched := &fakeScheduler{}
	reg := registry.New(registry.Conf{AfterFunc: sched.AfterFunc})
	rec := &recorder{}
	reg.Subscribe(rec)
	return reg, sched, rec
}

func TestRegister_FirstConnectionFiresOnlineOnce(t *testing.T) {
	reg, _, rec := newTestRegistry()

	reg.Register("alice", "c1")
	reg.Register("alice", "c2")
	reg.Register("alice", "c2") // 重复注册是 no-op

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].UserID)
	assert.True(t, events[0].Online)
	assert.True(t, reg.IsOnline("alice"))
	assert.Equal(t, []string{"c1", "c2"}, reg.ConnectionsFor("alice"))
}

func TestUnregister_OfflineAfterGrace(t *testing.T) {
	reg, sched, rec := newTestRegistry()

	reg.Register("bob", "c1")
	reg.Unregister("bob", "c1")

	// 宽限期内：连接已空，但仍视为在线，且没有下线事件
	assert.True(t, reg.IsOnline("bob"))
	assert.Empty(t, reg.ConnectionsFor("bob"))
	_, ok := reg.ResolveRoute("bob")
	assert.False(t, ok)
	require.Len(t, rec.snapshot(), 1)
	require.Len(t, sched.tasks, 1)
	assert.Equal(t, registry.DefaultGrace, sched.tasks[0].d)

	sched.fireAll()

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.False(t, events[1].Online)
	assert.False(t, reg.IsOnline("bob"))
}

func TestReconnectWithinGrace_NoOfflineEvent(t *testing.T) {
	reg, sched, rec := newTestRegistry()

	reg.Register("carol", "c1")
	reg.Unregister("carol", "c1")
	reg.Register("carol", "c2")

	require.Len(t, sched.tasks, 1)
	assert.True(t, sched.tasks[0].stopped, "重连应取消宽限定时器")

	// 即使 runtime 在 Stop 之前已经触发了回调，代次检查也会让它失效
	sched.fireStopped()

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].Online)
	assert.True(t, reg.IsOnline("carol"))
	assert.Equal(t, []string{"c2"}, reg.ConnectionsFor("carol"))
}

type resumeRecorder struct {
	recorder
	resumed []string
}

func (r *resumeRecorder) OnPresenceResumed(userID string, _ time.Time) {
	r.mu.Lock()
	r.resumed = append(r.resumed, userID)
	r.mu.Unlock()
}

func TestReconnectWithinGrace_NotifiesResumeListeners(t *testing.T) {
	// Arrange
	reg, sched, rec := newTestRegistry()
	resumes := &resumeRecorder{}
	reg.Subscribe(resumes)

	// Act
	reg.Register("dave", "c1")
	reg.Unregister("dave", "c1")
	reg.Register("dave", "c2")
	reg.Register("dave", "c3") // 非宽限期内的新连接不算恢复
	sched.fireStopped()

	// Assert
	require.Len(t, rec.snapshot(), 1, "普通监听器只看到一次上线")
	require.Len(t, resumes.snapshot(), 1)
	resumes.mu.Lock()
	defer resumes.mu.Unlock()
	assert.Equal(t, []string{"dave"}, resumes.resumed)
}

func TestUnregister_PartialCloseKeepsUserOnline(t *testing.T) {
	reg, sched, rec := newTestRegistry()

	reg.Register("dave", "c1")
	reg.Register("dave", "c2")
	reg.Unregister("dave", "c1")

	assert.Empty(t, sched.tasks)
	assert.True(t, reg.IsOnline("dave"))
	route, ok := reg.ResolveRoute("dave")
	require.True(t, ok)
	assert.Equal(t, []string{"c2"}, route.ConnectionIDs)
	assert.Len(t, rec.snapshot(), 1)
}

func TestUnregister_UnknownIsNoop(t *testing.T) {
	reg, sched, rec := newTestRegistry()

	reg.Unregister("nobody", "c1")
	reg.Register("erin", "c1")
	reg.Unregister("erin", "c-unknown")

	assert.Empty(t, sched.tasks)
	assert.Len(t, rec.snapshot(), 1)
	assert.True(t, reg.IsOnline("erin"))
}

func TestOnlineAgainAfterConfirmedOffline(t *testing.T) {
	reg, sched, rec := newTestRegistry()

	reg.Register("frank", "c1")
	reg.Unregister("frank", "c1")
	sched.fireAll()
	reg.Register("frank", "c2")

	events := rec.snapshot()
	require.Len(t, events, 3)
	assert.True(t, events[0].Online)
	assert.False(t, events[1].Online)
	assert.True(t, events[2].Online)
}

func TestRegistry_RandomSequencesMatchConnectionCount(t *testing.T) {
	reg, sched, rec := newTestRegistry()
	open := map[string]bool{}
	ops := []struct {
		register bool
		conn     string
	}{
		{true, "a"}, {true, "b"}, {false, "a"}, {true, "c"}, {false, "b"},
		{false, "c"}, {true, "d"}, {false, "d"}, {true, "e"}, {false, "e"},
	}
	for _, op := range ops {
		if op.register {
			reg.Register("gina", op.conn)
			open[op.conn] = true
		} else {
			reg.Unregister("gina", op.conn)
			delete(open, op.conn)
		}
		assert.Len(t, reg.ConnectionsFor("gina"), len(open))
		if len(open) > 0 {
			assert.True(t, reg.IsOnline("gina"))
		}
	}
	sched.fireAll()
	assert.False(t, reg.IsOnline("gina"))

	// 只在首连接时上线一次，最终确认下线一次
	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.True(t, events[0].Online)
	assert.False(t, events[1].Online)
}

func TestRegistry_RealTimerExpires(t *testing.T) {
	reg := registry.New(registry.Conf{Grace: 10 * time.Millisecond})
	offline := make(chan registry.Transition, 1)
	reg.Subscribe(registry.ListenerFunc(func(tr registry.Transition) {
		if !tr.Online {
			offline <- tr
		}
	}))

	reg.Register("hank", "c1")
	reg.Unregister("hank", "c1")

	select {
	case tr := <-offline:
		assert.Equal(t, "hank", tr.UserID)
	case <-time.After(time.Second):
		t.Fatal("offline transition was not emitted")
	}
	assert.False(t, reg.IsOnline("hank"))
}

func TestStatsAndClose(t *testing.T) {
	reg, sched, _ := newTestRegistry()

	reg.Register("u1", "c1")
	reg.Register("u1", "c2")
	reg.Register("u2", "c3")
	reg.Unregister("u2", "c3")

	users, conns := reg.Stats()
	assert.Equal(t, 2, users)
	assert.Equal(t, 2, conns)

	reg.Close()
	require.Len(t, sched.tasks, 1)
	assert.True(t, sched.tasks[0].stopped)
}

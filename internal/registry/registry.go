// Package registry 维护用户到其活跃传输连接的映射，并推导带防抖的上下线转换。
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultGrace 最后一个连接关闭后确认下线前的等待时间
const DefaultGrace = 2 * time.Second

// Transition 一次上线或下线转换
type Transition struct {
	UserID string
	Online bool
	At     time.Time
}

// Listener 订阅上下线转换。
// 回调在调用方 goroutine 中同步执行，同一用户的转换按发生顺序送达；
// 回调内不得调用 Register/Unregister。
type Listener interface {
	OnPresenceTransition(t Transition)
}

// ResumeListener 可选接口：用户在宽限期内重连时回调，此时不产生上线转换。
// 与 OnPresenceTransition 在同一顺序中送达。
type ResumeListener interface {
	OnPresenceResumed(userID string, at time.Time)
}

// ListenerFunc 函数适配器
type ListenerFunc func(t Transition)

func (f ListenerFunc) OnPresenceTransition(t Transition) { f(t) }

// Route 是一个用户当前可投递的连接集合
type Route struct {
	UserID        string
	ConnectionIDs []string
}

// Registry 连接注册表。进程内实现见 Memory，也可替换为共享缓存实现。
type Registry interface {
	Register(userID, connectionID string)
	Unregister(userID, connectionID string)
	IsOnline(userID string) bool
	ConnectionsFor(userID string) []string
	ResolveRoute(userID string) (Route, bool)
	Subscribe(l Listener)
}

// Timer 可取消的定时任务
type Timer interface {
	Stop() bool
}

// AfterFunc 调度器，默认使用 time.AfterFunc，测试中可替换
type AfterFunc func(d time.Duration, f func()) Timer

// Conf 注册表配置
type Conf struct {
	Grace     time.Duration
	AfterFunc AfterFunc
	Clock     func() time.Time
}

func (c *Conf) norm() {
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

type userEntry struct {
	conns  map[string]struct{}
	online bool
	grace  Timer
	gen    uint64 // 每次调度或取消宽限定时器时递增，过期回调据此判断是否仍然有效
}

type event struct {
	Transition
	resumed bool
}

// Memory 是 Registry 的进程内实现
type Memory struct {
	conf Conf
	log  *logrus.Entry

	mu        sync.Mutex
	users     map[string]*userEntry
	pending   []event
	listeners []Listener

	emitMu sync.Mutex
}

// New 创建进程内注册表
func New(conf Conf) *Memory {
	conf.norm()
	return &Memory{
		conf:  conf,
		log:   logrus.WithField("component", "registry"),
		users: make(map[string]*userEntry),
	}
}

// Subscribe 添加监听器，需在开始注册连接前完成
func (r *Memory) Subscribe(l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Register 将连接加入用户的活跃集合。集合 0->1 时触发一次上线。
func (r *Memory) Register(userID, connectionID string) {
	r.mu.Lock()
	e, ok := r.users[userID]
	if !ok {
		e = &userEntry{conns: make(map[string]struct{})}
		r.users[userID] = e
	}
	if _, dup := e.conns[connectionID]; dup {
		r.mu.Unlock()
		return
	}
	e.conns[connectionID] = struct{}{}
	if e.grace != nil {
		// 宽限期内重连：取消下线确认，不产生上线转换
		e.grace.Stop()
		e.grace = nil
		e.gen++
		r.log.WithFields(logrus.Fields{"user_id": userID, "connection_id": connectionID}).Debug("Reconnected within grace window")
		if e.online {
			r.pending = append(r.pending, event{Transition: Transition{UserID: userID, Online: true, At: r.conf.Clock()}, resumed: true})
		}
	}
	if !e.online {
		e.online = true
		r.pending = append(r.pending, event{Transition: Transition{UserID: userID, Online: true, At: r.conf.Clock()}})
	}
	r.mu.Unlock()
	r.flush()
}

// Unregister 移除连接。集合变空时不立即下线，而是在宽限期后确认。
func (r *Memory) Unregister(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	if !ok {
		return
	}
	if _, exists := e.conns[connectionID]; !exists {
		return
	}
	delete(e.conns, connectionID)
	if len(e.conns) > 0 {
		return
	}
	e.gen++
	gen := e.gen
	e.grace = r.conf.AfterFunc(r.conf.Grace, func() { r.expire(userID, gen) })
}

func (r *Memory) expire(userID string, gen uint64) {
	r.mu.Lock()
	e, ok := r.users[userID]
	if !ok || e.gen != gen || len(e.conns) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.users, userID)
	if e.online {
		r.pending = append(r.pending, event{Transition: Transition{UserID: userID, Online: false, At: r.conf.Clock()}})
	}
	r.mu.Unlock()
	r.flush()
}

// flush 按入队顺序把待发送转换交给监听器。不持有 mu 调用回调。
func (r *Memory) flush() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.mu.Unlock()
			return
		}
		batch := r.pending
		r.pending = nil
		listeners := append([]Listener(nil), r.listeners...)
		r.mu.Unlock()

		for _, ev := range batch {
			if ev.resumed {
				for _, l := range listeners {
					if rl, ok := l.(ResumeListener); ok {
						rl.OnPresenceResumed(ev.UserID, ev.At)
					}
				}
				continue
			}
			r.log.WithFields(logrus.Fields{"user_id": ev.UserID, "online": ev.Online}).Info("Presence transition")
			for _, l := range listeners {
				l.OnPresenceTransition(ev.Transition)
			}
		}
	}
}

// IsOnline 宽限期内仍返回 true
func (r *Memory) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	return ok && e.online
}

// ConnectionsFor 返回用户当前打开的连接 (有序副本)
func (r *Memory) ConnectionsFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	if !ok || len(e.conns) == 0 {
		return nil
	}
	ids := make([]string, 0, len(e.conns))
	for id := range e.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveRoute 用户没有任何打开的连接时返回 false
func (r *Memory) ResolveRoute(userID string) (Route, bool) {
	ids := r.ConnectionsFor(userID)
	if len(ids) == 0 {
		return Route{UserID: userID}, false
	}
	return Route{UserID: userID, ConnectionIDs: ids}, true
}

// Stats 返回在线用户数与连接总数
func (r *Memory) Stats() (users, connections int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.users {
		if e.online {
			users++
		}
		connections += len(e.conns)
	}
	return users, connections
}

// Close 取消所有未到期的宽限定时器，进程退出时调用
func (r *Memory) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.users {
		if e.grace != nil {
			e.grace.Stop()
			e.grace = nil
			e.gen++
		}
	}
}

package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"collabboard/internal/domain"
	"collabboard/internal/registry"
)

// fakeNotifier 按连接记录出站帧
type fakeNotifier struct {
	mu         sync.Mutex
	reg        registry.Registry
	perConn    map[string][]domain.Envelope
	broadcasts []domain.Envelope
	classes    map[string]domain.Delivery
	// beforeSend 在记录帧之前调用，用于在投递途中挂起发送方
	beforeSend func(env domain.Envelope)
}

func newFakeNotifier(reg registry.Registry) *fakeNotifier {
	return &fakeNotifier{reg: reg, perConn: make(map[string][]domain.Envelope), classes: make(map[string]domain.Delivery)}
}

func (n *fakeNotifier) SendTo(ids []string, env domain.Envelope, class domain.Delivery) {
	if n.beforeSend != nil {
		n.beforeSend(env)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		n.perConn[id] = append(n.perConn[id], env)
	}
	n.classes[env.Type] = class
}

func (n *fakeNotifier) SendToUser(userID string, env domain.Envelope, class domain.Delivery) int {
	var ids []string
	if n.reg != nil {
		ids = n.reg.ConnectionsFor(userID)
	}
	n.SendTo(ids, env, class)
	return len(ids)
}

func (n *fakeNotifier) Broadcast(env domain.Envelope, class domain.Delivery) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, env)
	n.classes[env.Type] = class
}

func (n *fakeNotifier) frames(connID string) []domain.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Envelope(nil), n.perConn[connID]...)
}

func (n *fakeNotifier) types(connID string) []string {
	var out []string
	for _, env := range n.frames(connID) {
		out = append(out, env.Type)
	}
	return out
}

func (n *fakeNotifier) ofType(connID, eventType string) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range n.frames(connID) {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func (n *fakeNotifier) classOf(eventType string) domain.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.classes[eventType]
}

func (n *fakeNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.perConn = make(map[string][]domain.Envelope)
	n.broadcasts = nil
}

// fakeEnqueuer 记录入队的任务
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (e *fakeEnqueuer) taskTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, t := range e.tasks {
		out = append(out, t.Type())
	}
	return out
}

func decode(t *testing.T, env domain.Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Payload, v))
}

func syncSpawn(f func()) { f() }

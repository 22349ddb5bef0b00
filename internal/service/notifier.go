package service

import (
	"context"

	"github.com/hibiken/asynq"

	"collabboard/internal/domain"
)

// Origin 事件的来源连接。HTTP 入口没有连接，ConnectionID 为空。
type Origin struct {
	ConnectionID string
	UserID       string
}

// Notifier 出站投递。由 hub.Hub 实现。
type Notifier interface {
	// SendTo 向指定连接投递
	SendTo(connectionIDs []string, env domain.Envelope, class domain.Delivery)
	// SendToUser 向用户当前所有连接投递，返回投递到的连接数
	SendToUser(userID string, env domain.Envelope, class domain.Delivery) int
	// Broadcast 向所有在线连接投递
	Broadcast(env domain.Envelope, class domain.Delivery)
}

// TaskEnqueuer 后台任务入队，*asynq.Client 满足此接口
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func without(ids []string, skip string) []string {
	if skip == "" {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}

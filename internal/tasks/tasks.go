package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"collabboard/internal/domain"
)

// 任务类型常量
const (
	TypeMessagePersist = "message:persist" // 实时投递后补写失败的消息
	TypeStrokeArchive  = "stroke:archive"  // 白板事件归档
)

// 队列名称，与 worker.NewWorkerServer 中的权重对应
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// MessagePersistPayload 消息补写任务。Receipts 与首次写入时相同，重放是幂等的。
type MessagePersistPayload struct {
	Message  domain.Message          `json:"message"`
	Receipts []domain.MessageReceipt `json:"receipts"`
}

// StrokeArchivePayload 白板事件归档任务
type StrokeArchivePayload struct {
	Action domain.Action `json:"action"`
}

// NewMessagePersistTask 创建消息补写任务，进入 critical 队列
func NewMessagePersistTask(msg domain.Message, receipts []domain.MessageReceipt) (*asynq.Task, error) {
	payload, err := json.Marshal(MessagePersistPayload{Message: msg, Receipts: receipts})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", TypeMessagePersist, err)
	}
	return asynq.NewTask(TypeMessagePersist, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewStrokeArchiveTask 创建白板归档任务，进入 low 队列
func NewStrokeArchiveTask(action domain.Action) (*asynq.Task, error) {
	payload, err := json.Marshal(StrokeArchivePayload{Action: action})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", TypeStrokeArchive, err)
	}
	return asynq.NewTask(TypeStrokeArchive, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(3),
	), nil
}

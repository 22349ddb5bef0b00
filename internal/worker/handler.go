package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collabboard/internal/domain"
	"collabboard/internal/repository"
	"collabboard/internal/tasks"
)

func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID, _ := asynq.GetTaskID(ctx)
	queue, _ := asynq.GetQueueName(ctx)
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     retry,
		"max_retry": maxRetry,
	})
}

// MessagePersistHandler 补写实时投递时未能持久化的消息
type MessagePersistHandler struct {
	messageRepo repository.MessageRepository
}

func NewMessagePersistHandler(messageRepo repository.MessageRepository) *MessagePersistHandler {
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for MessagePersistHandler")
	}
	return &MessagePersistHandler{messageRepo: messageRepo}
}

// ProcessTask 实现 asynq.Handler。消息已存在视为成功，重放是幂等的。
func (h *MessagePersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.MessagePersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	msg := payload.Message
	if msg.ID == "" || msg.ChatID == "" {
		logCtx.Error("Message persist task carries no message id")
		return fmt.Errorf("invalid message payload: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"message_id": msg.ID, "chat_id": msg.ChatID})

	err := h.messageRepo.Create(ctx, &msg, payload.Receipts)
	if errors.Is(err, repository.ErrDuplicateEntry) {
		logCtx.Info("Message already persisted, nothing to do")
		return nil
	}
	if err != nil {
		logCtx.WithError(err).Warn("Failed to persist message, will retry")
		return fmt.Errorf("failed to persist message %s: %w", msg.ID, err)
	}
	logCtx.Info("Message persisted by worker")
	return nil
}

// StrokeArchiveHandler 将白板事件写入归档表
type StrokeArchiveHandler struct {
	actionRepo repository.ActionRepository
}

func NewStrokeArchiveHandler(actionRepo repository.ActionRepository) *StrokeArchiveHandler {
	if actionRepo == nil {
		panic("ActionRepository cannot be nil for StrokeArchiveHandler")
	}
	return &StrokeArchiveHandler{actionRepo: actionRepo}
}

// ProcessTask 实现 asynq.Handler
func (h *StrokeArchiveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.StrokeArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	action := payload.Action
	if action.RoomID == "" {
		return fmt.Errorf("archive task has no room id: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": action.RoomID, "seq": action.Seq, "action_type": action.ActionType})

	if err := h.actionRepo.SaveBatch(ctx, []domain.Action{action}); err != nil {
		logCtx.WithError(err).Error("Failed to archive action")
		return fmt.Errorf("failed to archive action %d of room %s: %w", action.Seq, action.RoomID, err)
	}
	logCtx.Debug("Action archived")
	return nil
}

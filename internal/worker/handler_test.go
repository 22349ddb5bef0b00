package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collabboard/internal/domain"
	"collabboard/internal/repository"
	"collabboard/internal/repository/mocks"
	"collabboard/internal/tasks"
	"collabboard/internal/worker"
)

func persistTask(t *testing.T) (*asynq.Task, domain.Message) {
	t.Helper()
	msg := domain.Message{ID: "m1", ChatID: "c1", SenderID: "alice", Content: "hi", Status: domain.StatusSent, CreatedAt: time.Unix(10, 0).UTC()}
	task, err := tasks.NewMessagePersistTask(msg, []domain.MessageReceipt{{MessageID: "m1", UserID: "bob", ChatID: "c1", Status: domain.StatusSent}})
	require.NoError(t, err)
	return task, msg
}

func TestMessagePersistHandler_Success(t *testing.T) {
	// Arrange
	repo := new(mocks.MessageRepository)
	h := worker.NewMessagePersistHandler(repo)
	task, msg := persistTask(t)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool { return m.ID == msg.ID }),
		mock.MatchedBy(func(rs []domain.MessageReceipt) bool { return len(rs) == 1 && rs[0].UserID == "bob" })).
		Return(nil).Once()

	// Act
	err := h.ProcessTask(context.Background(), task)

	// Assert
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestMessagePersistHandler_DuplicateIsSuccess(t *testing.T) {
	repo := new(mocks.MessageRepository)
	h := worker.NewMessagePersistHandler(repo)
	task, _ := persistTask(t)
	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry).Once()

	assert.NoError(t, h.ProcessTask(context.Background(), task))
	repo.AssertExpectations(t)
}

func TestMessagePersistHandler_StoreErrorIsRetried(t *testing.T) {
	repo := new(mocks.MessageRepository)
	h := worker.NewMessagePersistHandler(repo)
	task, _ := persistTask(t)
	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	err := h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestMessagePersistHandler_BadPayloadSkipsRetry(t *testing.T) {
	repo := new(mocks.MessageRepository)
	h := worker.NewMessagePersistHandler(repo)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeMessagePersist, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeMessagePersist, []byte(`{"message":{}}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestStrokeArchiveHandler(t *testing.T) {
	repo := new(mocks.ActionRepository)
	h := worker.NewStrokeArchiveHandler(repo)
	task, err := tasks.NewStrokeArchiveTask(domain.Action{RoomID: "r1", UserID: "alice", ActionType: domain.ActionClear, Seq: 4})
	require.NoError(t, err)
	repo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(as []domain.Action) bool {
		return len(as) == 1 && as[0].RoomID == "r1" && as[0].Seq == 4
	})).Return(nil).Once()

	assert.NoError(t, h.ProcessTask(context.Background(), task))
	repo.AssertExpectations(t)

	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	assert.Error(t, h.ProcessTask(context.Background(), task))

	noRoom, err := tasks.NewStrokeArchiveTask(domain.Action{})
	require.NoError(t, err)
	assert.ErrorIs(t, h.ProcessTask(context.Background(), noRoom), asynq.SkipRetry)
}

func TestWorkerServer_MuxRoutesTasks(t *testing.T) {
	messages := new(mocks.MessageRepository)
	actions := new(mocks.ActionRepository)
	ws := worker.NewWorkerServer(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, 2, messages, actions, nil)
	task, _ := persistTask(t)
	messages.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	assert.NoError(t, ws.Mux().ProcessTask(context.Background(), task))
	messages.AssertExpectations(t)
}

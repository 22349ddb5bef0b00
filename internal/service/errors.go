package service

import (
	"errors"

	"collabboard/internal/repository"
)

var (
	ErrInvalidEvent        = errors.New("invalid event payload")
	ErrChatNotFound        = errors.New("chat not found")
	ErrNotParticipant      = errors.New("user is not a participant of this chat")
	ErrEmptyContent        = errors.New("message content is empty")
	ErrContentTooLong      = errors.New("message content is too long")
	ErrEraseForbidden      = errors.New("stroke belongs to another user")
	ErrMessageNotPersisted = errors.New("message delivered but not persisted")
	ErrInternalServer      = errors.New("internal server error")
)

// 错误码随 error 事件发给客户端
const (
	CodeInvalidEvent        = "invalid-event"
	CodeChatNotFound        = "chat-not-found"
	CodeForbidden           = "forbidden"
	CodeEraseForbidden      = "erase-forbidden"
	CodeMessageNotPersisted = "message-not-persisted"
	CodeInternal            = "internal"
)

// ErrorCode 将服务层错误映射为客户端可识别的错误码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, ErrEmptyContent), errors.Is(err, ErrContentTooLong):
		return CodeInvalidEvent
	case errors.Is(err, ErrChatNotFound):
		return CodeChatNotFound
	case errors.Is(err, ErrEraseForbidden):
		return CodeEraseForbidden
	case errors.Is(err, ErrNotParticipant):
		return CodeForbidden
	case errors.Is(err, ErrMessageNotPersisted):
		return CodeMessageNotPersisted
	default:
		return CodeInternal
	}
}

// mapRepoError 将存储层错误映射为服务层错误
func mapRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return ErrInternalServer
}

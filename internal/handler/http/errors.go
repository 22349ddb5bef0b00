package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collabboard/internal/service"
)

// HandleServiceError 将服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		serviceErrorResponse(c, http.StatusNotFound, err)
	case errors.Is(err, service.ErrNotParticipant):
		serviceErrorResponse(c, http.StatusForbidden, err)
	case errors.Is(err, service.ErrInvalidEvent), errors.Is(err, service.ErrEmptyContent), errors.Is(err, service.ErrContentTooLong):
		serviceErrorResponse(c, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrMessageNotPersisted):
		serviceErrorResponse(c, http.StatusServiceUnavailable, err)
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

package http

import (
	"github.com/gin-gonic/gin"

	"collabboard/internal/service"
)

// errorBody HTTP 错误响应体。code 与 WebSocket error 事件使用同一套取值。
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, errorBody{Error: message})
}

func serviceErrorResponse(c *gin.Context, status int, err error) {
	c.JSON(status, errorBody{Error: err.Error(), Code: service.ErrorCode(err)})
}

func SuccessResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"chatvault-go/internal/model"
	"chatvault-go/internal/service"
	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "success", data)
}

// statusFor 把业务错误映射为 HTTP 状态码与面向客户端的消息。
func statusFor(err error) (int, string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrLocked):
		return http.StatusForbidden, "keys are locked, unlock first"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway, "the model service failed to respond"
	case errors.Is(err, service.ErrDecryption):
		return http.StatusInternalServerError, "failed to decrypt secret"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// fail 记录错误并按统一格式返回。op 用于日志定位。
func fail(c *gin.Context, op string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorw(op+" 失败", "error", err, "path", c.FullPath())
	} else {
		log.Warnf("%s: %v", op, err)
	}
	respond(c, status, message, nil)
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, message, nil)
}

// currentUser 取出 AuthMiddleware 放入上下文的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		respond(c, http.StatusUnauthorized, "authentication required", nil)
		return nil, false
	}
	user, ok := v.(*model.User)
	if !ok || user == nil {
		respond(c, http.StatusUnauthorized, "authentication required", nil)
		return nil, false
	}
	return user, true
}

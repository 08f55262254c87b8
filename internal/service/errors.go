// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated 凭证缺失、无效、过期，或对应用户不存在。
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredentials 邮箱或密码错误。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserExists 邮箱已被注册。
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound 资源不存在；不属于调用者或已隐藏的资源同样返回此错误。
	ErrNotFound = errors.New("not found")
	// ErrLocked 用户当前没有有效的解锁。
	ErrLocked = errors.New("keys are locked")
	// ErrDecryption 密文损坏或与当前密钥不匹配。
	ErrDecryption = errors.New("failed to decrypt secret")
	// ErrUpstream 上游模型服务调用失败。
	ErrUpstream = errors.New("upstream model error")
)

// ValidationError 表示调用方输入不合法。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation 判断 err 链中是否包含 ValidationError。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

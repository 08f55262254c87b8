// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"chatvault-go/internal/model"
	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// Authenticator 把 token 解析为用户，service.UserService 满足此接口。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// token 依次从 Authorization 头与 cookie 中读取，认证通过后把 User 与原始 token 存入上下文。
func AuthMiddleware(auth Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := BearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			tokenString, _ = c.Cookie(cookieName)
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "authentication required", "data": nil})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			log.Warnf("AuthMiddleware: 认证失败, path: %s, error: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid or expired token", "data": nil})
			return
		}

		// 将完整的 User 对象存储在 context 中，供后续处理函数使用
		c.Set("user", user)
		c.Set("token", tokenString)

		c.Next()
	}
}

// BearerToken 从 "Bearer <token>" 形式的请求头中取出 token，格式不符时返回空串。
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

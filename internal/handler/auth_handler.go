package handler

import (
	"net/http"

	"chatvault-go/internal/service"
	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责注册、登录、登出与当前用户查询。
type AuthHandler struct {
	userService service.UserService
	cookieName  string
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService, cookieName string) *AuthHandler {
	return &AuthHandler{userService: userService, cookieName: cookieName}
}

// CredentialsRequest 是注册与登录共用的请求体。
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 处理用户注册请求。
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: 请求参数绑定失败, error: %v", err)
		badRequest(c, "email and password are required")
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, "Register", err)
		return
	}
	respond(c, http.StatusCreated, "registered", user)
}

// Login 校验凭证，签发 token 并写入 http-only cookie。
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: 请求参数绑定失败, error: %v", err)
		badRequest(c, "email and password are required")
		return
	}

	accessToken, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, "Login", err)
		return
	}

	ttl := int(h.userService.TokenTTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, accessToken, ttl, "/", "", c.Request.TLS != nil, true)

	log.Infof("Login: 用户登录成功: %s", service.NormalizeEmail(req.Email))
	success(c, gin.H{
		"token":      accessToken,
		"email":      service.NormalizeEmail(req.Email),
		"expires_in": ttl,
	})
}

// Logout 清除 cookie 并把当前 token 加入黑名单。
func (h *AuthHandler) Logout(c *gin.Context) {
	if tok := c.GetString("token"); tok != "" {
		if err := h.userService.Logout(c.Request.Context(), tok); err != nil {
			fail(c, "Logout", err)
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	success(c, nil)
}

// Me 返回当前登录的用户。
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	success(c, user)
}

// Status 是健康检查接口。
func Status(c *gin.Context) {
	success(c, gin.H{"status": "ok"})
}

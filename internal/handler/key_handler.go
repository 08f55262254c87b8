package handler

import (
	"net/http"

	"chatvault-go/internal/service"
	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// KeyHandler 负责解锁与秘密的增删改查。
type KeyHandler struct {
	keyService service.KeyService
}

// NewKeyHandler 创建一个新的 KeyHandler。
func NewKeyHandler(keyService service.KeyService) *KeyHandler {
	return &KeyHandler{keyService: keyService}
}

// UnlockRequest 是解锁请求体。
type UnlockRequest struct {
	Password string `json:"password" binding:"required"`
}

// CreateKeyRequest 是新建秘密的请求体。
type CreateKeyRequest struct {
	Label string `json:"label" binding:"required"`
	Value string `json:"value"`
}

// UpdateKeyRequest 是更新秘密的请求体，缺省字段保持不变。
type UpdateKeyRequest struct {
	Label *string `json:"label"`
	Value *string `json:"value"`
}

// Unlock 重新校验密码并为当前用户开启解锁窗口。
func (h *KeyHandler) Unlock(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password is required")
		return
	}
	status, err := h.keyService.Unlock(c.Request.Context(), user.Email, req.Password)
	if err != nil {
		fail(c, "Unlock", err)
		return
	}
	log.Infof("Unlock: 用户已解锁: %s", user.Email)
	respond(c, http.StatusOK, "unlocked", status)
}

// Status 返回当前解锁状态。
func (h *KeyHandler) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	success(c, h.keyService.Status(user.Email))
}

// Lock 立即结束解锁窗口。
func (h *KeyHandler) Lock(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	h.keyService.Lock(user.Email)
	respond(c, http.StatusOK, "locked", h.keyService.Status(user.Email))
}

// List 列出秘密的元数据，不需要解锁。
func (h *KeyHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	keys, err := h.keyService.List(c.Request.Context(), user.Email)
	if err != nil {
		fail(c, "ListKeys", err)
		return
	}
	success(c, keys)
}

// Get 返回解密后的秘密。
func (h *KeyHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	secret, err := h.keyService.Get(c.Request.Context(), user.Email, c.Param("id"))
	if err != nil {
		fail(c, "GetKey", err)
		return
	}
	success(c, secret)
}

// Create 用当前解锁密钥加密并保存一个新秘密。
func (h *KeyHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "label is required")
		return
	}
	key, err := h.keyService.Create(c.Request.Context(), user.Email, req.Label, req.Value)
	if err != nil {
		fail(c, "CreateKey", err)
		return
	}
	respond(c, http.StatusCreated, "created", key)
}

// Update 修改标签和/或秘密值。
func (h *KeyHandler) Update(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	key, err := h.keyService.Update(c.Request.Context(), user.Email, c.Param("id"), service.SecretUpdate{
		Label: req.Label,
		Value: req.Value,
	})
	if err != nil {
		fail(c, "UpdateKey", err)
		return
	}
	success(c, key)
}

// Delete 删除秘密，不需要解锁。
func (h *KeyHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.keyService.Delete(c.Request.Context(), user.Email, c.Param("id")); err != nil {
		fail(c, "DeleteKey", err)
		return
	}
	respond(c, http.StatusOK, "deleted", nil)
}

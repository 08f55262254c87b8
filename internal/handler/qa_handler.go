package handler

import (
	"chatvault-go/internal/service"
	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QAHandler 提供非流式的单次问答接口。
type QAHandler struct {
	chatService service.ChatService
}

// NewQAHandler 创建一个新的 QAHandler。
func NewQAHandler(chatService service.ChatService) *QAHandler {
	return &QAHandler{chatService: chatService}
}

// Ask 与 WebSocket 提问走同一条处理流程，一次性返回完整回复。
func (h *QAHandler) Ask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Ask: 请求参数绑定失败, error: %v", err)
		badRequest(c, "malformed request body")
		return
	}

	answer, err := h.chatService.Ask(c.Request.Context(), user, req)
	if err != nil {
		fail(c, "Ask", err)
		return
	}
	success(c, answer)
}

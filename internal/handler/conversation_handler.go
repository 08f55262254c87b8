package handler

import (
	"strconv"

	"chatvault-go/internal/service"
	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 负责会话列表、详情、隐藏与消息检索。
type ConversationHandler struct {
	conversationService service.ConversationService
	searchService       service.SearchService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversationService service.ConversationService, searchService service.SearchService) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		searchService:       searchService,
	}
}

// List 返回当前用户可见的会话，最近更新的在前。
func (h *ConversationHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	conversations, err := h.conversationService.List(c.Request.Context(), user.Email)
	if err != nil {
		fail(c, "ListConversations", err)
		return
	}
	success(c, conversations)
}

// Get 返回会话及其全部消息。
func (h *ConversationHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	detail, err := h.conversationService.Get(c.Request.Context(), user.Email, c.Param("id"))
	if err != nil {
		fail(c, "GetConversation", err)
		return
	}
	success(c, detail)
}

// Delete 隐藏会话。
func (h *ConversationHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.conversationService.Hide(c.Request.Context(), user.Email, c.Param("id")); err != nil {
		fail(c, "HideConversation", err)
		return
	}
	success(c, nil)
}

// Search 在当前用户的消息中检索 q。
func (h *ConversationHandler) Search(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	query := c.Query("q")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		limit = 0
	}
	log.Infof("[ConversationHandler] 收到消息检索请求, user: %s, q: %s", user.Email, query)

	hits, err := h.searchService.Search(c.Request.Context(), user.Email, query, limit)
	if err != nil {
		fail(c, "SearchMessages", err)
		return
	}
	success(c, hits)
}

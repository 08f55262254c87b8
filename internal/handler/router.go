package handler

import (
	"chatvault-go/internal/middleware"
	"chatvault-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Services 汇总路由依赖的业务服务。
type Services struct {
	User         service.UserService
	Key          service.KeyService
	Conversation service.ConversationService
	Search       service.SearchService
	Chat         service.ChatService
}

// RouterOptions 是路由相关的配置。
type RouterOptions struct {
	CookieName     string
	AllowedOrigins []string
}

// NewRouter 创建 Gin 引擎并注册全部路由。
func NewRouter(svc Services, opts RouterOptions) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(opts.AllowedOrigins))

	authed := middleware.AuthMiddleware(svc.User, opts.CookieName)
	authHandler := NewAuthHandler(svc.User, opts.CookieName)
	conversationHandler := NewConversationHandler(svc.Conversation, svc.Search)
	keyHandler := NewKeyHandler(svc.Key)

	r.GET("/status", Status)

	// Auth 路由组
	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authed, authHandler.Logout)
		auth.GET("/me", authed, authHandler.Me)
	}

	// Conversation 路由组
	conversations := r.Group("/c", authed)
	{
		conversations.GET("/list", conversationHandler.List)
		conversations.GET("/search", conversationHandler.Search)
		conversations.GET("/:id", conversationHandler.Get)
		conversations.DELETE("/:id", conversationHandler.Delete)
	}

	r.POST("/qa", authed, NewQAHandler(svc.Chat).Ask)

	// Keys 路由组
	keys := r.Group("/keys", authed)
	{
		keys.POST("/unlock", keyHandler.Unlock)
		keys.GET("/status", keyHandler.Status)
		keys.POST("/lock", keyHandler.Lock)
		keys.GET("", keyHandler.List)
		keys.POST("", keyHandler.Create)
		keys.GET("/:id", keyHandler.Get)
		keys.PUT("/:id", keyHandler.Update)
		keys.DELETE("/:id", keyHandler.Delete)
	}

	// Chat 路由 (WebSocket)，认证在会话内完成
	r.GET("/ws", NewChatHandler(svc.Chat, svc.User, opts.CookieName, opts.AllowedOrigins).Handle)

	return r
}

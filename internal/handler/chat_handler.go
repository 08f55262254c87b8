package handler

import (
	"net/http"
	"strings"
	"time"

	"chatvault-go/internal/chat"
	"chatvault-go/internal/service"
	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// writeWait 单帧写入允许的最长时间。
	writeWait = 10 * time.Second
	// maxFrameSize 单个入站帧的大小上限。
	maxFrameSize = 64 * 1024
)

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService service.ChatService
	auth        chat.Authenticator
	cookieName  string
	upgrader    websocket.Upgrader
}

// NewChatHandler 创建一个新的 ChatHandler。allowedOrigins 为空时只接受不带 Origin 头的客户端。
func NewChatHandler(chatService service.ChatService, auth chat.Authenticator, cookieName string, allowedOrigins []string) *ChatHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &ChatHandler{
		chatService: chatService,
		auth:        auth,
		cookieName:  cookieName,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// Handle 升级连接后把它交给问答会话，认证在会话内完成。
func (h *ChatHandler) Handle(c *gin.Context) {
	credential := c.Query("token")
	if credential == "" {
		credential, _ = c.Cookie(h.cookieName)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)
	log.Infow("WebSocket 连接已建立", "clientIP", c.ClientIP())

	session := chat.NewSession(&wsTransport{conn: conn, credential: credential}, h.auth, h.chatService)
	session.Run(c.Request.Context())
	log.Infow("WebSocket 连接已关闭", "clientIP", c.ClientIP())
}

// wsTransport 把 gorilla 连接适配为 chat.Transport。
type wsTransport struct {
	conn       *websocket.Conn
	credential string
}

func (t *wsTransport) Credential() string { return t.credential }

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteJSON(v interface{}) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

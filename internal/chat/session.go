// Package chat 实现 WebSocket 上的流式问答会话。
//
// 会话是一个显式的状态机：
//
//	Connecting → Authenticating → Idle ⇄ Processing → Closed
//
// 任一状态在断开连接或传输错误时都会进入 Closed。同一连接上的多个问题严格顺序处理。
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"chatvault-go/internal/model"
	"chatvault-go/internal/service"
	"chatvault-go/pkg/log"

	"github.com/google/uuid"
)

// State 是会话所处的状态。
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateIdle
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transport 是会话底层的双向连接。ReadMessage 只会被读协程调用，WriteJSON 只会被会话协程调用。
type Transport interface {
	// Credential 返回握手时携带的 bearer token。
	Credential() string
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

// Authenticator 把 token 解析为用户。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// Option 配置 Session。
type Option func(*Session)

// WithQueryIDGenerator 替换问题 ID 的生成函数。
func WithQueryIDGenerator(gen func() string) Option {
	return func(s *Session) { s.newQueryID = gen }
}

// WithTransitionHook 在每次状态迁移后调用 hook。
func WithTransitionHook(hook func(from, to State)) Option {
	return func(s *Session) { s.onTransition = hook }
}

// Session 是一个连接上的问答会话。
type Session struct {
	transport Transport
	auth      Authenticator
	chat      service.ChatService

	newQueryID   func() string
	onTransition func(from, to State)

	state      State
	credential string
	user       *model.User
	inbox      chan []byte
	pending    service.QueryRequest
	readerDone sync.WaitGroup
}

// NewSession 创建一个新的会话，调用方随后调用 Run。
func NewSession(transport Transport, auth Authenticator, chat service.ChatService, opts ...Option) *Session {
	s := &Session{
		transport:  transport,
		auth:       auth,
		chat:       chat,
		newQueryID: uuid.NewString,
		state:      StateConnecting,
		inbox:      make(chan []byte, 8),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State 返回当前状态。只应在 Run 所在协程或 Run 返回后调用。
func (s *Session) State() State {
	return s.state
}

// Run 驱动状态机直到进入 Closed。返回时传输已关闭，读协程已退出。
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		_ = s.transport.Close()
		s.readerDone.Wait()
	}()

	for s.state != StateClosed {
		next := s.step(ctx, cancel)
		if next != s.state {
			s.transition(next)
		}
	}
}

func (s *Session) transition(next State) {
	from := s.state
	s.state = next
	log.Debugw("[Session] 状态迁移", "user", s.email(), "from", from.String(), "to", next.String())
	if s.onTransition != nil {
		s.onTransition(from, next)
	}
}

func (s *Session) email() string {
	if s.user == nil {
		return ""
	}
	return s.user.Email
}

// step 执行当前状态的动作，并返回下一个状态。
func (s *Session) step(ctx context.Context, cancel context.CancelFunc) State {
	switch s.state {
	case StateConnecting:
		return s.connect()
	case StateAuthenticating:
		return s.authenticate(ctx, cancel)
	case StateIdle:
		return s.idle(ctx)
	case StateProcessing:
		return s.processing(ctx)
	default:
		return StateClosed
	}
}

// connect 读取握手阶段携带的凭证。
func (s *Session) connect() State {
	s.credential = s.transport.Credential()
	return StateAuthenticating
}

// authenticate 校验凭证。失败时发送一条错误事件后关闭，不重试。
func (s *Session) authenticate(ctx context.Context, cancel context.CancelFunc) State {
	user, err := s.auth.Authenticate(ctx, s.credential)
	if err != nil {
		log.Warnw("[Session] 认证失败", "error", err)
		_ = s.transport.WriteJSON(errorEvent("", errorMessage(service.ErrUnauthenticated)))
		return StateClosed
	}
	s.user = user
	log.Infow("[Session] 连接已认证", "user", user.Email)

	s.readerDone.Add(1)
	go s.readLoop(ctx, cancel)
	return StateIdle
}

// readLoop 把入站消息送入 inbox。读失败意味着连接已断开，此时取消会话上下文。
func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer s.readerDone.Done()
	defer close(s.inbox)
	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			log.Debugw("[Session] 读取结束", "user", s.email(), "error", err)
			cancel()
			return
		}
		select {
		case s.inbox <- data:
		case <-ctx.Done():
			return
		}
	}
}

// idle 等待下一条事件。非 query 事件只回复错误，会话保持 Idle。
func (s *Session) idle(ctx context.Context) State {
	select {
	case <-ctx.Done():
		return StateClosed
	case data, ok := <-s.inbox:
		if !ok {
			return StateClosed
		}
		req, err := parseQuery(data)
		if err != nil {
			if werr := s.transport.WriteJSON(errorEvent("", errorMessage(err))); werr != nil {
				return StateClosed
			}
			return StateIdle
		}
		s.pending = req
		return StateProcessing
	}
}

// processing 处理一个问题。单个问题的失败只产生错误事件，传输失败或断开才会关闭会话。
func (s *Session) processing(ctx context.Context) State {
	req := s.pending
	s.pending = service.QueryRequest{}

	if err := s.answer(ctx, req); err != nil {
		log.Warnw("[Session] 会话终止", "user", s.email(), "error", err)
		return StateClosed
	}
	if ctx.Err() != nil {
		return StateClosed
	}
	return StateIdle
}

// answer 只在传输失败或上下文取消时返回错误。
func (s *Session) answer(ctx context.Context, req service.QueryRequest) error {
	queryID := s.newQueryID()
	log.Infow("[Session] 收到问题", "user", s.email(), "query_id", queryID, "conversation_id", req.ConversationID)

	turn, err := s.chat.PrepareTurn(ctx, s.user, req)
	if err != nil {
		return s.fail(ctx, queryID, err)
	}

	stream, err := s.chat.OpenStream(ctx, turn)
	if err != nil {
		return s.fail(ctx, queryID, err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail(ctx, queryID, fmt.Errorf("%w: %v", service.ErrUpstream, err))
		}
		reply.WriteString(delta)
		if err := s.transport.WriteJSON(chunkEvent(queryID, turn.ConversationID, delta)); err != nil {
			return err
		}
	}

	msg, err := s.chat.CompleteTurn(ctx, turn, reply.String())
	if err != nil {
		return s.fail(ctx, queryID, err)
	}
	log.Infow("[Session] 回答完成", "user", s.email(), "query_id", queryID, "conversation_id", turn.ConversationID)
	return s.transport.WriteJSON(doneEvent(queryID, turn.ConversationID, msg.Content, service.FormatTimestamp(msg.CreatedAt)))
}

// fail 发送一条带 query_id 的错误事件。连接已断开时直接返回上下文错误。
func (s *Session) fail(ctx context.Context, queryID string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Warnw("[Session] 问题处理失败", "user", s.email(), "query_id", queryID, "error", cause)
	return s.transport.WriteJSON(errorEvent(queryID, errorMessage(cause)))
}

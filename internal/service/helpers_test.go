package service

import (
	"context"
	"io"
	"sync"
	"testing"

	"chatvault-go/internal/model"
	"chatvault-go/internal/repository"
	"chatvault-go/internal/testutil"
	"chatvault-go/pkg/llm"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type fixture struct {
	db        *gorm.DB
	users     repository.UserRepository
	convs     repository.ConversationRepository
	keys      repository.KeyRepository
	blacklist repository.TokenBlacklist
	mr        *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &fixture{
		db:        db,
		users:     repository.NewUserRepository(db),
		convs:     repository.NewConversationRepository(db),
		keys:      repository.NewKeyRepository(db),
		blacklist: repository.NewTokenBlacklist(rdb),
		mr:        mr,
	}
}

func (f *fixture) seedUser(t *testing.T, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "unused"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

// fakeLLM 按脚本返回流式增量或完整回复，并记录收到的上下文。
type fakeLLM struct {
	mu        sync.Mutex
	deltas    []string
	reply     string
	err       error
	streamErr error
	calls     [][]llm.Message
}

func (f *fakeLLM) record(messages []llm.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
}

func (f *fakeLLM) lastCall() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message) (string, error) {
	f.record(messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) GenerateStream(_ context.Context, messages []llm.Message) (llm.Stream, error) {
	f.record(messages)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{deltas: append([]string(nil), f.deltas...), err: f.streamErr}, nil
}

type fakeStream struct {
	deltas []string
	err    error
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.deltas) > 0 {
		d := s.deltas[0]
		s.deltas = s.deltas[1:]
		return d, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// recordingIndexer 记录发布的索引任务。
type recordingIndexer struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (r *recordingIndexer) Index(_ context.Context, _ string, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *recordingIndexer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// Package unlock 实现按用户划分、限时有效的解锁缓存。
//
// 用户重新校验密码后，缓存保存解锁时间与由密码派生出的对称密钥；
// 超过 Window 后该条目在下一次读取时被惰性淘汰。缓存只存在于进程内存中，重启即失效。
package unlock

import (
	"context"
	"sync"
	"time"

	"chatvault-go/pkg/keycrypt"
)

// Window 解锁的有效期。
const Window = 5 * time.Minute

// Clock 提供当前时间，测试中可替换。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Verifier 校验用户密码，密码错误或用户不存在时返回错误。
type Verifier interface {
	VerifyPassword(ctx context.Context, identity, password string) error
}

// Option 配置 Cache。
type Option func(*Cache)

// WithClock 替换时间来源。
func WithClock(clock Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithDeriveFunc 替换密钥派生函数，默认使用 keycrypt.DeriveKey。
func WithDeriveFunc(derive func(password string) []byte) Option {
	return func(c *Cache) { c.derive = derive }
}

type entry struct {
	grantedAt time.Time
	key       []byte
}

// slot 保存单个用户的条目。dead 的 slot 已从 map 中移除，写入方需要重新获取。
type slot struct {
	mu    sync.Mutex
	entry *entry
	dead  bool
}

// Cache 是解锁缓存。每个用户的读写在其 slot 锁内完成，不同用户之间互不阻塞。
// 锁顺序固定为先 slot 后 map，持有 map 锁时从不获取 slot 锁。
type Cache struct {
	verifier Verifier
	clock    Clock
	derive   func(password string) []byte

	mu    sync.Mutex
	slots map[string]*slot
}

// New 创建一个解锁缓存。
func New(verifier Verifier, opts ...Option) *Cache {
	c := &Cache{
		verifier: verifier,
		clock:    systemClock{},
		derive:   keycrypt.DeriveKey,
		slots:    make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unlock 校验密码，成功后派生密钥并覆盖该用户已有的条目。
// 校验失败时返回 Verifier 的错误，已有条目保持不变。
func (c *Cache) Unlock(ctx context.Context, identity, password string) error {
	if err := c.verifier.VerifyPassword(ctx, identity, password); err != nil {
		return err
	}
	// 派生较慢，放在所有锁之外
	key := c.derive(password)

	for {
		s := c.slotFor(identity)
		s.mu.Lock()
		if s.dead {
			s.mu.Unlock()
			continue
		}
		s.entry = &entry{grantedAt: c.clock.Now(), key: key}
		s.mu.Unlock()
		return nil
	}
}

// ActiveKey 返回仍在有效期内的派生密钥。条目过期时将其淘汰并返回 false。
func (c *Cache) ActiveKey(identity string) ([]byte, bool) {
	e, ok := c.active(identity)
	if !ok {
		return nil, false
	}
	key := make([]byte, len(e.key))
	copy(key, e.key)
	return key, true
}

// IsUnlocked 判断用户当前是否处于解锁状态。
func (c *Cache) IsUnlocked(identity string) bool {
	_, ok := c.active(identity)
	return ok
}

// ExpiresAt 返回当前解锁的失效时间。
func (c *Cache) ExpiresAt(identity string) (time.Time, bool) {
	e, ok := c.active(identity)
	if !ok {
		return time.Time{}, false
	}
	return e.grantedAt.Add(Window), true
}

// Lock 立即丢弃用户的解锁条目。
func (c *Cache) Lock(identity string) {
	s := c.lookup(identity)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dead {
		c.evictLocked(identity, s)
	}
}

func (c *Cache) active(identity string) (entry, bool) {
	s := c.lookup(identity)
	if s == nil {
		return entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead || s.entry == nil {
		return entry{}, false
	}
	// 恰好等于 grantedAt+Window 时仍然有效
	if c.clock.Now().After(s.entry.grantedAt.Add(Window)) {
		c.evictLocked(identity, s)
		return entry{}, false
	}
	return *s.entry, true
}

// evictLocked 在持有 s.mu 时调用。
func (c *Cache) evictLocked(identity string, s *slot) {
	s.entry = nil
	s.dead = true
	c.mu.Lock()
	if c.slots[identity] == s {
		delete(c.slots, identity)
	}
	c.mu.Unlock()
}

func (c *Cache) lookup(identity string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[identity]
}

func (c *Cache) slotFor(identity string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[identity]
	if !ok {
		s = &slot{}
		c.slots[identity] = s
	}
	return s
}

// len 返回当前保存的条目数，仅用于测试。
func (c *Cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

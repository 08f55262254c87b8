package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatvault-go/internal/model"
	"chatvault-go/internal/repository"
	"chatvault-go/internal/unlock"
	"chatvault-go/pkg/keycrypt"
	"chatvault-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxLabelLength 秘密标签的最大字符数。
const MaxLabelLength = 255

// UnlockStatus 描述用户当前的解锁状态。
type UnlockStatus struct {
	Unlocked  bool       `json:"unlocked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Secret 是解密后的秘密。
type Secret struct {
	model.UserKey
	Value string `json:"value"`
}

// SecretUpdate 描述一次更新，nil 字段保持不变。
type SecretUpdate struct {
	Label *string
	Value *string
}

// KeyService 定义了秘密管理的业务操作。创建、读取与更新需要有效的解锁，列表与删除不需要。
type KeyService interface {
	Unlock(ctx context.Context, email, password string) (UnlockStatus, error)
	Status(email string) UnlockStatus
	Lock(email string)

	List(ctx context.Context, email string) ([]model.UserKey, error)
	Get(ctx context.Context, email, id string) (*Secret, error)
	Create(ctx context.Context, email, label, value string) (*model.UserKey, error)
	Update(ctx context.Context, email, id string, upd SecretUpdate) (*model.UserKey, error)
	Delete(ctx context.Context, email, id string) error
}

type keyService struct {
	keyRepo repository.KeyRepository
	cache   *unlock.Cache
}

// NewKeyService 创建一个新的 KeyService 实例。
func NewKeyService(keyRepo repository.KeyRepository, cache *unlock.Cache) KeyService {
	return &keyService{keyRepo: keyRepo, cache: cache}
}

// Unlock 重新校验密码并开启解锁窗口。
func (s *keyService) Unlock(ctx context.Context, email, password string) (UnlockStatus, error) {
	if password == "" {
		return UnlockStatus{}, invalid("password", "must not be empty")
	}
	if err := s.cache.Unlock(ctx, email, password); err != nil {
		return UnlockStatus{}, err
	}
	log.Infow("[KeyService] 用户已解锁", "user", email)
	return s.Status(email), nil
}

// Status 返回解锁状态与失效时间。
func (s *keyService) Status(email string) UnlockStatus {
	expiresAt, ok := s.cache.ExpiresAt(email)
	if !ok {
		return UnlockStatus{}
	}
	return UnlockStatus{Unlocked: true, ExpiresAt: &expiresAt}
}

// Lock 立即结束解锁窗口。
func (s *keyService) Lock(email string) {
	s.cache.Lock(email)
}

func (s *keyService) activeKey(email string) ([]byte, error) {
	key, ok := s.cache.ActiveKey(email)
	if !ok {
		return nil, ErrLocked
	}
	return key, nil
}

func validateLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", invalid("label", "must not be empty")
	}
	if len([]rune(label)) > MaxLabelLength {
		return "", invalid("label", "must be at most %d characters", MaxLabelLength)
	}
	return label, nil
}

// List 返回用户的秘密列表，不包含秘密值。
func (s *keyService) List(ctx context.Context, email string) ([]model.UserKey, error) {
	return s.keyRepo.ListByOwner(ctx, email)
}

func (s *keyService) find(ctx context.Context, email, id string) (*model.UserKey, error) {
	key, err := s.keyRepo.FindByID(ctx, email, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return key, nil
}

// Get 解密并返回一条秘密。
func (s *keyService) Get(ctx context.Context, email, id string) (*Secret, error) {
	dk, err := s.activeKey(email)
	if err != nil {
		return nil, err
	}
	key, err := s.find(ctx, email, id)
	if err != nil {
		return nil, err
	}
	if key.Scheme != keycrypt.Scheme {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrDecryption, key.Scheme)
	}
	value, err := keycrypt.Open(dk, key.Ciphertext)
	if err != nil {
		log.Warnw("[KeyService] 解密失败", "user", email, "key_id", id)
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return &Secret{UserKey: *key, Value: value}, nil
}

// Create 使用当前解锁密钥加密并保存一条新秘密。
func (s *keyService) Create(ctx context.Context, email, label, value string) (*model.UserKey, error) {
	dk, err := s.activeKey(email)
	if err != nil {
		return nil, err
	}
	label, err = validateLabel(label)
	if err != nil {
		return nil, err
	}
	sealed, err := keycrypt.Seal(dk, value)
	if err != nil {
		return nil, err
	}

	key := &model.UserKey{
		ID:         uuid.NewString(),
		UserEmail:  email,
		Label:      label,
		Ciphertext: sealed,
		Scheme:     keycrypt.Scheme,
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, err
	}
	log.Infow("[KeyService] 新建秘密", "user", email, "key_id", key.ID)
	return key, nil
}

// Update 修改标签和/或秘密值，秘密值以当前解锁密钥重新加密。
func (s *keyService) Update(ctx context.Context, email, id string, upd SecretUpdate) (*model.UserKey, error) {
	dk, err := s.activeKey(email)
	if err != nil {
		return nil, err
	}
	if upd.Label == nil && upd.Value == nil {
		return nil, invalid("", "nothing to update")
	}
	key, err := s.find(ctx, email, id)
	if err != nil {
		return nil, err
	}

	if upd.Label != nil {
		label, err := validateLabel(*upd.Label)
		if err != nil {
			return nil, err
		}
		key.Label = label
	}
	if upd.Value != nil {
		sealed, err := keycrypt.Seal(dk, *upd.Value)
		if err != nil {
			return nil, err
		}
		key.Ciphertext = sealed
		key.Scheme = keycrypt.Scheme
	}
	if err := s.keyRepo.Update(ctx, key); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 读取之后被并发删除
			return nil, ErrNotFound
		}
		return nil, err
	}
	return key, nil
}

// Delete 删除一条秘密。
func (s *keyService) Delete(ctx context.Context, email, id string) error {
	deleted, err := s.keyRepo.Delete(ctx, email, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	log.Infow("[KeyService] 删除秘密", "user", email, "key_id", id)
	return nil
}

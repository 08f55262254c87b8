package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"chatvault-go/internal/model"
	"chatvault-go/internal/repository"
	"chatvault-go/pkg/hash"
	"chatvault-go/pkg/log"
	"chatvault-go/pkg/token"

	"gorm.io/gorm"
)

// MinPasswordLength 注册时密码的最小长度。
const MinPasswordLength = 6

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, email, password string) (*model.User, error)
	// Login 校验密码并签发 access token。
	Login(ctx context.Context, email, password string) (accessToken string, err error)
	GetProfile(ctx context.Context, email string) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	// Authenticate 校验 token 的签名、有效期与黑名单，并解析出用户。
	Authenticate(ctx context.Context, tokenString string) (*model.User, error)
	// VerifyPassword 重新校验用户密码，供解锁使用。
	VerifyPassword(ctx context.Context, email, password string) error
	TokenTTL() time.Duration
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
	now        func() time.Time
}

// NewUserService 创建一个新的 UserService 实例。blacklist 为 nil 时登出只清理客户端 cookie。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
		now:        time.Now,
	}
}

// NormalizeEmail 去掉首尾空白并转为小写。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalid("email", "invalid email address")
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, invalid("password", "must be at least %d characters", MinPasswordLength)
	}

	// 1. 检查邮箱是否已存在
	_, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 将用户存入数据库，并发注册时由主键约束兜底
	newUser := &model.User{
		Email:        email,
		PasswordHash: hashedPassword,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	log.Infof("[UserService] 新用户注册成功: %s", email)
	return newUser, nil
}

func (s *userService) checkPassword(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !hash.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.checkPassword(ctx, email, password)
	if err != nil {
		return "", err
	}
	return s.jwtManager.GenerateToken(user.Email)
}

// VerifyPassword 校验密码，失败时返回 ErrInvalidCredentials。
func (s *userService) VerifyPassword(ctx context.Context, email, password string) error {
	_, err := s.checkPassword(ctx, email, password)
	return err
}

// GetProfile 根据邮箱获取用户详细信息。
func (s *userService) GetProfile(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		// 已失效的 token 无需拉黑
		return nil
	}
	if s.blacklist == nil {
		return nil
	}
	// token 的剩余有效期将作为 Redis key 的过期时间。
	return s.blacklist.Add(ctx, tokenString, claims.ExpiresAt.Sub(s.now()))
}

// Authenticate 将 token 解析为用户，任何失败都归为 ErrUnauthenticated。
func (s *userService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	if tokenString == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if s.blacklist != nil {
		revoked, err := s.blacklist.Contains(ctx, tokenString)
		if err != nil {
			return nil, fmt.Errorf("check token blacklist: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
		}
	}
	user, err := s.userRepo.FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
		}
		return nil, err
	}
	return user, nil
}

// TokenTTL 返回签发 token 的有效期。
func (s *userService) TokenTTL() time.Duration {
	return s.jwtManager.TTL()
}

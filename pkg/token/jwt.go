// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired 表示 token 已过期。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid 表示 token 签名错误、格式错误或缺少必要声明。
	ErrTokenInvalid = errors.New("invalid token")
)

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey      []byte        // secretKey 用于签名和验证 token 的密钥
	accessTokenDur time.Duration // accessTokenDur 定义了 access token 的有效期
	now            func() time.Time
}

// CustomClaims 定义了我们想要在 JWT 中存储的自定义数据。
// 它嵌入了 jwt.RegisteredClaims 以包含标准的 JWT 声明（如过期时间）。
type CustomClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// secret: 用于签名的密钥字符串。
// accessTokenExpireHours: access token 的过期时间（小时），<=0 时使用 24 小时。
func NewJWTManager(secret string, accessTokenExpireHours int) *JWTManager {
	if accessTokenExpireHours <= 0 {
		accessTokenExpireHours = 24
	}
	return &JWTManager{
		secretKey:      []byte(secret),
		accessTokenDur: time.Hour * time.Duration(accessTokenExpireHours),
		now:            time.Now,
	}
}

// WithClock 替换时间来源，仅用于测试。
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	m.now = now
	return m
}

// TTL 返回 access token 的有效期。
func (m *JWTManager) TTL() time.Duration {
	return m.accessTokenDur
}

// GenerateToken 为给定邮箱生成一个新的 access token，包含签发时间与过期时间。
func (m *JWTManager) GenerateToken(email string) (string, error) {
	now := m.now()
	claims := CustomClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	// 使用 HS256 签名方法创建新的 token 对象
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 有效，它会返回 CustomClaims 对象；过期返回 ErrTokenExpired，其他失败返回 ErrTokenInvalid。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired(), jwt.WithIssuedAt())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

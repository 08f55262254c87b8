// Package keycrypt 负责从用户密码派生对称密钥，并用该密钥加解密用户保存的秘密。
//
// 派生是确定性的：同一密码总能得到同一密钥，因此解锁后无需持久化任何密钥材料。
// 代价是修改密码后，旧密码加密的秘密将无法再解密。
package keycrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Scheme 标识密文格式：base64(nonce || AES-256-GCM 密文)。
	Scheme = "aes-256-gcm"

	// KeySize 派生密钥长度（AES-256）。
	KeySize = 32
	// Iterations PBKDF2 迭代次数。
	Iterations = 100000

	saltLen = 16
)

// ErrDecrypt 表示密文格式错误，或密钥与密文不匹配。
var ErrDecrypt = errors.New("keycrypt: decryption failed")

// DeriveKey 使用 PBKDF2-HMAC-SHA256 从密码派生 32 字节密钥。
// 盐取自密码 SHA-256 十六进制串的前 16 个字符。
func DeriveKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	salt := []byte(hex.EncodeToString(sum[:])[:saltLen])
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// Seal 使用 AES-256-GCM 加密明文，每次调用生成新的随机 nonce。
func Seal(key []byte, plaintext string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keycrypt: generate nonce: %w", err)
	}

	out := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open 解密 Seal 生成的密文。格式错误或密钥不匹配时返回 ErrDecrypt。
func Open(key []byte, sealed string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrDecrypt
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("keycrypt: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

package model

import "time"

// UserKey 对应 user_keys 表，保存用户的命名秘密。
// 秘密值只以密文形式落库，解密需要有效的解锁会话。
type UserKey struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserEmail string `gorm:"type:varchar(255);not null;index" json:"-"`
	// Label 为明文标签。
	Label string `gorm:"type:varchar(255);not null" json:"label"`
	// Ciphertext 为 base64(nonce || 密文)，Scheme 记录加密方案。
	Ciphertext string    `gorm:"type:text;not null" json:"-"`
	Scheme     string    `gorm:"type:varchar(32);not null" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UserKey) TableName() string {
	return "user_keys"
}

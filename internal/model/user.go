// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// User 对应 users 表。邮箱是用户的唯一且稳定的身份标识，被其他表作为外键引用。
type User struct {
	Email string `gorm:"type:varchar(255);primaryKey" json:"email"`
	// PasswordHash 为 bcrypt 哈希串，盐值内嵌其中。
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

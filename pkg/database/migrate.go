// Package database 负责初始化数据库连接与表结构。
package database

import (
	"chatvault-go/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate 创建或更新所有模型对应的表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Message{},
		&model.UserKey{},
	)
}

package database

import (
	"time"

	"chatvault-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接并迁移表结构
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	if err := AutoMigrate(DB); err != nil {
		log.Fatal("failed to migrate database", err)
	}
	if err := ensureFullTextIndex(DB); err != nil {
		// 全文索引只影响检索性能，不阻止启动
		log.Error("创建消息全文索引失败", err)
	}

	log.Info("MySQL database connected successfully")
}

// ensureFullTextIndex 为消息检索投影列创建 MySQL FULLTEXT 索引（已存在则跳过）。
func ensureFullTextIndex(db *gorm.DB) error {
	const indexName = "idx_messages_content_search"
	if db.Migrator().HasIndex("messages", indexName) {
		return nil
	}
	return db.Exec("CREATE FULLTEXT INDEX " + indexName + " ON messages (content_search)").Error
}

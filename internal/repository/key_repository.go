// Package repository 包含了所有与数据库交互的逻辑。
package repository

import (
	"context"
	"time"

	"chatvault-go/internal/model"

	"gorm.io/gorm"
)

// KeyRepository 定义了用户秘密记录的数据操作方法。所有查询都按所有者限定。
type KeyRepository interface {
	Create(ctx context.Context, key *model.UserKey) error
	FindByID(ctx context.Context, email, id string) (*model.UserKey, error)
	ListByOwner(ctx context.Context, email string) ([]model.UserKey, error)
	Update(ctx context.Context, key *model.UserKey) error
	// Delete 删除记录，返回是否有记录被删除。
	Delete(ctx context.Context, email, id string) (bool, error)
}

type keyRepository struct {
	db *gorm.DB
}

// NewKeyRepository 创建一个新的 KeyRepository 实例。
func NewKeyRepository(db *gorm.DB) KeyRepository {
	return &keyRepository{db: db}
}

// Create 在数据库中插入一条新的秘密记录。
func (r *keyRepository) Create(ctx context.Context, key *model.UserKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

// FindByID 查找属于 email 的秘密记录，不存在时返回 gorm.ErrRecordNotFound。
func (r *keyRepository) FindByID(ctx context.Context, email, id string) (*model.UserKey, error) {
	var key model.UserKey
	err := r.db.WithContext(ctx).Where("id = ? AND user_email = ?", id, email).First(&key).Error
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListByOwner 返回用户的全部秘密记录，最近更新的在前。
func (r *keyRepository) ListByOwner(ctx context.Context, email string) ([]model.UserKey, error) {
	var keys []model.UserKey
	err := r.db.WithContext(ctx).
		Where("user_email = ?", email).
		Order("updated_at DESC").
		Find(&keys).Error
	return keys, err
}

// Update 更新已存在的秘密记录，记录已被删除时返回 gorm.ErrRecordNotFound，不会重新插入。
func (r *keyRepository) Update(ctx context.Context, key *model.UserKey) error {
	now := time.Now()
	scope := r.db.WithContext(ctx).Model(&model.UserKey{}).Where("id = ? AND user_email = ?", key.ID, key.UserEmail)
	res := scope.Updates(map[string]interface{}{
		"label":      key.Label,
		"ciphertext": key.Ciphertext,
		"scheme":     key.Scheme,
		"updated_at": now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL 在值未变化时同样返回 0，需要再确认记录是否存在
		var n int64
		if err := r.db.WithContext(ctx).Model(&model.UserKey{}).Where("id = ? AND user_email = ?", key.ID, key.UserEmail).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	key.UpdatedAt = now
	return nil
}

// Delete 根据 ID 与所有者删除秘密记录。
func (r *keyRepository) Delete(ctx context.Context, email, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND user_email = ?", id, email).Delete(&model.UserKey{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

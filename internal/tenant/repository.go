package tenant

import (
	"context"
	"errors"

	"saulto/internal/common"

	"gorm.io/gorm"
)

// ErrNotFound 租户不存在
var ErrNotFound = errors.New("tenant: not found")

// ErrDisabled 租户已停用
var ErrDisabled = errors.New("tenant: disabled")

// Repository 租户存储
type Repository struct {
	*common.BaseService
}

// NewRepository 创建租户存储
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{BaseService: common.NewBaseService(db)}
}

// GetByID 按 ID 取租户
func (r *Repository) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	var t Tenant
	err := r.GetDBWithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// VerifyActive 校验租户存在且处于活跃状态
// 认证中间件用它拦截已停用或被删除租户的令牌
func (r *Repository) VerifyActive(ctx context.Context, id int64) error {
	var t Tenant
	err := r.GetDBWithContext(ctx).Scopes(common.ActiveOnly()).First(&t, id).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// 区分不存在和已停用
	if _, getErr := r.GetByID(ctx, id); getErr == nil {
		return ErrDisabled
	} else if !errors.Is(getErr, ErrNotFound) {
		return getErr
	}
	return ErrNotFound
}

package tenant

import "saulto/internal/common"

// 租户状态
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Tenant 租户，所有指标数据以 TenantID 隔离
type Tenant struct {
	ID     int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Name   string `json:"name" gorm:"size:255;not null"`
	Slug   string `json:"slug" gorm:"size:100;uniqueIndex;not null"`
	Status string `json:"status" gorm:"size:50;not null;default:active"`
	common.TimestampModel
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}

// IsActive 租户是否可用
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

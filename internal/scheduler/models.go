package scheduler

import (
	"time"

	"saulto/internal/common"
)

// ScheduleEntry 调度条目
// 一条记录对应一个 (租户, 连接器) 的周期同步任务，lastSyncAt/nextSyncAt
// 持久化在库里，进程重启后调度状态不丢失
type ScheduleEntry struct {
	ID              int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID        int64      `json:"tenantId" gorm:"not null;uniqueIndex:idx_schedule_tenant_connector,priority:1"`
	ConnectorType   string     `json:"connectorType" gorm:"size:50;not null;uniqueIndex:idx_schedule_tenant_connector,priority:2"`
	Enabled         bool       `json:"enabled" gorm:"default:true;index"`
	IntervalMinutes int        `json:"intervalMinutes" gorm:"not null;default:1440"`
	LastSyncAt      *time.Time `json:"lastSyncAt"`
	NextSyncAt      *time.Time `json:"nextSyncAt" gorm:"index"`
	common.TimestampModel
}

// TableName 指定表名
func (ScheduleEntry) TableName() string {
	return "schedule_entries"
}

// Interval 完整调度间隔
func (e *ScheduleEntry) Interval() time.Duration {
	if e.IntervalMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.IntervalMinutes) * time.Minute
}

// IsDue 判断条目是否到期
// nextSyncAt 为空的启用条目视为立即到期（新建条目首轮就跑）
func (e *ScheduleEntry) IsDue(now time.Time) bool {
	if !e.Enabled {
		return false
	}
	if e.NextSyncAt == nil {
		return true
	}
	return !now.Before(*e.NextSyncAt)
}

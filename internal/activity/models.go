package activity

import (
	"time"

	"saulto/internal/common"
)

// 活动类型
const (
	TypeSync       = "sync"
	TypeETL        = "etl"
	TypeManualSync = "manual_sync"
)

// 活动状态
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// PipelineActivity 数据管道活动记录
// 调度器和 ETL 的每次执行都会落一条，供仪表盘展示最近的管道动态
type PipelineActivity struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID      int64     `json:"tenantId" gorm:"not null;index:idx_activity_tenant_time,priority:1"`
	ActivityType  string    `json:"activityType" gorm:"size:50;not null"`
	ConnectorType string    `json:"connectorType" gorm:"size:50"`
	Status        string    `json:"status" gorm:"size:20;not null"`
	Message       string    `json:"message" gorm:"size:1000"`
	RecordsSynced int       `json:"recordsSynced"`
	RowsWritten   int       `json:"rowsWritten"`
	DurationMs    int64     `json:"durationMs"`
	OccurredAt    time.Time `json:"occurredAt" gorm:"not null;index:idx_activity_tenant_time,priority:2,sort:desc"`
	common.TimestampModel
}

// TableName 指定表名
func (PipelineActivity) TableName() string {
	return "pipeline_activities"
}

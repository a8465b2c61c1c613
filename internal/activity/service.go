package activity

import (
	"context"
	"time"

	"saulto/internal/common"
	"saulto/internal/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 管道活动服务
type Service struct {
	*common.BaseService
}

// NewService 创建管道活动服务
func NewService(db *gorm.DB) *Service {
	return &Service{BaseService: common.NewBaseService(db)}
}

// Record 写一条活动记录
// 活动记录是旁路数据，写失败只记日志，不影响主流程
func (s *Service) Record(ctx context.Context, entry *PipelineActivity) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if err := s.Create(ctx, entry); err != nil {
		logger.WithContext(ctx).Warn("写入管道活动记录失败",
			zap.Int64("tenant_id", entry.TenantID),
			zap.String("activity_type", entry.ActivityType),
			zap.Error(err),
		)
	}
}

// ListRecent 按时间倒序列出租户最近的活动
func (s *Service) ListRecent(ctx context.Context, tenantID int64, page, pageSize int) ([]PipelineActivity, int64, error) {
	var activities []PipelineActivity

	query := s.GetDBWithContext(ctx).Model(&PipelineActivity{})
	query = s.ApplyTenantFilter(query, tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("occurred_at DESC")
	query = s.ApplyPagination(query, page, pageSize)
	if err := query.Find(&activities).Error; err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}

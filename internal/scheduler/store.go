package scheduler

import (
	"context"
	"errors"
	"time"

	"saulto/internal/common"

	"gorm.io/gorm"
)

// ErrEntryNotFound 调度条目不存在
var ErrEntryNotFound = errors.New("调度条目不存在")

// EntryStore 调度条目存储
type EntryStore struct {
	*common.BaseService
}

// NewEntryStore 创建调度条目存储
func NewEntryStore(db *gorm.DB) *EntryStore {
	return &EntryStore{BaseService: common.NewBaseService(db)}
}

// Get 按 ID 取条目
func (s *EntryStore) Get(ctx context.Context, id int64) (*ScheduleEntry, error) {
	var entry ScheduleEntry
	err := s.GetDBWithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List 列出租户的全部调度条目
func (s *EntryStore) List(ctx context.Context, tenantID int64) ([]ScheduleEntry, error) {
	var entries []ScheduleEntry
	query := s.GetDBWithContext(ctx).Model(&ScheduleEntry{})
	query = s.ApplyTenantFilter(query, tenantID)
	err := query.Order("id ASC").Find(&entries).Error
	return entries, err
}

// ListDue 列出所有到期的启用条目
func (s *EntryStore) ListDue(ctx context.Context, now time.Time) ([]ScheduleEntry, error) {
	var entries []ScheduleEntry
	err := s.GetDBWithContext(ctx).
		Where("enabled = ?", true).
		Where("next_sync_at IS NULL OR next_sync_at <= ?", now).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// SetEnabled 启用/停用条目
func (s *EntryStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result := s.GetDBWithContext(ctx).
		Model(&ScheduleEntry{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// MarkSuccess 同步+刷新成功后的记账：lastSyncAt=now，nextSyncAt=now+完整间隔
func (s *EntryStore) MarkSuccess(ctx context.Context, entry *ScheduleEntry, now time.Time) error {
	next := now.Add(entry.Interval())
	return s.GetDBWithContext(ctx).
		Model(&ScheduleEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"last_sync_at": now,
			"next_sync_at": next,
		}).Error
}

// MarkFailure 失败后的记账：nextSyncAt=now+短重试间隔，lastSyncAt 不动
func (s *EntryStore) MarkFailure(ctx context.Context, entry *ScheduleEntry, now time.Time, retryDelay time.Duration) error {
	return s.GetDBWithContext(ctx).
		Model(&ScheduleEntry{}).
		Where("id = ?", entry.ID).
		Update("next_sync_at", now.Add(retryDelay)).Error
}

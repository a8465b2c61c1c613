package metrics

import (
	"context"
	"time"

	"saulto/internal/common"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ============================================================================
// 指标定义仓库（核心只读）
// ============================================================================

// DefinitionRepository 指标定义查询
type DefinitionRepository struct {
	*common.BaseService
}

// NewDefinitionRepository 创建指标定义仓库
func NewDefinitionRepository(db *gorm.DB) *DefinitionRepository {
	return &DefinitionRepository{BaseService: common.NewBaseService(db)}
}

// ListActive 列出租户所有启用的指标定义
func (r *DefinitionRepository) ListActive(ctx context.Context, tenantID int64) ([]MetricDefinition, error) {
	var defs []MetricDefinition
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("is_active = ?", true).
		Order("key ASC").
		Find(&defs).Error
	return defs, err
}

// ListActiveByKeys 按键列出启用的指标定义，keys 为空等价于 ListActive
func (r *DefinitionRepository) ListActiveByKeys(ctx context.Context, tenantID int64, keys []string) ([]MetricDefinition, error) {
	if len(keys) == 0 {
		return r.ListActive(ctx, tenantID)
	}
	var defs []MetricDefinition
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("is_active = ?", true).
		Where("key IN ?", keys).
		Order("key ASC").
		Find(&defs).Error
	return defs, err
}

// ============================================================================
// 时间序列仓库
// ============================================================================

// SeriesRepository 时间序列读写
type SeriesRepository struct {
	*common.BaseService
}

// NewSeriesRepository 创建时间序列仓库
func NewSeriesRepository(db *gorm.DB) *SeriesRepository {
	return &SeriesRepository{BaseService: common.NewBaseService(db)}
}

// UpsertPoints 按唯一键 (tenant, period_type, series_label, is_goal, ts) 批量写入
// 冲突时覆盖数值列，保证窗口重算幂等、绝不追加重复行
func (r *SeriesRepository) UpsertPoints(tx *gorm.DB, points []TimeSeriesPoint) error {
	if len(points) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "period_type"}, {Name: "series_label"}, {Name: "is_goal"}, {Name: "ts"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"value", "running_sum", "period_relative_value",
			"period_relative_running_sum", "baseline_value", "updated_at",
		}),
	}).CreateInBatches(points, 200).Error
}

// FetchActual 取实际序列，按标签过滤（可选）与时间升序
func (r *SeriesRepository) FetchActual(ctx context.Context, tenantID int64, pt PeriodType, labels []string, window *common.DateRange) ([]TimeSeriesPoint, error) {
	query := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("period_type = ? AND is_goal = ?", pt, false)
	if len(labels) > 0 {
		query = query.Where("series_label IN ?", labels)
	}
	query = r.ApplyDateRangeFilter(query, "ts", window)

	var points []TimeSeriesPoint
	err := query.Order("series_label ASC, ts ASC").Find(&points).Error
	return points, err
}

// LastUpdatedAt 窗口内实际序列的最近写入时间，无数据返回 nil
func (r *SeriesRepository) LastUpdatedAt(ctx context.Context, tenantID int64, pt PeriodType, window *common.DateRange) (*time.Time, error) {
	query := r.GetDBWithContext(ctx).
		Model(&TimeSeriesPoint{}).
		Scopes(common.ByTenant(tenantID)).
		Where("period_type = ? AND is_goal = ?", pt, false)
	query = r.ApplyDateRangeFilter(query, "ts", window)

	var last *time.Time
	if err := query.Select("MAX(updated_at)").Scan(&last).Error; err != nil {
		return nil, err
	}
	return last, nil
}

// HasData 判断租户在该周期类型下是否已有实际序列
func (r *SeriesRepository) HasData(ctx context.Context, tenantID int64, pt PeriodType) (bool, error) {
	count, err := r.Count(ctx, &TimeSeriesPoint{},
		"tenant_id = ? AND period_type = ? AND is_goal = ?", tenantID, pt, false)
	return count > 0, err
}

// ============================================================================
// 事实数据仓库（只读，由连接器服务写入）
// ============================================================================

// FactRepository 业务事实查询
type FactRepository struct {
	*common.BaseService
}

// NewFactRepository 创建事实数据仓库
func NewFactRepository(db *gorm.DB) *FactRepository {
	return &FactRepository{BaseService: common.NewBaseService(db)}
}

// FetchUpTo 取租户截至某日（含当日）的事实行，时间升序
// 累计型指标的自纪元累计值需要窗口之前的全部历史
func (r *FactRepository) FetchUpTo(ctx context.Context, tenantID int64, sourceTable string, end time.Time) ([]FactRecord, error) {
	query := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("occurred_at < ?", TruncateDay(end).AddDate(0, 0, 1))
	if sourceTable != "" {
		query = query.Where("source_table = ?", sourceTable)
	}

	var facts []FactRecord
	err := query.Order("occurred_at ASC").Find(&facts).Error
	return facts, err
}

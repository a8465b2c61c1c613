package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"saulto/internal/activity"
	"saulto/internal/connector"
	"saulto/internal/logger"
	"saulto/internal/metrics"

	"go.uber.org/zap"
)

// Runner 执行单个调度条目的同步+刷新
// 流程：连接器同步 → 安全周期的强制 ETL 重算 → 持久化记账。
// 任一阶段失败都会把 nextSyncAt 推到短重试点而不是完整间隔
type Runner struct {
	store    *EntryStore
	conn     connector.Adapter
	etl      *metrics.ETLService
	activity *activity.Service

	retryDelay time.Duration
	nowFunc    func() time.Time

	// 同一条目的执行互斥，重叠的 tick 跳过而不是并发跑
	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewRunner 创建执行器
func NewRunner(store *EntryStore, conn connector.Adapter, etl *metrics.ETLService, act *activity.Service, retryDelay time.Duration) *Runner {
	return &Runner{
		store:      store,
		conn:       conn,
		etl:        etl,
		activity:   act,
		retryDelay: retryDelay,
		nowFunc:    time.Now,
		inflight:   make(map[int64]struct{}),
	}
}

// Run 执行一个调度条目
// manual 表示手动触发，记账逻辑与定时触发完全相同
func (r *Runner) Run(ctx context.Context, entryID int64, manual bool) error {
	entry, err := r.store.Get(ctx, entryID)
	if err != nil {
		return err
	}

	if !r.tryAcquire(entry.ID) {
		logger.WithContext(ctx).Info("调度条目已在执行，跳过本次触发",
			zap.Int64("entry_id", entry.ID),
			zap.Int64("tenant_id", entry.TenantID),
		)
		return nil
	}
	defer r.release(entry.ID)

	ctx = logger.WithTenantID(ctx, entry.TenantID)
	log := logger.WithContext(ctx).With(
		zap.Int64("entry_id", entry.ID),
		zap.String("connector_type", entry.ConnectorType),
		zap.Bool("manual", manual),
	)
	started := r.nowFunc().UTC()

	activityType := activity.TypeSync
	if manual {
		activityType = activity.TypeManualSync
	}

	// 阶段一：连接器同步
	syncResult, err := r.conn.Sync(ctx, entry.TenantID, entry.ConnectorType)
	if err != nil {
		log.Warn("连接器同步失败，安排短重试", zap.Error(err))
		r.bookFailure(ctx, entry, activityType, started, err.Error(), 0)
		return err
	}

	// 阶段二：安全周期的强制重算
	// 季度/年度序列的累计窗口更宽，不走自动刷新路径
	var rowsWritten int
	for _, pt := range metrics.AutoRefreshPeriodTypes {
		result, err := r.etl.RunETLJob(ctx, metrics.ETLRequest{
			TenantID:     entry.TenantID,
			PeriodType:   pt,
			ForceRefresh: true,
		})
		if err != nil {
			log.Warn("ETL 刷新失败，安排短重试",
				zap.String("period_type", string(pt)), zap.Error(err))
			r.bookFailure(ctx, entry, activityType, started, err.Error(), syncResult.RecordsSynced)
			return err
		}
		if !result.Success {
			log.Warn("ETL 刷新未写入任何数据，安排短重试",
				zap.String("period_type", string(pt)), zap.String("message", result.Message))
			r.bookFailure(ctx, entry, activityType, started, result.Message, syncResult.RecordsSynced)
			return fmt.Errorf("ETL 刷新失败: %s", result.Message)
		}
		rowsWritten += result.RowsWritten
	}

	// 阶段三：成功记账
	now := r.nowFunc().UTC()
	if err := r.store.MarkSuccess(ctx, entry, now); err != nil {
		log.Error("调度记账失败", zap.Error(err))
		return err
	}
	r.activity.Record(ctx, &activity.PipelineActivity{
		TenantID:      entry.TenantID,
		ActivityType:  activityType,
		ConnectorType: entry.ConnectorType,
		Status:        activity.StatusSuccess,
		Message:       fmt.Sprintf("同步 %d 条记录，重算 %d 行序列", syncResult.RecordsSynced, rowsWritten),
		RecordsSynced: syncResult.RecordsSynced,
		RowsWritten:   rowsWritten,
		DurationMs:    time.Since(started).Milliseconds(),
		OccurredAt:    now,
	})
	log.Info("调度条目执行完成",
		zap.Int("records_synced", syncResult.RecordsSynced),
		zap.Int("rows_written", rowsWritten),
	)
	return nil
}

// bookFailure 失败记账：短重试 + 活动记录
func (r *Runner) bookFailure(ctx context.Context, entry *ScheduleEntry, activityType string, started time.Time, message string, recordsSynced int) {
	now := r.nowFunc().UTC()
	if err := r.store.MarkFailure(ctx, entry, now, r.retryDelay); err != nil {
		logger.WithContext(ctx).Error("失败记账写入失败",
			zap.Int64("entry_id", entry.ID), zap.Error(err))
	}
	r.activity.Record(ctx, &activity.PipelineActivity{
		TenantID:      entry.TenantID,
		ActivityType:  activityType,
		ConnectorType: entry.ConnectorType,
		Status:        activity.StatusFailed,
		Message:       message,
		RecordsSynced: recordsSynced,
		DurationMs:    time.Since(started).Milliseconds(),
		OccurredAt:    now,
	})
}

func (r *Runner) tryAcquire(entryID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[entryID]; busy {
		return false
	}
	r.inflight[entryID] = struct{}{}
	return true
}

func (r *Runner) release(entryID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, entryID)
}

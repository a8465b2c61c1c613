package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"saulto/internal/common"
	"saulto/internal/logger"
	"saulto/internal/monitor"

	"github.com/Knetic/govaluate"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ETLRequest ETL 作业请求
type ETLRequest struct {
	TenantID     int64
	PeriodType   PeriodType
	Window       *common.DateRange // 为空时取当前周期起点到今天
	ForceRefresh bool
	// Deliberate 人工显式触发。季度/年度序列的强刷只允许显式触发，
	// 调度器的自动刷新路径不得携带该标记
	Deliberate bool
}

// ETLService 时间序列计算引擎
// 对每个启用的指标定义求值事实数据，按天聚合后写入实际序列
type ETLService struct {
	db     *gorm.DB
	defs   *DefinitionRepository
	series *SeriesRepository
	facts  *FactRepository

	staleness time.Duration
	nowFunc   func() time.Time

	// 同一 (租户, 周期类型) 的作业互斥，并发到达的第二个请求直接拒绝
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewETLService 创建 ETL 服务
func NewETLService(db *gorm.DB, staleness time.Duration) *ETLService {
	return &ETLService{
		db:        db,
		defs:      NewDefinitionRepository(db),
		series:    NewSeriesRepository(db),
		facts:     NewFactRepository(db),
		staleness: staleness,
		nowFunc:   time.Now,
		inflight:  make(map[string]struct{}),
	}
}

// RunETLJob 执行一次 ETL 作业
// 返回错误仅限参数校验与并发冲突；单指标失败聚合进结果，只要有一个指标
// 写入成功，作业即判定成功
func (s *ETLService) RunETLJob(ctx context.Context, req ETLRequest) (*ETLResult, error) {
	if req.TenantID <= 0 {
		return nil, NewValidationError("tenantId", "租户ID必须为正数")
	}
	if !IsValidPeriodType(req.PeriodType) {
		return nil, NewValidationError("periodType", fmt.Sprintf("不支持的周期类型: %s", req.PeriodType))
	}
	// 宽窗口周期的强刷必须显式触发
	if req.ForceRefresh && !req.Deliberate && !IsAutoRefreshSafe(req.PeriodType) {
		return nil, NewValidationError("periodType",
			fmt.Sprintf("%s 序列的强制重算必须显式触发，不允许自动刷新", req.PeriodType))
	}

	now := s.nowFunc().UTC()
	window := DefaultWindow(req.PeriodType, now)
	if req.Window != nil {
		window = *req.Window
	}

	// 作业互斥
	if !s.tryAcquire(req.TenantID, req.PeriodType) {
		monitor.ETLRunsTotal.WithLabelValues(string(req.PeriodType), "conflict").Inc()
		return nil, &ConcurrencyConflictError{TenantID: req.TenantID, PeriodType: req.PeriodType}
	}
	defer s.release(req.TenantID, req.PeriodType)

	ctx = logger.WithTenantID(ctx, req.TenantID)
	log := logger.WithContext(ctx).With(zap.String("period_type", string(req.PeriodType)))

	// 新鲜度检查：窗口内已有足够新的数据且未要求强刷时直接跳过
	if !req.ForceRefresh {
		last, err := s.series.LastUpdatedAt(ctx, req.TenantID, req.PeriodType, &window)
		if err != nil {
			return nil, fmt.Errorf("查询序列写入时间失败: %w", err)
		}
		if last != nil && now.Sub(*last) < s.staleness {
			monitor.ETLRunsTotal.WithLabelValues(string(req.PeriodType), "skipped").Inc()
			return &ETLResult{Success: true, Message: "窗口内数据仍然新鲜，跳过重算"}, nil
		}
	}

	started := time.Now()
	defs, err := s.defs.ListActive(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("加载指标定义失败: %w", err)
	}
	if len(defs) == 0 {
		log.Info("租户没有启用的指标定义，ETL 空跑")
		return &ETLResult{Success: true, Message: "没有启用的指标定义"}, nil
	}

	// 逐指标求值，单指标失败跳过、记录，不中断作业
	var (
		allPoints []TimeSeriesPoint
		failures  []error
	)
	for i := range defs {
		def := &defs[i]
		points, err := s.computeMetricSeries(ctx, def, req.PeriodType, window)
		if err != nil {
			evalErr := &SourceEvaluationError{MetricKey: def.Key, Err: err}
			log.Warn("指标求值失败，已跳过",
				zap.String("metric_key", def.Key),
				zap.Error(err),
			)
			failures = append(failures, evalErr)
			continue
		}
		allPoints = append(allPoints, points...)
	}

	// 窗口范围的写入放在一个事务里，读方不会看到半成品
	if len(allPoints) > 0 {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.series.UpsertPoints(tx, allPoints)
		})
		if err != nil {
			return nil, fmt.Errorf("写入时间序列失败: %w", err)
		}
	}

	monitor.ETLDuration.WithLabelValues(string(req.PeriodType)).Observe(time.Since(started).Seconds())

	if len(allPoints) == 0 && len(failures) > 0 {
		monitor.ETLRunsTotal.WithLabelValues(string(req.PeriodType), "failed").Inc()
		return &ETLResult{
			Success: false,
			Message: (&JobFailure{Failures: failures}).Error(),
		}, nil
	}

	monitor.ETLRunsTotal.WithLabelValues(string(req.PeriodType), "success").Inc()
	monitor.ETLRowsWritten.WithLabelValues(string(req.PeriodType)).Add(float64(len(allPoints)))

	msg := fmt.Sprintf("写入 %d 行", len(allPoints))
	if len(failures) > 0 {
		msg = fmt.Sprintf("写入 %d 行，%d 个指标求值失败已跳过", len(allPoints), len(failures))
	}
	log.Info("ETL 作业完成",
		zap.Int("rows_written", len(allPoints)),
		zap.Int("metrics_failed", len(failures)),
	)
	return &ETLResult{Success: true, Message: msg, RowsWritten: len(allPoints)}, nil
}

// EnsureFresh 读路径的新鲜度保证：仅在缺数据或过期时重算
func (s *ETLService) EnsureFresh(ctx context.Context, tenantID int64, pt PeriodType) (*ETLResult, error) {
	return s.RunETLJob(ctx, ETLRequest{TenantID: tenantID, PeriodType: pt})
}

// GetStatus 查询 ETL 数据状态
func (s *ETLService) GetStatus(ctx context.Context, tenantID int64, pt PeriodType) (*ETLStatus, error) {
	if tenantID <= 0 {
		return nil, NewValidationError("tenantId", "租户ID必须为正数")
	}
	if !IsValidPeriodType(pt) {
		return nil, NewValidationError("periodType", fmt.Sprintf("不支持的周期类型: %s", pt))
	}

	hasData, err := s.series.HasData(ctx, tenantID, pt)
	if err != nil {
		return nil, err
	}
	last, err := s.series.LastUpdatedAt(ctx, tenantID, pt, nil)
	if err != nil {
		return nil, err
	}
	return &ETLStatus{HasData: hasData, LastUpdated: last}, nil
}

// tryAcquire 尝试占用 (租户, 周期类型) 作业槽
func (s *ETLService) tryAcquire(tenantID int64, pt PeriodType) bool {
	key := fmt.Sprintf("%d|%s", tenantID, pt)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

// release 释放作业槽
func (s *ETLService) release(tenantID int64, pt PeriodType) {
	key := fmt.Sprintf("%d|%s", tenantID, pt)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// dailyBucket 单日聚合桶
type dailyBucket struct {
	sum   float64
	count int64
}

// computeMetricSeries 对单个指标求值事实数据，产出窗口内的序列点
// 累计型：runningSum 自最早事实日起逐日累加；均值型：runningSum 为截至当日
// 全部事实行的滚动平均
func (s *ETLService) computeMetricSeries(ctx context.Context, def *MetricDefinition, pt PeriodType, window common.DateRange) ([]TimeSeriesPoint, error) {
	if def.SourceExpression == "" {
		return nil, fmt.Errorf("源表达式为空")
	}
	expr, err := govaluate.NewEvaluableExpression(def.SourceExpression)
	if err != nil {
		return nil, fmt.Errorf("解析源表达式失败: %w", err)
	}

	facts, err := s.facts.FetchUpTo(ctx, def.TenantID, def.SourceTable, window.End)
	if err != nil {
		return nil, fmt.Errorf("加载事实数据失败: %w", err)
	}
	if len(facts) == 0 {
		// 没有事实数据就不产出任何点（目标序列的定义域是实际序列的子集）
		return nil, nil
	}

	// 按业务日聚合
	buckets := make(map[time.Time]*dailyBucket)
	for i := range facts {
		fact := &facts[i]
		value, err := s.evaluateFact(expr, fact)
		if err != nil {
			return nil, err
		}
		day := businessDay(fact, def.DateColumn)
		bucket, ok := buckets[day]
		if !ok {
			bucket = &dailyBucket{}
			buckets[day] = bucket
		}
		bucket.sum += value
		bucket.count++
	}

	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	// 从最早事实日逐日推进，保证累计值自纪元起正确且重算幂等。
	// 终点取窗口末尾和最后一个事实日的较早者：序列不会超出实际数据的范围
	end := window.End
	if last := days[len(days)-1]; last.Before(end) {
		end = last
	}

	var (
		points     []TimeSeriesPoint
		runningSum float64
		baseline   float64
		totalSum   float64
		totalCount int64
	)
	for day := days[0]; !day.After(end); day = day.AddDate(0, 0, 1) {
		var dayValue float64
		if bucket, ok := buckets[day]; ok {
			switch def.ValueKind {
			case KindAverage:
				dayValue = bucket.sum / float64(bucket.count)
				totalSum += bucket.sum
				totalCount += bucket.count
			default:
				dayValue = bucket.sum
			}
		}

		switch def.ValueKind {
		case KindAverage:
			if totalCount > 0 {
				runningSum = totalSum / float64(totalCount)
			}
		default:
			// 周期第一天先落基线，当天的周期相对值等于当天自身的增量
			if IsPeriodStart(pt, day) {
				baseline = runningSum
			}
			runningSum += dayValue
		}

		if day.Before(window.Start) {
			continue
		}

		point := TimeSeriesPoint{
			TenantID:    def.TenantID,
			PeriodType:  pt,
			SeriesLabel: def.Name,
			IsGoal:      false,
			Ts:          day,
			Value:       dayValue,
			RunningSum:  runningSum,
		}
		switch def.ValueKind {
		case KindAverage:
			// 均值型不做周期相对重置
			point.PeriodRelativeValue = dayValue
			point.PeriodRelativeRunningSum = runningSum
		default:
			point.PeriodRelativeValue = dayValue
			point.PeriodRelativeRunningSum = runningSum - baseline
			point.BaselineValue = baseline
		}
		points = append(points, point)
	}

	return points, nil
}

// evaluateFact 对单行事实求值源表达式
// 数值结果直接取值；布尔结果按计数语义折算成 0/1
func (s *ETLService) evaluateFact(expr *govaluate.EvaluableExpression, fact *FactRecord) (float64, error) {
	params := make(map[string]interface{}, len(fact.Attributes))
	for k, v := range fact.Attributes {
		params[k] = v
	}

	result, err := expr.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("表达式求值失败: %w", err)
	}

	switch v := result.(type) {
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("表达式结果类型不支持: %T", result)
	}
}

// businessDay 解析事实行的业务日期
// 优先使用指标定义指定的日期属性，缺失或无法解析时回退到 occurred_at
func businessDay(fact *FactRecord, dateColumn string) time.Time {
	if dateColumn == "" || dateColumn == "occurred_at" {
		return TruncateDay(fact.OccurredAt)
	}
	raw, ok := fact.Attributes[dateColumn]
	if !ok {
		return TruncateDay(fact.OccurredAt)
	}
	switch v := raw.(type) {
	case string:
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return TruncateDay(t)
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return TruncateDay(t)
		}
	case time.Time:
		return TruncateDay(v)
	}
	return TruncateDay(fact.OccurredAt)
}

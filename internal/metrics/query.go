package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saulto/internal/logger"
	"saulto/internal/monitor"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxMetricKeys 单次查询允许的指标键数量上限
const MaxMetricKeys = 10

// QueryService 序列查询读路径
// 组装实际序列、派生目标序列与进度；除受限的保鲜重算外不产生任何写副作用
type QueryService struct {
	etl    *ETLService
	defs   *DefinitionRepository
	series *SeriesRepository
	goals  GoalSource

	freshnessTimeout time.Duration
	nowFunc          func() time.Time
}

// NewQueryService 创建查询服务
func NewQueryService(db *gorm.DB, etl *ETLService, goals GoalSource, freshnessTimeout time.Duration) *QueryService {
	return &QueryService{
		etl:              etl,
		defs:             NewDefinitionRepository(db),
		series:           NewSeriesRepository(db),
		goals:            goals,
		freshnessTimeout: freshnessTimeout,
		nowFunc:          time.Now,
	}
}

// GetSeries 查询租户的指标序列
// 新租户或无数据的指标返回空序列和零进度，不报错
func (s *QueryService) GetSeries(ctx context.Context, tenantID int64, pt PeriodType, metricKeys []string) (*SeriesResponse, error) {
	if tenantID <= 0 {
		monitor.SeriesQueriesTotal.WithLabelValues(string(pt), "invalid").Inc()
		return nil, NewValidationError("tenantId", "租户ID必须为正数")
	}
	if !IsValidPeriodType(pt) {
		monitor.SeriesQueriesTotal.WithLabelValues(string(pt), "invalid").Inc()
		return nil, NewValidationError("periodType", fmt.Sprintf("不支持的周期类型: %s", pt))
	}
	if len(metricKeys) > MaxMetricKeys {
		monitor.SeriesQueriesTotal.WithLabelValues(string(pt), "invalid").Inc()
		return nil, NewValidationError("metricKeys", fmt.Sprintf("指标键不能超过 %d 个", MaxMetricKeys))
	}

	ctx = logger.WithTenantID(ctx, tenantID)
	now := s.nowFunc().UTC()

	// 有界保鲜：超时或同键作业在跑都降级为用现有数据继续服务
	warning := s.ensureFresh(ctx, tenantID, pt)

	var (
		defs []MetricDefinition
		err  error
	)
	if len(metricKeys) == 0 {
		defs, err = s.defs.ListActive(ctx, tenantID)
	} else {
		defs, err = s.defs.ListActiveByKeys(ctx, tenantID, metricKeys)
	}
	if err != nil {
		return nil, fmt.Errorf("加载指标定义失败: %w", err)
	}

	window := DefaultWindow(pt, now)
	labels := make([]string, len(defs))
	for i := range defs {
		labels[i] = defs[i].Name
	}

	var byLabel map[string][]TimeSeriesPoint
	if len(labels) > 0 {
		points, err := s.series.FetchActual(ctx, tenantID, pt, labels, &window)
		if err != nil {
			return nil, fmt.Errorf("查询时间序列失败: %w", err)
		}
		byLabel = make(map[string][]TimeSeriesPoint)
		for _, p := range points {
			byLabel[p.SeriesLabel] = append(byLabel[p.SeriesLabel], p)
		}
	}

	resp := &SeriesResponse{
		TenantID:   tenantID,
		PeriodType: pt,
		Series:     make([]MetricSeries, 0, len(defs)),
		Warning:    warning,
	}
	for i := range defs {
		def := &defs[i]
		actual := byLabel[def.Name]
		if pt == PeriodYearly {
			actual = rollupMonthly(actual, def.ValueKind)
		}
		goal, err := s.goals.GoalSeries(ctx, def, pt, actual)
		if err != nil {
			// 按需计算是兜底，到这里失败只能是定义本身有问题
			logger.WithContext(ctx).Warn("目标序列派生失败",
				zap.String("metric_key", def.Key), zap.Error(err))
			goal = nil
		}
		resp.Series = append(resp.Series, MetricSeries{
			MetricKey:  def.Key,
			MetricName: def.Name,
			Format:     def.Format,
			Unit:       def.Unit,
			ValueKind:  def.ValueKind,
			Actual:     actual,
			Goal:       goal,
			Progress:   CalculateProgress(actual, goal, now),
		})
	}

	status := "ok"
	if warning != "" {
		status = "degraded"
	}
	monitor.SeriesQueriesTotal.WithLabelValues(string(pt), status).Inc()
	return resp, nil
}

// GetETLStatus 查询 ETL 数据状态
func (s *QueryService) GetETLStatus(ctx context.Context, tenantID int64, pt PeriodType) (*ETLStatus, error) {
	return s.etl.GetStatus(ctx, tenantID, pt)
}

// ListDefinitions 列出租户启用的指标定义（只读，CRUD 在外部管理端）
func (s *QueryService) ListDefinitions(ctx context.Context, tenantID int64) ([]MetricDefinition, error) {
	if tenantID <= 0 {
		return nil, NewValidationError("tenantId", "租户ID必须为正数")
	}
	return s.defs.ListActive(ctx, tenantID)
}

// ensureFresh 有界的保鲜检查
// 返回非空字符串表示降级服务的提示；任何失败都不阻断读路径
func (s *QueryService) ensureFresh(ctx context.Context, tenantID int64, pt PeriodType) string {
	freshCtx, cancel := context.WithTimeout(ctx, s.freshnessTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.etl.EnsureFresh(freshCtx, tenantID, pt)
		done <- err
	}()

	select {
	case err := <-done:
		var conflict *ConcurrencyConflictError
		if errors.As(err, &conflict) {
			// 同键重算已在进行中，直接用现有数据
			return ""
		}
		if err != nil {
			logger.WithContext(ctx).Warn("保鲜重算失败，用现有数据降级服务",
				zap.String("period_type", string(pt)), zap.Error(err))
			return "数据刷新失败，当前返回的是既有数据"
		}
		return ""
	case <-freshCtx.Done():
		staleErr := &StalenessTimeoutError{TenantID: tenantID, PeriodType: pt}
		logger.WithContext(ctx).Warn("保鲜检查超时，用现有数据降级服务",
			zap.String("period_type", string(pt)), zap.Duration("timeout", s.freshnessTimeout))
		return staleErr.Error()
	}
}

// rollupMonthly 年度视图的日粒度点按月聚合
// 累计型：月值为日增量之和，累计值取当月最后一天；均值型：月值取当月最后
// 一天的滚动平均。时间戳统一落在当月最后一个自然日
func rollupMonthly(points []TimeSeriesPoint, kind ValueKind) []TimeSeriesPoint {
	if len(points) == 0 {
		return points
	}

	var (
		out     []TimeSeriesPoint
		current TimeSeriesPoint
		open    bool
	)
	flush := func() {
		if open {
			out = append(out, current)
			open = false
		}
	}

	for i := range points {
		p := points[i]
		if open && (current.Ts.Year() != p.Ts.Year() || current.Ts.Month() != p.Ts.Month()) {
			flush()
		}
		if !open {
			current = p
			current.Ts = EndOfMonth(p.Ts)
			if kind == KindAverage {
				current.Value = p.RunningSum
				current.PeriodRelativeValue = p.RunningSum
			}
			open = true
			continue
		}
		switch kind {
		case KindAverage:
			current.Value = p.RunningSum
			current.PeriodRelativeValue = p.RunningSum
		default:
			current.Value += p.Value
			current.PeriodRelativeValue += p.PeriodRelativeValue
		}
		current.RunningSum = p.RunningSum
		current.PeriodRelativeRunningSum = p.PeriodRelativeRunningSum
		current.BaselineValue = p.BaselineValue
	}
	flush()
	return out
}

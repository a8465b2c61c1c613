package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"saulto/internal/logger"
	"saulto/internal/monitor"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 目标策略名
const (
	GoalStrategyOnDemand     = "on_demand"
	GoalStrategyDBView       = "db_view"
	GoalStrategyMaterialized = "materialized"
)

// goalCacheKeyPattern 预计算目标的 redis 键：saulto:goals:{租户}:{周期}:{指标键}
const goalCacheKeyPattern = "saulto:goals:%d:%s:%s"

// errGranularityUnsupported 查找型策略只存日粒度的单位目标，
// 年度视图（月粒度）统一回退到按需计算
var errGranularityUnsupported = errors.New("该策略不支持月粒度目标查找")

// GoalSource 目标序列来源
// 目标序列永远是派生数据，定义域是实际序列日期的子集；
// 三种实现对相同输入必须产出一致的数值
type GoalSource interface {
	Name() string
	// GoalSeries 沿实际序列的日期定义域派生目标点
	GoalSeries(ctx context.Context, def *MetricDefinition, pt PeriodType, actual []TimeSeriesPoint) ([]TimeSeriesPoint, error)
}

// NewGoalSource 按配置的策略构建目标来源
// 非按需策略一律套上回退包装，失败时退回按需计算
func NewGoalSource(strategy string, db *gorm.DB, rdb redis.UniversalClient, cacheTTL time.Duration) GoalSource {
	onDemand := &onDemandGoalSource{}
	switch strategy {
	case GoalStrategyDBView:
		return &fallbackGoalSource{primary: &dbViewGoalSource{db: db}, fallback: onDemand}
	case GoalStrategyMaterialized:
		materialized := &materializedGoalSource{rdb: rdb, ttl: cacheTTL}
		// 缓存未命中回退按需计算后自动回填
		return &fallbackGoalSource{primary: materialized, fallback: onDemand, refill: materialized}
	default:
		return onDemand
	}
}

// goalTarget 取某一天适用的静态目标值
func goalTarget(def *MetricDefinition, day time.Time) float64 {
	switch def.GoalType {
	case GoalMonthly:
		return def.MonthlyGoal(int(day.Month()))
	case GoalQuarterly:
		return def.QuarterlyGoal(QuarterOf(day))
	default:
		return def.YearlyGoal
	}
}

// perUnitGoal 目标摊到单个时间单位上的值
// 年度视图的点已按月预聚合，单位是月；其余视图单位是天。
// 使用固定的 365/90/30 近似天数，周期边界处存在微小系统性漂移
func perUnitGoal(def *MetricDefinition, pt PeriodType, day time.Time) float64 {
	target := goalTarget(def, day)
	if pt == PeriodYearly {
		switch def.GoalType {
		case GoalMonthly:
			return target
		case GoalQuarterly:
			return target / 3
		default:
			return target / GoalUnitsYearlyByMonth
		}
	}
	return target / GoalUnitDays(def.GoalType)
}

// assembleGoalPoints 沿实际定义域组装目标点
// perUnit 给出每个日期的单位目标；累计型 runningGoal 自 0 起累加，
// 均值型目标是一条平线
func assembleGoalPoints(def *MetricDefinition, pt PeriodType, actual []TimeSeriesPoint, perUnit func(day time.Time) (float64, error)) ([]TimeSeriesPoint, error) {
	if len(actual) == 0 {
		return nil, nil
	}

	label := def.GoalLabel()
	points := make([]TimeSeriesPoint, 0, len(actual))
	var runningGoal float64

	for i := range actual {
		day := actual[i].Ts
		point := TimeSeriesPoint{
			TenantID:    def.TenantID,
			PeriodType:  pt,
			SeriesLabel: label,
			IsGoal:      true,
			Ts:          day,
		}

		if def.ValueKind == KindAverage {
			// 均值型：目标不摊薄也不累加
			point.Value = def.YearlyGoal
			point.RunningSum = def.YearlyGoal
			point.PeriodRelativeValue = def.YearlyGoal
			point.PeriodRelativeRunningSum = def.YearlyGoal
			points = append(points, point)
			continue
		}

		unit, err := perUnit(day)
		if err != nil {
			return nil, err
		}
		runningGoal += unit
		point.Value = unit
		point.RunningSum = runningGoal
		point.PeriodRelativeValue = unit
		point.PeriodRelativeRunningSum = runningGoal
		points = append(points, point)
	}
	return points, nil
}

// onDemandGoalSource 按需计算，权威实现
type onDemandGoalSource struct{}

func (s *onDemandGoalSource) Name() string { return GoalStrategyOnDemand }

func (s *onDemandGoalSource) GoalSeries(_ context.Context, def *MetricDefinition, pt PeriodType, actual []TimeSeriesPoint) ([]TimeSeriesPoint, error) {
	return assembleGoalPoints(def, pt, actual, func(day time.Time) (float64, error) {
		return perUnitGoal(def, pt, day), nil
	})
}

// dbViewGoalSource 从 SQL 视图 metric_goal_series 查找日粒度单位目标
// 视图由迁移脚本维护，列: tenant_id, metric_key, ts, goal_value
type dbViewGoalSource struct {
	db *gorm.DB
}

func (s *dbViewGoalSource) Name() string { return GoalStrategyDBView }

func (s *dbViewGoalSource) GoalSeries(ctx context.Context, def *MetricDefinition, pt PeriodType, actual []TimeSeriesPoint) ([]TimeSeriesPoint, error) {
	if len(actual) == 0 {
		return nil, nil
	}
	if pt == PeriodYearly {
		return nil, errGranularityUnsupported
	}

	type viewRow struct {
		Ts        time.Time
		GoalValue float64
	}
	var rows []viewRow
	start := actual[0].Ts
	end := actual[len(actual)-1].Ts
	err := s.db.WithContext(ctx).
		Raw(`SELECT ts, goal_value FROM metric_goal_series
		     WHERE tenant_id = ? AND metric_key = ? AND ts BETWEEN ? AND ?`,
			def.TenantID, def.Key, start, end).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询目标视图失败: %w", err)
	}

	byDay := make(map[time.Time]float64, len(rows))
	for _, row := range rows {
		byDay[TruncateDay(row.Ts)] = row.GoalValue
	}
	return assembleGoalPoints(def, pt, actual, func(day time.Time) (float64, error) {
		unit, ok := byDay[day]
		if !ok {
			return 0, fmt.Errorf("目标视图缺少 %s 的数据", day.Format("2006-01-02"))
		}
		return unit, nil
	})
}

// materializedGoalSource 从 redis 预计算哈希查找日粒度单位目标
// 哈希字段是 2006-01-02 格式的日期，值是单位目标
type materializedGoalSource struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func (s *materializedGoalSource) Name() string { return GoalStrategyMaterialized }

func (s *materializedGoalSource) GoalSeries(ctx context.Context, def *MetricDefinition, pt PeriodType, actual []TimeSeriesPoint) ([]TimeSeriesPoint, error) {
	if len(actual) == 0 {
		return nil, nil
	}
	if pt == PeriodYearly {
		return nil, errGranularityUnsupported
	}

	key := fmt.Sprintf(goalCacheKeyPattern, def.TenantID, pt, def.Key)
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("查询预计算目标失败: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("预计算目标缓存未命中: %s", key)
	}

	return assembleGoalPoints(def, pt, actual, func(day time.Time) (float64, error) {
		raw, ok := fields[day.Format("2006-01-02")]
		if !ok {
			return 0, fmt.Errorf("预计算目标缺少 %s 的数据", day.Format("2006-01-02"))
		}
		unit, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("预计算目标值无法解析: %w", err)
		}
		return unit, nil
	})
}

// Materialize 为一段日期域预写单位目标到 redis
// 数值与按需计算保持一致
func (s *materializedGoalSource) Materialize(ctx context.Context, def *MetricDefinition, pt PeriodType, days []time.Time) error {
	if len(days) == 0 {
		return nil
	}
	key := fmt.Sprintf(goalCacheKeyPattern, def.TenantID, pt, def.Key)
	fields := make(map[string]interface{}, len(days))
	for _, day := range days {
		fields[day.Format("2006-01-02")] = strconv.FormatFloat(perUnitGoal(def, pt, day), 'f', -1, 64)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// fallbackGoalSource 非按需策略的回退包装
// 主策略失败时记录并退回按需计算，保证读路径永远拿得到目标序列
type fallbackGoalSource struct {
	primary  GoalSource
	fallback GoalSource
	// 预计算策略缓存未命中时回填的目标,可为 nil
	refill *materializedGoalSource
}

func (s *fallbackGoalSource) Name() string { return s.primary.Name() }

func (s *fallbackGoalSource) GoalSeries(ctx context.Context, def *MetricDefinition, pt PeriodType, actual []TimeSeriesPoint) ([]TimeSeriesPoint, error) {
	points, err := s.primary.GoalSeries(ctx, def, pt, actual)
	if err == nil {
		return points, nil
	}
	if !errors.Is(err, errGranularityUnsupported) {
		logger.WithContext(ctx).Warn("目标策略失败，回退到按需计算",
			zap.String("strategy", s.primary.Name()),
			zap.String("metric_key", def.Key),
			zap.Error(err),
		)
	}
	monitor.GoalSourceFallbacks.WithLabelValues(s.primary.Name()).Inc()

	points, err = s.fallback.GoalSeries(ctx, def, pt, actual)
	if err == nil && s.refill != nil && pt != PeriodYearly && len(actual) > 0 {
		s.refillCache(def, pt, actual)
	}
	return points, err
}

// refillCache 按需计算成功后异步回填预计算缓存，失败只记日志
func (s *fallbackGoalSource) refillCache(def *MetricDefinition, pt PeriodType, actual []TimeSeriesPoint) {
	days := make([]time.Time, len(actual))
	for i := range actual {
		days[i] = actual[i].Ts
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.refill.Materialize(ctx, def, pt, days); err != nil {
			logger.Warn("目标缓存回填失败",
				zap.String("metric_key", def.Key),
				zap.Error(err),
			)
		}
	}()
}

// Round2 四舍五入到两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

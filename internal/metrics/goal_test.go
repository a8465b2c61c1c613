package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func cumulativeMonthlyDef(monthlyGoal float64) *MetricDefinition {
	return &MetricDefinition{
		TenantID:   42,
		Key:        "issues_resolved",
		Name:       "Issues Resolved",
		GoalType:   GoalMonthly,
		ValueKind:  KindCumulative,
		MonthlyGoals: datatypes.JSONMap{
			"8": monthlyGoal,
		},
	}
}

func actualDomain(start time.Time, days int) []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, 0, days)
	for i := 0; i < days; i++ {
		points = append(points, TimeSeriesPoint{
			TenantID:    42,
			PeriodType:  PeriodMonthly,
			SeriesLabel: "Issues Resolved",
			Ts:          start.AddDate(0, 0, i),
		})
	}
	return points
}

func TestOnDemandGoal_CumulativeLinearity(t *testing.T) {
	// 月度目标 300 摊到 30 天：每天 10，第 15 天累计 150
	def := cumulativeMonthlyDef(300)
	actual := actualDomain(date(2026, 8, 1), 30)

	source := &onDemandGoalSource{}
	goal, err := source.GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)
	require.Len(t, goal, 30)

	assert.Equal(t, 10.0, goal[0].Value)
	assert.Equal(t, 10.0, goal[0].RunningSum)
	assert.Equal(t, 150.0, goal[14].RunningSum)
	assert.Equal(t, 300.0, goal[29].RunningSum)

	for _, p := range goal {
		assert.True(t, p.IsGoal)
		assert.Equal(t, "Goal: Issues Resolved", p.SeriesLabel)
	}
}

func TestOnDemandGoal_AverageFlat(t *testing.T) {
	def := &MetricDefinition{
		TenantID:   42,
		Key:        "cycle_time",
		Name:       "Cycle Time",
		GoalType:   GoalYearly,
		ValueKind:  KindAverage,
		YearlyGoal: 5,
	}
	actual := actualDomain(date(2026, 8, 1), 10)

	source := &onDemandGoalSource{}
	goal, err := source.GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)
	require.Len(t, goal, 10)

	for _, p := range goal {
		assert.Equal(t, 5.0, p.Value)
		assert.Equal(t, 5.0, p.RunningSum)
		assert.Equal(t, 5.0, p.PeriodRelativeRunningSum)
	}
}

func TestOnDemandGoal_EmptyActualDomain(t *testing.T) {
	// 没有实际点就没有目标点：目标定义域 ⊆ 实际定义域
	source := &onDemandGoalSource{}
	goal, err := source.GoalSeries(context.Background(), cumulativeMonthlyDef(300), PeriodMonthly, nil)
	require.NoError(t, err)
	assert.Empty(t, goal)
}

func TestOnDemandGoal_YearlyViewMonthlyUnits(t *testing.T) {
	// 年度视图的点按月预聚合，年度目标按 12 个月分摊
	def := &MetricDefinition{
		TenantID:   42,
		Key:        "revenue",
		Name:       "Revenue",
		GoalType:   GoalYearly,
		ValueKind:  KindCumulative,
		YearlyGoal: 120,
	}
	actual := []TimeSeriesPoint{
		{Ts: date(2026, 1, 31)},
		{Ts: date(2026, 2, 28)},
		{Ts: date(2026, 3, 31)},
	}

	source := &onDemandGoalSource{}
	goal, err := source.GoalSeries(context.Background(), def, PeriodYearly, actual)
	require.NoError(t, err)
	require.Len(t, goal, 3)
	assert.Equal(t, 10.0, goal[0].Value)
	assert.Equal(t, 30.0, goal[2].RunningSum)
}

func TestOnDemandGoal_QuarterlyTarget(t *testing.T) {
	def := &MetricDefinition{
		TenantID:  42,
		Key:       "deals",
		Name:      "Deals",
		GoalType:  GoalQuarterly,
		ValueKind: KindCumulative,
		QuarterlyGoals: datatypes.JSONMap{
			"3": 180.0,
		},
	}
	actual := actualDomain(date(2026, 8, 1), 2)

	source := &onDemandGoalSource{}
	goal, err := source.GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)
	require.Len(t, goal, 2)
	assert.Equal(t, 2.0, goal[0].Value) // 180 / 90
	assert.Equal(t, 4.0, goal[1].RunningSum)
}

func TestDBViewGoal_ParityWithOnDemand(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// 测试里用同名表代替 SQL 视图
	require.NoError(t, db.Exec(`CREATE TABLE metric_goal_series (
		tenant_id INTEGER, metric_key TEXT, ts DATETIME, goal_value REAL)`).Error)

	def := cumulativeMonthlyDef(300)
	actual := actualDomain(date(2026, 8, 1), 30)
	for _, p := range actual {
		require.NoError(t, db.Exec(
			`INSERT INTO metric_goal_series (tenant_id, metric_key, ts, goal_value) VALUES (?, ?, ?, ?)`,
			def.TenantID, def.Key, p.Ts, 10.0).Error)
	}

	onDemand := &onDemandGoalSource{}
	dbView := &dbViewGoalSource{db: db}

	expected, err := onDemand.GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)
	got, err := dbView.GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)

	require.Len(t, got, len(expected))
	for i := range expected {
		assert.Equal(t, expected[i].Value, got[i].Value, "day %d", i)
		assert.Equal(t, expected[i].RunningSum, got[i].RunningSum, "day %d", i)
	}
}

func TestDBViewGoal_MissingDayErrors(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE metric_goal_series (
		tenant_id INTEGER, metric_key TEXT, ts DATETIME, goal_value REAL)`).Error)

	dbView := &dbViewGoalSource{db: db}
	_, err = dbView.GoalSeries(context.Background(), cumulativeMonthlyDef(300), PeriodMonthly,
		actualDomain(date(2026, 8, 1), 3))
	assert.Error(t, err)
}

func TestMaterializedGoal_ParityWithOnDemand(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	def := cumulativeMonthlyDef(300)
	actual := actualDomain(date(2026, 8, 1), 30)
	days := make([]time.Time, len(actual))
	for i := range actual {
		days[i] = actual[i].Ts
	}

	materialized := &materializedGoalSource{rdb: rdb, ttl: time.Hour}
	require.NoError(t, materialized.Materialize(context.Background(), def, PeriodMonthly, days))

	expected, err := (&onDemandGoalSource{}).GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)
	got, err := materialized.GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)

	require.Len(t, got, len(expected))
	for i := range expected {
		assert.Equal(t, expected[i].Value, got[i].Value, "day %d", i)
		assert.Equal(t, expected[i].RunningSum, got[i].RunningSum, "day %d", i)
	}

	// 预计算键带 TTL，不会永久占用
	assert.Greater(t, mr.TTL("saulto:goals:42:monthly:issues_resolved"), time.Duration(0))
}

func TestMaterializedGoal_CacheMissErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	materialized := &materializedGoalSource{rdb: rdb, ttl: time.Hour}
	_, err := materialized.GoalSeries(context.Background(), cumulativeMonthlyDef(300), PeriodMonthly,
		actualDomain(date(2026, 8, 1), 3))
	assert.Error(t, err)
}

type failingGoalSource struct{}

func (failingGoalSource) Name() string { return "failing" }
func (failingGoalSource) GoalSeries(context.Context, *MetricDefinition, PeriodType, []TimeSeriesPoint) ([]TimeSeriesPoint, error) {
	return nil, errors.New("boom")
}

func TestFallbackGoalSource(t *testing.T) {
	// 主策略失败时必须退回按需计算，结果与按需一致
	def := cumulativeMonthlyDef(300)
	actual := actualDomain(date(2026, 8, 1), 5)

	wrapped := &fallbackGoalSource{primary: failingGoalSource{}, fallback: &onDemandGoalSource{}}
	got, err := wrapped.GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)

	expected, err := (&onDemandGoalSource{}).GoalSeries(context.Background(), def, PeriodMonthly, actual)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestGoalLabel(t *testing.T) {
	def := cumulativeMonthlyDef(300)
	assert.Equal(t, "Goal: Issues Resolved", def.GoalLabel())
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodStart_Weekly(t *testing.T) {
	// 2026-08-26 是周三，所属周的周一是 08-24
	assert.Equal(t, date(2026, 8, 24), PeriodStart(PeriodWeekly, date(2026, 8, 26)))
	// 周一自身就是起点
	assert.Equal(t, date(2026, 8, 24), PeriodStart(PeriodWeekly, date(2026, 8, 24)))
	// 周日归属于前面的周一
	assert.Equal(t, date(2026, 8, 24), PeriodStart(PeriodWeekly, date(2026, 8, 30)))
}

func TestPeriodStart_MonthlyQuarterlyYearly(t *testing.T) {
	assert.Equal(t, date(2026, 8, 1), PeriodStart(PeriodMonthly, date(2026, 8, 29)))
	assert.Equal(t, date(2026, 7, 1), PeriodStart(PeriodQuarterly, date(2026, 8, 29)))
	assert.Equal(t, date(2026, 10, 1), PeriodStart(PeriodQuarterly, date(2026, 12, 31)))
	assert.Equal(t, date(2026, 1, 1), PeriodStart(PeriodYearly, date(2026, 8, 29)))
}

func TestPeriodEnd(t *testing.T) {
	assert.Equal(t, date(2026, 8, 30), PeriodEnd(PeriodWeekly, date(2026, 8, 26)))
	assert.Equal(t, date(2026, 8, 31), PeriodEnd(PeriodMonthly, date(2026, 8, 1)))
	assert.Equal(t, date(2026, 9, 30), PeriodEnd(PeriodQuarterly, date(2026, 8, 29)))
	assert.Equal(t, date(2026, 12, 31), PeriodEnd(PeriodYearly, date(2026, 3, 15)))
}

func TestPeriodEnd_LeapYearFebruary(t *testing.T) {
	// 2028 是闰年
	assert.Equal(t, date(2028, 2, 29), PeriodEnd(PeriodMonthly, date(2028, 2, 10)))
	assert.Equal(t, date(2027, 2, 28), PeriodEnd(PeriodMonthly, date(2027, 2, 10)))
}

func TestEndOfMonth(t *testing.T) {
	assert.Equal(t, date(2026, 2, 28), EndOfMonth(date(2026, 2, 1)))
	assert.Equal(t, date(2028, 2, 29), EndOfMonth(date(2028, 2, 15)))
	assert.Equal(t, date(2026, 12, 31), EndOfMonth(date(2026, 12, 31)))
	assert.Equal(t, date(2026, 4, 30), EndOfMonth(date(2026, 4, 1)))
}

func TestDefaultWindow(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)
	window := DefaultWindow(PeriodMonthly, now)
	assert.Equal(t, date(2026, 8, 1), window.Start)
	assert.Equal(t, date(2026, 8, 31), window.End)

	window = DefaultWindow(PeriodYearly, now)
	assert.Equal(t, date(2026, 1, 1), window.Start)
	assert.Equal(t, date(2026, 12, 31), window.End)
}

func TestIsPeriodStart(t *testing.T) {
	assert.True(t, IsPeriodStart(PeriodMonthly, date(2026, 8, 1)))
	assert.False(t, IsPeriodStart(PeriodMonthly, date(2026, 8, 2)))
	assert.True(t, IsPeriodStart(PeriodWeekly, date(2026, 8, 24))) // 周一
	assert.False(t, IsPeriodStart(PeriodWeekly, date(2026, 8, 25)))
	assert.True(t, IsPeriodStart(PeriodQuarterly, date(2026, 10, 1)))
	assert.True(t, IsPeriodStart(PeriodYearly, date(2026, 1, 1)))
	assert.False(t, IsPeriodStart(PeriodYearly, date(2026, 2, 1)))
}

func TestQuarterOf(t *testing.T) {
	assert.Equal(t, 1, QuarterOf(date(2026, 3, 31)))
	assert.Equal(t, 2, QuarterOf(date(2026, 4, 1)))
	assert.Equal(t, 3, QuarterOf(date(2026, 8, 29)))
	assert.Equal(t, 4, QuarterOf(date(2026, 12, 31)))
}

func TestGoalUnitDays(t *testing.T) {
	assert.Equal(t, 365.0, GoalUnitDays(GoalYearly))
	assert.Equal(t, 90.0, GoalUnitDays(GoalQuarterly))
	assert.Equal(t, 30.0, GoalUnitDays(GoalMonthly))
}

func TestTruncateDay(t *testing.T) {
	assert.Equal(t, date(2026, 8, 29), TruncateDay(time.Date(2026, 8, 29, 23, 59, 59, 0, time.UTC)))
	// 非 UTC 时区按 UTC 折算
	loc := time.FixedZone("UTC+8", 8*3600)
	assert.Equal(t, date(2026, 8, 28), TruncateDay(time.Date(2026, 8, 29, 6, 0, 0, 0, loc)))
}

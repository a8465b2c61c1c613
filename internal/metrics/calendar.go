package metrics

import (
	"time"

	"saulto/internal/common"
)

// 目标线性分摊使用的固定单位天数
// 注意：这里沿用固定近似值（365/90/30）而不是具体周期的真实天数，
// 闰年与月末附近会产生轻微的系统性偏差；口径变更需与管理端确认后统一调整
const (
	GoalDaysYearly    = 365.0
	GoalDaysQuarterly = 90.0
	GoalDaysMonthly   = 30.0
	// GoalUnitsYearlyByMonth 年度视图按月预聚合后，目标按12个月分摊
	GoalUnitsYearlyByMonth = 12.0
)

// TruncateDay 截断到当日零点（UTC）
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodStart 返回时间点所属周期的起始日（零点，UTC）
func PeriodStart(pt PeriodType, t time.Time) time.Time {
	t = TruncateDay(t)
	switch pt {
	case PeriodWeekly:
		// 周一为一周起点
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return t.AddDate(0, 0, -(weekday - 1))
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodQuarterly:
		quarterMonth := time.Month((QuarterOf(t)-1)*3 + 1)
		return time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	case PeriodYearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// PeriodEnd 返回时间点所属周期的最后一天（零点，UTC）
func PeriodEnd(pt PeriodType, t time.Time) time.Time {
	start := PeriodStart(pt, t)
	switch pt {
	case PeriodWeekly:
		return start.AddDate(0, 0, 6)
	case PeriodMonthly:
		return start.AddDate(0, 1, -1)
	case PeriodQuarterly:
		return start.AddDate(0, 3, -1)
	case PeriodYearly:
		return start.AddDate(1, 0, -1)
	}
	return start
}

// DefaultWindow 周期类型对应的默认计算窗口：当前周期的起止日
// 序列点只产出到最后一个事实日，窗口末尾没有数据的日期不落行
func DefaultWindow(pt PeriodType, now time.Time) common.DateRange {
	return common.DateRange{
		Start: PeriodStart(pt, now),
		End:   PeriodEnd(pt, now),
	}
}

// IsPeriodStart 判断某天是否为周期的第一天
func IsPeriodStart(pt PeriodType, day time.Time) bool {
	return TruncateDay(day).Equal(PeriodStart(pt, day))
}

// QuarterOf 返回时间点所属季度（1-4）
func QuarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// EndOfMonth 返回当月最后一天（零点，UTC）
func EndOfMonth(t time.Time) time.Time {
	t = t.UTC()
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// GoalUnitDays 目标分摊的单位天数
func GoalUnitDays(gt GoalType) float64 {
	switch gt {
	case GoalQuarterly:
		return GoalDaysQuarterly
	case GoalMonthly:
		return GoalDaysMonthly
	default:
		return GoalDaysYearly
	}
}

// SameDay 判断两个时间点是否同一天（UTC）
func SameDay(a, b time.Time) bool {
	return TruncateDay(a).Equal(TruncateDay(b))
}

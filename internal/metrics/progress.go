package metrics

import "time"

// CalculateProgress 从合并后的序列计算进度指标
// todayActual 取截至今天的实际周期相对累计最大值；todayGoal 取今天（或最近一个
// 不晚于今天的目标日）的目标周期相对累计；periodEndGoal 取全部目标点的最大值。
// 结果保留两位小数，超额完成时大于 100，不做截断
func CalculateProgress(actual, goal []TimeSeriesPoint, today time.Time) Progress {
	today = TruncateDay(today)

	var todayActual float64
	for i := range actual {
		if actual[i].Ts.After(today) {
			continue
		}
		if actual[i].PeriodRelativeRunningSum > todayActual {
			todayActual = actual[i].PeriodRelativeRunningSum
		}
	}

	var (
		todayGoal    float64
		latestGoalTs time.Time
		latestGoal   float64
		hasTodayGoal bool
		hasLatest    bool
		periodEnd    float64
	)
	for i := range goal {
		p := &goal[i]
		if p.PeriodRelativeRunningSum > periodEnd {
			periodEnd = p.PeriodRelativeRunningSum
		}
		if p.Ts.After(today) {
			continue
		}
		if SameDay(p.Ts, today) {
			todayGoal += p.PeriodRelativeRunningSum
			hasTodayGoal = true
			continue
		}
		if !hasLatest || p.Ts.After(latestGoalTs) {
			latestGoalTs = p.Ts
			latestGoal = p.PeriodRelativeRunningSum
			hasLatest = true
		}
	}
	if !hasTodayGoal && hasLatest {
		todayGoal = latestGoal
	}

	var onPace, progress float64
	if todayGoal != 0 {
		onPace = Round2(todayActual / todayGoal * 100)
	}
	if periodEnd != 0 {
		progress = Round2(todayActual / periodEnd * 100)
	}

	return Progress{
		TodayActual:   Round2(todayActual),
		TodayGoal:     Round2(todayGoal),
		PeriodEndGoal: Round2(periodEnd),
		OnPace:        onPace,
		Progress:      progress,
	}
}

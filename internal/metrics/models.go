package metrics

import (
	"strconv"
	"time"

	"saulto/internal/common"

	"gorm.io/datatypes"
)

// PeriodType 报表周期类型，决定默认窗口与周期相对值的重置边界
type PeriodType string

const (
	PeriodWeekly    PeriodType = "weekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodYearly    PeriodType = "yearly"
)

// AllowedPeriodTypes 查询接口允许的周期类型
var AllowedPeriodTypes = []PeriodType{PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly}

// AutoRefreshPeriodTypes 自动每日刷新覆盖的周期类型
// 季度/年度序列的累计窗口更宽，强刷必须由人工显式触发，避免破坏宽窗口累计值
var AutoRefreshPeriodTypes = []PeriodType{PeriodWeekly, PeriodMonthly}

// IsValidPeriodType 判断周期类型是否合法
func IsValidPeriodType(pt PeriodType) bool {
	for _, p := range AllowedPeriodTypes {
		if p == pt {
			return true
		}
	}
	return false
}

// IsAutoRefreshSafe 判断该周期类型是否允许自动强刷
func IsAutoRefreshSafe(pt PeriodType) bool {
	for _, p := range AutoRefreshPeriodTypes {
		if p == pt {
			return true
		}
	}
	return false
}

// ValueKind 指标取值语义
type ValueKind string

const (
	// KindCumulative 累计型：每日增量累加（如已解决工单数）
	KindCumulative ValueKind = "cumulative"
	// KindAverage 均值型："累计"值本身是一个滚动平均（如平均周期时长）
	KindAverage ValueKind = "average"
)

// GoalType 目标设定粒度
type GoalType string

const (
	GoalYearly    GoalType = "yearly"
	GoalQuarterly GoalType = "quarterly"
	GoalMonthly   GoalType = "monthly"
)

// GoalLabelPrefix 目标序列标签前缀
const GoalLabelPrefix = "Goal: "

// MetricDefinition 指标定义，由外部管理端维护，核心只读
type MetricDefinition struct {
	ID               int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID         int64             `json:"tenantId" gorm:"not null;uniqueIndex:idx_metric_tenant_key,priority:1"`
	Key              string            `json:"key" gorm:"size:100;not null;uniqueIndex:idx_metric_tenant_key,priority:2"`
	Name             string            `json:"name" gorm:"size:255;not null"`
	Description      string            `json:"description" gorm:"type:text"`
	SourceTable      string            `json:"sourceTable" gorm:"size:255"`       // 事实数据来源表标识
	SourceExpression string            `json:"sourceExpression" gorm:"type:text"` // govaluate 表达式，对事实行属性求值
	DateColumn       string            `json:"dateColumn" gorm:"size:100"`        // 事实行中承载业务日期的属性，空则用 occurred_at
	Category         string            `json:"category" gorm:"size:100"`
	Format           string            `json:"format" gorm:"size:50"` // currency, number, percent
	Unit             string            `json:"unit" gorm:"size:50"`
	GoalType         GoalType          `json:"goalType" gorm:"size:20;default:yearly"`
	YearlyGoal       float64           `json:"yearlyGoal"`
	QuarterlyGoals   datatypes.JSONMap `json:"quarterlyGoals"` // {"1": 90000, ..., "4": 120000}
	MonthlyGoals     datatypes.JSONMap `json:"monthlyGoals"`   // {"1": 30000, ..., "12": 45000}
	IsIncreasing     bool              `json:"isIncreasing" gorm:"default:true"`
	ValueKind        ValueKind         `json:"valueKind" gorm:"size:20;default:cumulative"`
	IsActive         bool              `json:"isActive" gorm:"default:true;index"`
	common.TimestampModel
}

// TableName 指定表名
func (MetricDefinition) TableName() string {
	return "metric_definitions"
}

// GoalLabel 该指标的目标序列标签
func (d *MetricDefinition) GoalLabel() string {
	return GoalLabelPrefix + d.Name
}

// QuarterlyGoal 取指定季度的目标值，未设置返回0
func (d *MetricDefinition) QuarterlyGoal(quarter int) float64 {
	return jsonMapNumber(d.QuarterlyGoals, quarter)
}

// MonthlyGoal 取指定月份的目标值，未设置返回0
func (d *MetricDefinition) MonthlyGoal(month int) float64 {
	return jsonMapNumber(d.MonthlyGoals, month)
}

// jsonMapNumber JSON 列中按数字键读取数值，兼容 float64/int 两种解码结果
func jsonMapNumber(m datatypes.JSONMap, key int) float64 {
	if m == nil {
		return 0
	}
	v, ok := m[strconv.Itoa(key)]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// TimeSeriesPoint 时间序列点，实际序列由 ETL 写入，目标序列派生或预物化
type TimeSeriesPoint struct {
	ID          int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID    int64      `json:"tenantId" gorm:"not null;uniqueIndex:idx_series_point,priority:1"`
	PeriodType  PeriodType `json:"periodType" gorm:"size:20;not null;uniqueIndex:idx_series_point,priority:2"`
	SeriesLabel string     `json:"seriesLabel" gorm:"size:255;not null;uniqueIndex:idx_series_point,priority:3"`
	IsGoal      bool       `json:"isGoal" gorm:"not null;default:false;uniqueIndex:idx_series_point,priority:4"`
	Ts          time.Time  `json:"ts" gorm:"not null;uniqueIndex:idx_series_point,priority:5"`

	Value                    float64 `json:"value"`                    // 周期增量（日增量）
	RunningSum               float64 `json:"runningSum"`               // 自纪元起累计值；均值型为滚动平均
	PeriodRelativeValue      float64 `json:"periodRelativeValue"`      // 当前周期内的增量
	PeriodRelativeRunningSum float64 `json:"periodRelativeRunningSum"` // 周期起点重置后的累计值
	BaselineValue            float64 `json:"baselineValue"`            // 周期边界处的基线（进位值）

	common.TimestampModel
}

// TableName 指定表名
func (TimeSeriesPoint) TableName() string {
	return "metric_time_series"
}

// FactRecord 同步入库的业务事实行，按租户隔离
// 连接器服务把第三方数据拉平成 (来源表, 业务时间, 属性集) 写入
type FactRecord struct {
	ID          int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID    int64             `json:"tenantId" gorm:"not null;index:idx_fact_tenant_time,priority:1"`
	SourceTable string            `json:"sourceTable" gorm:"size:255;not null;index"`
	OccurredAt  time.Time         `json:"occurredAt" gorm:"not null;index:idx_fact_tenant_time,priority:2"`
	Attributes  datatypes.JSONMap `json:"attributes"` // 表达式求值时作为参数暴露
	CreatedAt   time.Time         `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (FactRecord) TableName() string {
	return "business_facts"
}

// ETLResult ETL 作业结果
type ETLResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RowsWritten int    `json:"rowsWritten"`
}

// ETLStatus ETL 数据状态
type ETLStatus struct {
	HasData     bool       `json:"hasData"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Progress 进度指标
type Progress struct {
	OnPace        float64 `json:"onPace"`        // 相对今日应达目标的完成率（%），不封顶
	Progress      float64 `json:"progress"`      // 相对周期末目标的完成率（%），不封顶
	TodayActual   float64 `json:"todayActual"`   // 今日实际（周期相对累计）
	TodayGoal     float64 `json:"todayGoal"`     // 今日应达目标
	PeriodEndGoal float64 `json:"periodEndGoal"` // 周期末目标
}

// MetricSeries 单个指标的实际+目标序列
type MetricSeries struct {
	MetricKey  string            `json:"metricKey"`
	MetricName string            `json:"metricName"`
	Format     string            `json:"format,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	ValueKind  ValueKind         `json:"valueKind"`
	Actual     []TimeSeriesPoint `json:"actual"`
	Goal       []TimeSeriesPoint `json:"goal"`
	Progress   Progress          `json:"progress"`
}

// SeriesResponse 序列查询响应
type SeriesResponse struct {
	TenantID   int64          `json:"tenantId"`
	PeriodType PeriodType     `json:"periodType"`
	Series     []MetricSeries `json:"series"`
	Warning    string         `json:"warning,omitempty"` // 新鲜度检查降级时附带提示
}

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saulto_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saulto_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ETL 指标
var (
	// ETLRunsTotal ETL 作业执行总数
	ETLRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saulto_etl_runs_total",
			Help: "ETL 作业执行总数",
		},
		[]string{"period_type", "status"}, // status: success, skipped, conflict, failed
	)

	// ETLRowsWritten ETL 写入的序列行数
	ETLRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saulto_etl_rows_written_total",
			Help: "ETL 写入的时间序列行数",
		},
		[]string{"period_type"},
	)

	// ETLDuration ETL 作业耗时（秒）
	ETLDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saulto_etl_duration_seconds",
			Help:    "ETL 作业耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"period_type"},
	)
)

// 连接器同步指标
var (
	// ConnectorSyncsTotal 连接器同步总数
	ConnectorSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saulto_connector_syncs_total",
			Help: "连接器同步执行总数",
		},
		[]string{"connector_type", "status"},
	)

	// ConnectorRecordsSynced 同步的记录数
	ConnectorRecordsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saulto_connector_records_synced_total",
			Help: "连接器同步的记录总数",
		},
		[]string{"connector_type"},
	)
)

// 读路径指标
var (
	// SeriesQueriesTotal 序列查询总数
	SeriesQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saulto_series_queries_total",
			Help: "序列查询总数",
		},
		[]string{"period_type", "status"}, // status: ok, degraded, invalid
	)

	// GoalSourceFallbacks 目标策略回退次数
	GoalSourceFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saulto_goal_source_fallbacks_total",
			Help: "非按需目标策略失败后回退到按需计算的次数",
		},
		[]string{"strategy"},
	)
)

package metrics

import (
	"errors"
	"strings"

	"saulto/internal/auth"
	"saulto/internal/common"
	"saulto/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Handler 指标序列 Handler
type Handler struct {
	query *metrics.QueryService
	etl   *metrics.ETLService
}

// NewHandler 创建 Handler
func NewHandler(query *metrics.QueryService, etl *metrics.ETLService) *Handler {
	return &Handler{query: query, etl: etl}
}

// GetSeries 查询指标序列
// @Summary 查询指标序列
// @Description 返回租户的实际序列、目标序列与进度
// @Tags Metrics
// @Produce json
// @Param period_type query string true "周期类型(weekly/monthly/quarterly/yearly)"
// @Param metric_keys query string false "指标键，逗号分隔，最多10个"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/metrics/series [get]
func (h *Handler) GetSeries(c *gin.Context) {
	tenantID := auth.GetTenantID(c)
	pt := metrics.PeriodType(c.Query("period_type"))

	var keys []string
	if raw := strings.TrimSpace(c.Query("metric_keys")); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
	}

	resp, err := h.query.GetSeries(c.Request.Context(), tenantID, pt, keys)
	if err != nil {
		respondMetricsError(c, err)
		return
	}
	common.ResponseSuccess(c, resp)
}

// runETLRequest 手动触发 ETL 的请求体
type runETLRequest struct {
	PeriodType   string `json:"period_type" binding:"required"`
	ForceRefresh bool   `json:"force_refresh"`
}

// RunETL 手动触发 ETL 重算
// @Summary 触发 ETL 重算
// @Description 对指定周期类型执行一次重算；手动触发允许季度/年度的强制重算
// @Tags Metrics
// @Accept json
// @Produce json
// @Param request body runETLRequest true "重算参数"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse
// @Router /api/metrics/etl/run [post]
func (h *Handler) RunETL(c *gin.Context) {
	var req runETLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	result, err := h.etl.RunETLJob(c.Request.Context(), metrics.ETLRequest{
		TenantID:     auth.GetTenantID(c),
		PeriodType:   metrics.PeriodType(req.PeriodType),
		ForceRefresh: req.ForceRefresh,
		Deliberate:   true, // API 触发视为人工显式操作
	})
	if err != nil {
		respondMetricsError(c, err)
		return
	}
	if !result.Success {
		common.ResponseError(c, common.CodeETLFailed, result.Message)
		return
	}
	common.ResponseSuccess(c, result)
}

// GetETLStatus 查询 ETL 数据状态
// @Summary 查询 ETL 状态
// @Tags Metrics
// @Produce json
// @Param period_type query string true "周期类型"
// @Success 200 {object} common.APIResponse
// @Router /api/metrics/etl/status [get]
func (h *Handler) GetETLStatus(c *gin.Context) {
	status, err := h.query.GetETLStatus(c.Request.Context(),
		auth.GetTenantID(c), metrics.PeriodType(c.Query("period_type")))
	if err != nil {
		respondMetricsError(c, err)
		return
	}
	common.ResponseSuccess(c, status)
}

// ListDefinitions 列出指标定义
// @Summary 列出启用的指标定义
// @Tags Metrics
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/metrics/definitions [get]
func (h *Handler) ListDefinitions(c *gin.Context) {
	defs, err := h.query.ListDefinitions(c.Request.Context(), auth.GetTenantID(c))
	if err != nil {
		respondMetricsError(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{
		"definitions": defs,
		"total":       len(defs),
	})
}

// respondMetricsError 把领域错误映射成业务码响应
func respondMetricsError(c *gin.Context, err error) {
	var validationErr *metrics.ValidationError
	if errors.As(err, &validationErr) {
		code := common.CodeInvalidRequest
		switch validationErr.Field {
		case "periodType":
			code = common.CodeInvalidPeriodType
		case "metricKeys":
			code = common.CodeTooManyMetricKeys
		}
		common.ResponseError(c, code, validationErr.Error())
		return
	}
	var conflictErr *metrics.ConcurrencyConflictError
	if errors.As(err, &conflictErr) {
		common.ResponseError(c, common.CodeETLConflict, conflictErr.Error())
		return
	}
	common.ResponseServerError(c, err.Error())
}

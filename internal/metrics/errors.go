package metrics

import (
	"fmt"
	"strings"
)

// ValidationError 请求参数校验错误，直接返回给调用方，不重试
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError 创建校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// SourceEvaluationError 单个指标的源表达式求值失败，跳过该指标，作业继续
type SourceEvaluationError struct {
	MetricKey string
	Err       error
}

func (e *SourceEvaluationError) Error() string {
	return fmt.Sprintf("指标 %s 源表达式求值失败: %v", e.MetricKey, e.Err)
}

func (e *SourceEvaluationError) Unwrap() error {
	return e.Err
}

// ConcurrencyConflictError 同一 (租户, 周期类型) 已有 ETL 作业在执行
type ConcurrencyConflictError struct {
	TenantID   int64
	PeriodType PeriodType
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("租户 %d 的 %s ETL 作业已在执行中", e.TenantID, e.PeriodType)
}

// StalenessTimeoutError 读路径新鲜度检查超时，降级返回现有数据
type StalenessTimeoutError struct {
	TenantID   int64
	PeriodType PeriodType
}

func (e *StalenessTimeoutError) Error() string {
	return fmt.Sprintf("租户 %d 的 %s 序列新鲜度检查超时", e.TenantID, e.PeriodType)
}

// JobFailure 聚合的作业失败：所有指标都未能写入任何行
type JobFailure struct {
	Failures []error
}

func (e *JobFailure) Error() string {
	if len(e.Failures) == 0 {
		return "ETL 作业失败"
	}
	msgs := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		msgs[i] = err.Error()
	}
	return "ETL 作业失败: " + strings.Join(msgs, "; ")
}

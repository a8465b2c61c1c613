package connector

import (
	"context"
	"fmt"
	"time"

	"saulto/internal/logger"
	"saulto/internal/monitor"
	"saulto/pkg/httputil"

	"go.uber.org/zap"
)

// HTTPAdapter 通过 HTTP 调用连接器服务
type HTTPAdapter struct {
	baseURL string
	client  *httputil.Client
}

// NewHTTPAdapter 创建 HTTP 连接器适配器
func NewHTTPAdapter(baseURL string, timeout time.Duration) *HTTPAdapter {
	return &HTTPAdapter{
		baseURL: baseURL,
		client: httputil.NewClient(
			httputil.WithTimeout(timeout),
			httputil.WithRetries(2),
		),
	}
}

// syncRequest 连接器服务的同步请求体
type syncRequest struct {
	TenantID int64 `json:"tenant_id"`
}

// syncResponse 连接器服务的同步响应体
type syncResponse struct {
	Success       bool     `json:"success"`
	RecordsSynced int      `json:"records_synced"`
	TablesSynced  []string `json:"tables_synced"`
	ErrorMessage  string   `json:"error_message"`
}

// Sync 触发一次同步并等待结果
func (a *HTTPAdapter) Sync(ctx context.Context, tenantID int64, connectorType string) (*SyncResult, error) {
	url := fmt.Sprintf("%s/api/connectors/%s/sync", a.baseURL, connectorType)

	var resp syncResponse
	err := a.client.PostJSON(ctx, url, syncRequest{TenantID: tenantID}, &resp)
	if err != nil {
		monitor.ConnectorSyncsTotal.WithLabelValues(connectorType, "failed").Inc()
		return nil, &SyncError{TenantID: tenantID, ConnectorType: connectorType, Err: err}
	}
	if !resp.Success {
		monitor.ConnectorSyncsTotal.WithLabelValues(connectorType, "failed").Inc()
		return nil, &SyncError{TenantID: tenantID, ConnectorType: connectorType, Message: resp.ErrorMessage}
	}

	monitor.ConnectorSyncsTotal.WithLabelValues(connectorType, "success").Inc()
	monitor.ConnectorRecordsSynced.WithLabelValues(connectorType).Add(float64(resp.RecordsSynced))
	logger.WithContext(ctx).Info("连接器同步完成",
		zap.String("connector_type", connectorType),
		zap.Int64("tenant_id", tenantID),
		zap.Int("records_synced", resp.RecordsSynced),
		zap.Strings("tables_synced", resp.TablesSynced),
	)

	return &SyncResult{
		Success:       true,
		RecordsSynced: resp.RecordsSynced,
		TablesSynced:  resp.TablesSynced,
	}, nil
}

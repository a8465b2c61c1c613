// Package connector 封装外部连接器服务
// 原始数据的抓取（OAuth、第三方 API 适配）由独立的连接器服务完成，
// 这里只负责触发同步并把结果交给调度器
package connector

import (
	"context"
	"fmt"
)

// SyncResult 一次连接器同步的结果
type SyncResult struct {
	Success       bool     `json:"success"`
	RecordsSynced int      `json:"recordsSynced"`
	TablesSynced  []string `json:"tablesSynced"`
	ErrorMessage  string   `json:"errorMessage,omitempty"`
}

// Adapter 连接器适配器
type Adapter interface {
	// Sync 触发一次同步，把第三方数据拉取到租户的事实表
	Sync(ctx context.Context, tenantID int64, connectorType string) (*SyncResult, error)
}

// SyncError 连接器同步失败
// 调度器据此安排短间隔重试
type SyncError struct {
	TenantID      int64
	ConnectorType string
	Message       string
	Err           error
}

func (e *SyncError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("连接器 %s 同步失败 (租户 %d): %s", e.ConnectorType, e.TenantID, e.Message)
	}
	return fmt.Sprintf("连接器 %s 同步失败 (租户 %d): %v", e.ConnectorType, e.TenantID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

package tasks

// Task Types
const (
	TypeSyncRefresh = "metrics:sync_refresh"
)

// SyncRefreshPayload 同步+刷新任务载荷
type SyncRefreshPayload struct {
	EntryID int64 `json:"entry_id"`
	// Manual 手动触发，跳过到期判断但执行相同的成功/失败记账
	Manual bool `json:"manual"`
}

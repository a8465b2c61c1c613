package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"saulto/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// EntryRunner 调度条目执行器抽象，便于注入 mock
type EntryRunner interface {
	Run(ctx context.Context, entryID int64, manual bool) error
}

// PipelineHandler 同步+刷新任务处理器
type PipelineHandler struct {
	runner EntryRunner
	logger *zap.Logger
}

// NewPipelineHandler 创建处理器
func NewPipelineHandler(runner EntryRunner, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleSyncRefresh 执行一次同步+刷新
// 失败的重试节奏由调度记账控制，任务本身不重试
func (h *PipelineHandler) HandleSyncRefresh(ctx context.Context, t *asynq.Task) error {
	var p tasks.SyncRefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始执行同步刷新任务",
		zap.Int64("entry_id", p.EntryID),
		zap.Bool("manual", p.Manual),
	)

	if err := h.runner.Run(ctx, p.EntryID, p.Manual); err != nil {
		h.logger.Error("同步刷新任务失败",
			zap.Int64("entry_id", p.EntryID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("同步刷新任务完成", zap.Int64("entry_id", p.EntryID))
	return nil
}

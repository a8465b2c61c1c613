package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"saulto/internal/config"
	"saulto/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	DispatchSyncRefresh(ctx context.Context, entryID int64, manual bool) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) DispatchSyncRefresh(ctx context.Context, entryID int64, manual bool) error {
	payload, err := json.Marshal(tasks.SyncRefreshPayload{EntryID: entryID, Manual: manual})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeSyncRefresh, payload)

	// 同一调度条目的任务互相排斥，重试交给调度器的记账逻辑
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("pipeline"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}

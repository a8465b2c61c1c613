package scheduler

import (
	"context"
	"sync"
	"time"

	"saulto/internal/logger"

	"go.uber.org/zap"
)

// Dispatcher 到期任务的派发出口
// 生产环境由 asynq 队列客户端实现，测试里可以换成同步执行的假实现
type Dispatcher interface {
	DispatchSyncRefresh(ctx context.Context, entryID int64, manual bool) error
}

// Coordinator 调度协调器
// 单个定时驱动轮询到期条目并异步派发，自身永远不等某个租户跑完；
// 条目级互斥由 Runner 保证
type Coordinator struct {
	store      *EntryStore
	dispatcher Dispatcher
	tick       time.Duration
	nowFunc    func() time.Time

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewCoordinator 创建调度协调器
func NewCoordinator(store *EntryStore, dispatcher Dispatcher, tick time.Duration) *Coordinator {
	return &Coordinator{
		store:      store,
		dispatcher: dispatcher,
		tick:       tick,
		nowFunc:    time.Now,
	}
}

// Start 启动定时轮询
// 幂等：重复调用不会产生重复的定时器
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		logger.Warn("调度协调器已在运行，忽略重复启动")
		return
	}
	c.started = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.loop(c.stop, c.done)
	logger.Info("调度协调器已启动", zap.Duration("tick", c.tick))
}

// Stop 停止轮询并等待当前 tick 结束
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	logger.Info("调度协调器已停止")
}

// TriggerNow 手动立即触发一个条目，绕过到期判断
// 成功/失败记账与定时触发一致
func (c *Coordinator) TriggerNow(ctx context.Context, entryID int64) error {
	if _, err := c.store.Get(ctx, entryID); err != nil {
		return err
	}
	return c.dispatcher.DispatchSyncRefresh(ctx, entryID, true)
}

func (c *Coordinator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.runTick()
		}
	}
}

// runTick 派发所有到期条目
func (c *Coordinator) runTick() {
	ctx := context.Background()
	now := c.nowFunc().UTC()

	entries, err := c.store.ListDue(ctx, now)
	if err != nil {
		logger.Error("查询到期调度条目失败", zap.Error(err))
		return
	}

	for i := range entries {
		entry := &entries[i]
		if !entry.IsDue(now) {
			continue
		}
		if err := c.dispatcher.DispatchSyncRefresh(ctx, entry.ID, false); err != nil {
			logger.Error("派发调度任务失败",
				zap.Int64("entry_id", entry.ID),
				zap.Int64("tenant_id", entry.TenantID),
				zap.Error(err),
			)
		}
	}
}

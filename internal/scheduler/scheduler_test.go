package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"saulto/internal/activity"
	"saulto/internal/connector"
	"saulto/internal/logger"
	"saulto/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	_ = logger.Init("debug", "console", "stdout")
}

func setupSchedulerDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ScheduleEntry{},
		&activity.PipelineActivity{},
		&metrics.MetricDefinition{},
		&metrics.TimeSeriesPoint{},
		&metrics.FactRecord{},
	))
	return db
}

func seedEntry(t *testing.T, db *gorm.DB, entry *ScheduleEntry) *ScheduleEntry {
	require.NoError(t, db.Create(entry).Error)
	return entry
}

// fakeAdapter 可编排的连接器假实现
type fakeAdapter struct {
	mu      sync.Mutex
	results []error // 每次调用按序弹出，耗尽后视为成功
	calls   int
}

func (f *fakeAdapter) Sync(_ context.Context, tenantID int64, connectorType string) (*connector.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return nil, err
		}
	}
	return &connector.SyncResult{Success: true, RecordsSynced: 12, TablesSynced: []string{"issues"}}, nil
}

func newTestRunner(t *testing.T, db *gorm.DB, adapter connector.Adapter, now time.Time) *Runner {
	etl := metrics.NewETLService(db, time.Hour)
	runner := NewRunner(NewEntryStore(db), adapter, etl, activity.NewService(db), 5*time.Minute)
	runner.nowFunc = func() time.Time { return now }
	return runner
}

func TestRunner_SuccessBookkeeping(t *testing.T) {
	db := setupSchedulerDB(t)
	entry := seedEntry(t, db, &ScheduleEntry{TenantID: 42, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60})

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{}
	runner := newTestRunner(t, db, adapter, now)

	require.NoError(t, runner.Run(context.Background(), entry.ID, false))

	updated, err := NewEntryStore(db).Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastSyncAt)
	require.NotNil(t, updated.NextSyncAt)
	assert.True(t, updated.LastSyncAt.Equal(now))
	assert.True(t, updated.NextSyncAt.Equal(now.Add(60*time.Minute)))

	activities, total, err := activity.NewService(db).ListRecent(context.Background(), 42, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, activity.StatusSuccess, activities[0].Status)
	assert.Equal(t, 12, activities[0].RecordsSynced)
}

func TestRunner_SyncFailureShortRetry(t *testing.T) {
	db := setupSchedulerDB(t)
	entry := seedEntry(t, db, &ScheduleEntry{TenantID: 42, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60})

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{results: []error{
		&connector.SyncError{TenantID: 42, ConnectorType: "jira", Message: "token expired"},
	}}
	runner := newTestRunner(t, db, adapter, now)

	err := runner.Run(context.Background(), entry.ID, false)
	require.Error(t, err)

	// 失败走短重试：nextSyncAt = now+5min，lastSyncAt 不动
	updated, getErr := NewEntryStore(db).Get(context.Background(), entry.ID)
	require.NoError(t, getErr)
	assert.Nil(t, updated.LastSyncAt)
	require.NotNil(t, updated.NextSyncAt)
	assert.True(t, updated.NextSyncAt.Equal(now.Add(5*time.Minute)))

	activities, _, err := activity.NewService(db).ListRecent(context.Background(), 42, 1, 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, activity.StatusFailed, activities[0].Status)
}

func TestRunner_RetryThenSuccess(t *testing.T) {
	db := setupSchedulerDB(t)
	entry := seedEntry(t, db, &ScheduleEntry{TenantID: 42, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60})

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{results: []error{errors.New("network error")}}
	runner := newTestRunner(t, db, adapter, now)
	store := NewEntryStore(db)

	require.Error(t, runner.Run(context.Background(), entry.ID, false))
	afterFail, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, afterFail.NextSyncAt.Equal(now.Add(5*time.Minute)))

	// 重试成功后恢复完整间隔
	require.NoError(t, runner.Run(context.Background(), entry.ID, false))
	afterSuccess, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, afterSuccess.NextSyncAt.Equal(now.Add(60*time.Minute)))
	require.NotNil(t, afterSuccess.LastSyncAt)
}

func TestRunner_OverlapSkip(t *testing.T) {
	db := setupSchedulerDB(t)
	entry := seedEntry(t, db, &ScheduleEntry{TenantID: 42, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60})

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{}
	runner := newTestRunner(t, db, adapter, now)

	// 条目已在执行：重叠触发直接跳过，不报错也不做任何记账
	require.True(t, runner.tryAcquire(entry.ID))
	require.NoError(t, runner.Run(context.Background(), entry.ID, false))
	runner.release(entry.ID)

	assert.Equal(t, 0, adapter.calls)
	updated, err := NewEntryStore(db).Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.NextSyncAt)
}

func TestRunner_UnknownEntry(t *testing.T) {
	db := setupSchedulerDB(t)
	runner := newTestRunner(t, db, &fakeAdapter{}, time.Now())

	err := runner.Run(context.Background(), 999, false)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

// fakeDispatcher 记录派发调用的假实现
// fired 非 nil 时每次派发非阻塞地发一个信号，供测试等待
type fakeDispatcher struct {
	mu      sync.Mutex
	entries []int64
	manual  []bool
	fired   chan struct{}
}

func (f *fakeDispatcher) DispatchSyncRefresh(_ context.Context, entryID int64, manual bool) error {
	f.mu.Lock()
	f.entries = append(f.entries, entryID)
	f.manual = append(f.manual, manual)
	f.mu.Unlock()

	if f.fired != nil {
		select {
		case f.fired <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func TestCoordinator_DispatchesDueEntries(t *testing.T) {
	db := setupSchedulerDB(t)
	due := seedEntry(t, db, &ScheduleEntry{TenantID: 42, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60})
	future := time.Now().UTC().Add(time.Hour)
	seedEntry(t, db, &ScheduleEntry{TenantID: 43, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60, NextSyncAt: &future})
	seedEntry(t, db, &ScheduleEntry{TenantID: 44, ConnectorType: "jira", Enabled: false, IntervalMinutes: 60})

	dispatcher := &fakeDispatcher{}
	c := NewCoordinator(NewEntryStore(db), dispatcher, time.Minute)
	c.runTick()

	require.Equal(t, 1, dispatcher.count())
	assert.Equal(t, due.ID, dispatcher.entries[0])
	assert.False(t, dispatcher.manual[0])
}

func TestCoordinator_StartIsIdempotent(t *testing.T) {
	db := setupSchedulerDB(t)
	seedEntry(t, db, &ScheduleEntry{TenantID: 42, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60})

	dispatcher := &fakeDispatcher{fired: make(chan struct{}, 1)}
	c := NewCoordinator(NewEntryStore(db), dispatcher, time.Millisecond)

	// 重复 Start 不产生重复定时器，Stop 一次即可停干净
	c.Start()
	c.Start()

	// 等到首次派发，证明轮询循环在跑
	select {
	case <-dispatcher.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("协调器未派发任何到期条目")
	}
	c.Stop()

	// Stop 返回即轮询 goroutine 已退出，之后计数不再变化
	settled := dispatcher.count()
	select {
	case <-dispatcher.fired:
	default:
	}
	assert.Equal(t, settled, dispatcher.count())

	// 停止后可以重新启动
	c.Start()
	c.Stop()
}

func TestCoordinator_TriggerNow(t *testing.T) {
	db := setupSchedulerDB(t)
	entry := seedEntry(t, db, &ScheduleEntry{TenantID: 42, ConnectorType: "jira", Enabled: true, IntervalMinutes: 60})

	dispatcher := &fakeDispatcher{}
	c := NewCoordinator(NewEntryStore(db), dispatcher, time.Minute)

	require.NoError(t, c.TriggerNow(context.Background(), entry.ID))
	require.Equal(t, 1, dispatcher.count())
	assert.True(t, dispatcher.manual[0])

	assert.ErrorIs(t, c.TriggerNow(context.Background(), 999), ErrEntryNotFound)
}

func TestScheduleEntry_IsDue(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&ScheduleEntry{Enabled: true}).IsDue(now))
	assert.True(t, (&ScheduleEntry{Enabled: true, NextSyncAt: &past}).IsDue(now))
	assert.True(t, (&ScheduleEntry{Enabled: true, NextSyncAt: &now}).IsDue(now))
	assert.False(t, (&ScheduleEntry{Enabled: true, NextSyncAt: &future}).IsDue(now))
	assert.False(t, (&ScheduleEntry{Enabled: false}).IsDue(now))
}

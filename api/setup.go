package api

import (
	"saulto/internal/activity"
	"saulto/internal/auth"
	"saulto/internal/config"
	"saulto/internal/connector"
	"saulto/internal/infra/queue"
	"saulto/internal/logger"
	"saulto/internal/metrics"
	"saulto/internal/scheduler"
	"saulto/internal/tenant"
	"saulto/internal/worker"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	DB          *gorm.DB
	Redis       redis.UniversalClient
	QueueClient queue.Client

	JWTService *auth.JWTService
	Tenants    *tenant.Repository

	ETLService   *metrics.ETLService
	QueryService *metrics.QueryService
	GoalSource   metrics.GoalSource

	Connector   connector.Adapter
	Activity    *activity.Service
	EntryStore  *scheduler.EntryStore
	Runner      *scheduler.Runner
	Coordinator *scheduler.Coordinator

	Worker *worker.Server
}

// BuildContainer 组装应用依赖
// 读路径、ETL、调度器共享同一套存储与配置，调度器在 main 里按配置启动
func BuildContainer(db *gorm.DB, rdb redis.UniversalClient, cfg *config.Config) *AppContainer {
	queueClient := queue.NewClient(cfg.Redis)
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, rdb)
	tenantRepo := tenant.NewRepository(db)

	etlService := metrics.NewETLService(db, cfg.Metrics.StalenessThreshold())
	goalSource := metrics.NewGoalSource(cfg.Metrics.GoalStrategy, db, rdb, cfg.Metrics.GoalCacheTTL())
	queryService := metrics.NewQueryService(db, etlService, goalSource, cfg.Metrics.FreshnessTimeout())

	connAdapter := connector.NewHTTPAdapter(cfg.Connector.BaseURL, cfg.Connector.Timeout())
	activityService := activity.NewService(db)

	entryStore := scheduler.NewEntryStore(db)
	runner := scheduler.NewRunner(entryStore, connAdapter, etlService, activityService, cfg.Scheduler.RetryDelay())
	coordinator := scheduler.NewCoordinator(entryStore, queueClient, cfg.Scheduler.TickInterval())

	workerServer := worker.NewServer(cfg.Redis, runner, logger.Get())

	return &AppContainer{
		DB:           db,
		Redis:        rdb,
		QueueClient:  queueClient,
		JWTService:   jwtService,
		Tenants:      tenantRepo,
		ETLService:   etlService,
		QueryService: queryService,
		GoalSource:   goalSource,
		Connector:    connAdapter,
		Activity:     activityService,
		EntryStore:   entryStore,
		Runner:       runner,
		Coordinator:  coordinator,
		Worker:       workerServer,
	}
}

// Close 释放容器持有的资源
func (c *AppContainer) Close() {
	if c.QueueClient != nil {
		_ = c.QueueClient.Close()
	}
}

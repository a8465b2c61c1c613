package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Connector ConnectorConfig `mapstructure:"connector"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`      // 连接池大小
	MinIdleConns int    `mapstructure:"min_idle_conns"` // 最小空闲连接数
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// MetricsConfig 指标计算配置
type MetricsConfig struct {
	// 时间序列新鲜度阈值（分钟），窗口内数据比该阈值新时 ETL 直接跳过
	StalenessMinutes int `mapstructure:"staleness_minutes"`
	// 读路径新鲜度检查的等待上限（秒），超时降级为返回现有数据
	FreshnessTimeoutSeconds int `mapstructure:"freshness_timeout_seconds"`
	// 目标序列计算策略: on_demand, db_view, materialized
	GoalStrategy string `mapstructure:"goal_strategy"`
	// materialized 策略的 Redis 缓存 TTL（分钟）
	GoalCacheMinutes int `mapstructure:"goal_cache_minutes"`
}

// StalenessThreshold 新鲜度阈值，默认1小时
func (c *MetricsConfig) StalenessThreshold() time.Duration {
	if c.StalenessMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.StalenessMinutes) * time.Minute
}

// FreshnessTimeout 读路径新鲜度检查上限，默认5秒
func (c *MetricsConfig) FreshnessTimeout() time.Duration {
	if c.FreshnessTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.FreshnessTimeoutSeconds) * time.Second
}

// GoalCacheTTL materialized 策略的缓存过期时间，默认24小时
func (c *MetricsConfig) GoalCacheTTL() time.Duration {
	if c.GoalCacheMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.GoalCacheMinutes) * time.Minute
}

// SchedulerConfig 同步调度配置
type SchedulerConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	TickSeconds  int  `mapstructure:"tick_seconds"`  // 调度器轮询间隔，默认60秒
	RetryMinutes int  `mapstructure:"retry_minutes"` // 失败后的短重试间隔，默认5分钟
}

// TickInterval 调度器轮询间隔
func (c *SchedulerConfig) TickInterval() time.Duration {
	if c.TickSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TickSeconds) * time.Second
}

// RetryDelay 失败重试间隔
func (c *SchedulerConfig) RetryDelay() time.Duration {
	if c.RetryMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.RetryMinutes) * time.Minute
}

// ConnectorConfig 连接器同步服务配置
type ConnectorConfig struct {
	BaseURL        string `mapstructure:"base_url"`        // 连接器服务地址
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 单次同步调用超时
}

// Timeout 同步调用超时，默认120秒
func (c *ConnectorConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

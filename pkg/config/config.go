package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	// 慢查询阈值（毫秒）
	SlowQueryMS int `yaml:"slow_query_ms"`
}

// DSN 返回 PostgreSQL 连接串
func (c DBConfig) DSN(scheme string) string {
	if scheme == "" {
		scheme = "postgres"
	}
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// StoreConfig 偏好存储配置
type StoreConfig struct {
	Driver     string `yaml:"driver"` // postgres | sqlite
	SQLitePath string `yaml:"sqlite_path"`
	// 熔断器：连续失败多少次后快速失败
	BreakerFailures int `yaml:"breaker_failures"`
	// 熔断器：打开状态持续秒数
	BreakerTimeoutSeconds int `yaml:"breaker_timeout_seconds"`
}

// BreakerTimeout 返回熔断器打开时长
func (c StoreConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL        string `yaml:"url"`
	Enabled    bool   `yaml:"enabled"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
	MaxRetries int64  `yaml:"max_retries"`
	// 失败消息重新入队前的等待（毫秒）
	RequeueDelayMS int `yaml:"requeue_delay_ms"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 去重键过期时间（秒）
	DedupTTLSeconds int `yaml:"dedup_ttl_seconds"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug|info|warn|error
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideStoreFromEnv 从环境变量覆盖存储配置
func OverrideStoreFromEnv(cfg *StoreConfig) {
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
		cfg.Enabled = true
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideLogFromEnv 从环境变量覆盖日志配置
func OverrideLogFromEnv(cfg *LogConfig) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
}

// DecisionConfig 决策引擎配置
type DecisionConfig struct {
	// 兼容旧行为：订阅或 DND 任一缺失即视为未配置
	LegacySettingsCheck bool `yaml:"legacy_settings_check"`
}

// OverrideDecisionFromEnv 从环境变量覆盖决策配置
func OverrideDecisionFromEnv(cfg *DecisionConfig) {
	if v := os.Getenv("DECISION_LEGACY_SETTINGS_CHECK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LegacySettingsCheck = b
		}
	}
}

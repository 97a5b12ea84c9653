// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"lensmart/internal/pkg/database"
	"lensmart/internal/pkg/mq"
	"lensmart/internal/pkg/redis"
)

const defaultConfigFile = "configs/marketplace.yaml"

type Config struct {
	Service     ServiceConfig        `yaml:"service"`
	MySQL       database.MySQLConfig `yaml:"mysql"`
	Redis       redis.Config         `yaml:"redis"`
	Kafka       mq.KafkaConfig       `yaml:"kafka"`
	Infra       InfraConfig          `yaml:"infra"`
	Engine      EngineConfig         `yaml:"engine"`
	Loyalty     LoyaltyConfig        `yaml:"loyalty"`
	Idempotency IdempotencyConfig    `yaml:"idempotency"`
}

type ServiceConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint    string  `yaml:"endpoint"`
		SampleRatio float64 `yaml:"sampleRatio"`
	} `yaml:"jaeger"`
	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`
}

// EngineConfig 控制锁竞争时的有限重试
type EngineConfig struct {
	MaxConflictRetries int           `yaml:"maxConflictRetries"`
	RetryBackoff       time.Duration `yaml:"retryBackoff"`
}

func (e EngineConfig) RetryPolicy() database.RetryPolicy {
	return database.RetryPolicy{MaxAttempts: e.MaxConflictRetries, Backoff: e.RetryBackoff}
}

type LoyaltyConfig struct {
	AccrualRule string `yaml:"accrualRule"`
}

type IdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回最近一次 LoadConfig 的结果，未加载时返回默认配置
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

func DefaultConfig() *Config {
	c := &Config{
		Service: ServiceConfig{Name: "marketplace-service", Port: 8080, LogLevel: "info"},
		MySQL: database.MySQLConfig{
			DSN:                    "root:root@tcp(localhost:3306)/lensmart?charset=utf8mb4&parseTime=true&loc=UTC",
			MaxOpenConns:           50,
			MaxIdleConns:           10,
			ConnMaxLifetime:        30 * time.Minute,
			LockWaitTimeoutSeconds: 3,
		},
		Kafka: mq.KafkaConfig{
			EventsTopic:   "marketplace-events",
			RestockTopic:  "catalog-restock",
			ConsumerGroup: "marketplace-restock",
		},
		Engine:      EngineConfig{MaxConflictRetries: 3, RetryBackoff: 50 * time.Millisecond},
		Loyalty:     LoyaltyConfig{AccrualRule: `role == "OPTICIAN"`},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
	}
	c.Infra.Jaeger.SampleRatio = 1
	c.Infra.Nacos.Group = "DEFAULT_GROUP"
	return c
}

// LoadConfig 依次应用默认值、YAML 文件、环境变量。
// path 为空时读取 CONFIG_FILE，再退回默认路径；默认路径不存在不算错误。
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = getEnv("CONFIG_FILE", "")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigFile
	}

	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

func applyEnv(c *Config) error {
	c.MySQL.DSN = getEnv("MYSQL_DSN", c.MySQL.DSN)
	c.Redis.Addrs = getEnv("REDIS_ADDRS", c.Redis.Addrs)
	c.Kafka.Brokers = getEnv("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	c.Service.LogLevel = getEnv("LOG_LEVEL", c.Service.LogLevel)
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT %q: %w", v, err)
		}
		c.Service.Port = port
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.Service.Port <= 0 || c.Service.Port > 65535:
		return fmt.Errorf("service.port %d out of range", c.Service.Port)
	case c.MySQL.DSN == "":
		return fmt.Errorf("mysql.dsn is required")
	case c.Engine.MaxConflictRetries < 1:
		return fmt.Errorf("engine.maxConflictRetries must be at least 1")
	case c.Engine.RetryBackoff < 0:
		return fmt.Errorf("engine.retryBackoff must not be negative")
	case c.Idempotency.TTL <= 0:
		return fmt.Errorf("idempotency.ttl must be positive")
	}
	return nil
}

// getEnv 从环境变量中读取配置，未设置时使用 fallback
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

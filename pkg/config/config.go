// Package config 加载 IMBotChat 的运行配置。
// 先读取 YAML 文件，再用环境变量（含 .env）覆盖服务、日志与存储相关字段。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"

	"github.com/IMBotPlatform/IMBotChat/pkg/ai"
	"github.com/IMBotPlatform/IMBotChat/pkg/logging"
)

// 支持的会话存储驱动。
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// ServerConfig 是 HTTP 服务相关配置。
type ServerConfig struct {
	ListenAddr      string        `env:"LISTEN_ADDR" yaml:"listen_addr"`
	BodyLimit       string        `env:"BODY_LIMIT" yaml:"body_limit"`
	RateLimit       float64       `env:"RATE_LIMIT" yaml:"rate_limit"` // 每个 IP 每秒请求数，0 表示不限流
	RateBurst       int           `env:"RATE_BURST" yaml:"rate_burst"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// StoreConfig 选择并配置会话存储。
type StoreConfig struct {
	Driver        string        `env:"STORE_DRIVER" yaml:"driver"`
	FileDir       string        `env:"STORE_FILE_DIR" yaml:"file_dir"`
	RedisURL      string        `env:"REDIS_URL" yaml:"redis_url"`
	RedisPrefix   string        `env:"REDIS_KEY_PREFIX" yaml:"redis_key_prefix"`
	MaxSessions   int           `env:"STORE_MAX_SESSIONS" yaml:"max_sessions"`
	TTL           time.Duration `env:"STORE_TTL" yaml:"ttl"`
	PruneInterval time.Duration `env:"STORE_PRUNE_INTERVAL" yaml:"prune_interval"`
}

// Config 是应用的完整配置。
type Config struct {
	Server  ServerConfig     `yaml:"server"`
	Log     logging.Config   `yaml:"log"`
	Store   StoreConfig      `yaml:"store"`
	AI      ai.Config        `yaml:"ai"`
	Breaker ai.BreakerConfig `yaml:"breaker"`
}

// Default 返回带默认值的配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			BodyLimit:       "1M",
			RateBurst:       10,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver:        StoreMemory,
			FileDir:       "history",
			RedisPrefix:   ai.DefaultRedisKeyPrefix,
			MaxSessions:   10000,
			TTL:           24 * time.Hour,
			PruneInterval: time.Minute,
		},
		Breaker: ai.BreakerConfig{
			Failures: 5,
			Timeout:  30 * time.Second,
		},
	}
}

// Load 读取配置文件（path 为空时只使用默认值与环境变量）并校验。
func Load(path string) (*Config, error) {
	// .env 不存在时直接使用进程环境变量
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if file := cfg.AI.ConfigFile; file != "" {
		if !filepath.IsAbs(file) && path != "" {
			file = filepath.Join(filepath.Dir(path), file)
		}
		models, err := ai.LoadConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load ai.config_file: %w", err)
		}
		cfg.AI.Include(models)
	}

	for _, section := range []any{&cfg.Server, &cfg.Log, &cfg.Store} {
		if err := env.Load(section, nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}
	cfg.AI.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置组合是否可用。
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreFile:
		if c.Store.FileDir == "" {
			return errors.New("store.file_dir is required for the file driver")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("invalid ai config: %w", err)
	}
	return nil
}

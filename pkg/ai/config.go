package ai

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 采样参数默认值，与原 text2text 推理调用保持一致。
const (
	DefaultMaxTokens      = 256
	DefaultTemperature    = 0.9
	DefaultTopK           = 50
	DefaultTopP           = 0.95
	DefaultContextEntries = 2
	DefaultHistoryLimit   = 10
)

// ModelConfig defines the configuration for a single LLM.
type ModelConfig struct {
	Name        string  `json:"name" yaml:"name"`                             // e.g., "flan-t5", "gpt-4o"
	Provider    string  `json:"provider" yaml:"provider"`                     // openai, anthropic, google, huggingface, ollama
	APIKey      string  `json:"api_key" yaml:"api_key"`                       // "env:NAME" or direct key
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Optional: for custom endpoints
	ModelName   string  `json:"model_name" yaml:"model_name"`                 // The provider model ID (e.g., "google/flan-t5-base")
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`                 // Max output tokens
	Temperature float64 `json:"temperature" yaml:"temperature"`               // Creativity
	TopK        int     `json:"top_k" yaml:"top_k"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
}

// Config holds the global AI configuration.
type Config struct {
	DefaultModel string        `json:"default_model" yaml:"default_model"`
	Models       []ModelConfig `json:"models" yaml:"models"`

	// ContextEntries 是拼接 prompt 时带入的历史条目数（原始条目，不是轮次）。
	ContextEntries int `json:"context_entries" yaml:"context_entries"`
	// HistoryLimit 是响应里返回的最近历史条目数。
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`
	// Timeout 限制单次模型调用时长，0 表示不限制。
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// ConfigFile 指向单独维护的模型配置文件（相对路径以主配置文件所在目录为准）。
	ConfigFile string `json:"config_file,omitempty" yaml:"config_file,omitempty"`
}

// Include 合并从 ConfigFile 读取的配置：模型追加在已声明的模型之后，
// 同名模型以当前配置为准；其余字段仅在当前未设置时采用 other 的值。
func (c *Config) Include(other *Config) {
	if c.DefaultModel == "" {
		c.DefaultModel = other.DefaultModel
	}
	for _, m := range other.Models {
		if c.Model(m.Name) == nil {
			c.Models = append(c.Models, m)
		}
	}
	if c.ContextEntries == 0 {
		c.ContextEntries = other.ContextEntries
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if c.Timeout == 0 {
		c.Timeout = other.Timeout
	}
}

// ApplyDefaults 为未设置的字段填充默认值。
func (c *Config) ApplyDefaults() {
	if c.ContextEntries == 0 {
		c.ContextEntries = DefaultContextEntries
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	for i := range c.Models {
		m := &c.Models[i]
		if m.MaxTokens <= 0 {
			m.MaxTokens = DefaultMaxTokens
		}
		if m.Temperature == 0 {
			m.Temperature = DefaultTemperature
		}
		if m.TopK == 0 {
			m.TopK = DefaultTopK
		}
		if m.TopP == 0 {
			m.TopP = DefaultTopP
		}
	}
}

// Validate 检查默认模型是否在 models 中声明。
func (c *Config) Validate() error {
	if c.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}
	if c.Model(c.DefaultModel) == nil {
		return fmt.Errorf("default_model %q: %w", c.DefaultModel, ErrModelNotFound)
	}
	return nil
}

// Model 按名称查找模型配置，未找到时返回 nil。
func (c *Config) Model(name string) *ModelConfig {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i]
		}
	}
	return nil
}

// LoadConfig reads and parses the configuration from a YAML file.
// Defaults are not applied so the result can be merged with Include.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

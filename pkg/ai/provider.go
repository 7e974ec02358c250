package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// resolveAPIKey 解析 API 密钥。
// 如果密钥以 "env:" 开头，则从环境变量中获取实际值。
func resolveAPIKey(key string) string {
	if strings.HasPrefix(key, "env:") {
		return os.Getenv(strings.TrimPrefix(key, "env:"))
	}
	return key
}

// newProvider 按配置初始化 langchaingo 模型实例。
func newProvider(ctx context.Context, cfg *ModelConfig) (llms.Model, error) {
	apiKey := resolveAPIKey(cfg.APIKey)

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "google":
		return googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(cfg.ModelName),
		)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	case "huggingface":
		// Hugging Face Inference API，默认模型即 google/flan-t5-base 一类的 text2text 模型。
		opts := []huggingface.Option{
			huggingface.WithToken(apiKey),
			huggingface.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, huggingface.WithURL(cfg.BaseURL))
		}
		return huggingface.New(opts...)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// callOptions 将模型配置中的采样参数转换为 langchaingo CallOption。
func callOptions(cfg *ModelConfig) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithMaxTokens(cfg.MaxTokens),
		llms.WithTemperature(cfg.Temperature),
	}
	if cfg.TopK > 0 {
		opts = append(opts, llms.WithTopK(cfg.TopK))
	}
	if cfg.TopP > 0 {
		opts = append(opts, llms.WithTopP(cfg.TopP))
	}
	return opts
}

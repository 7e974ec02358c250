package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"

	"github.com/IMBotPlatform/IMBotChat/pkg/metrics"
)

// Service 是 AI 逻辑的主要入口点。
// 它负责管理模型实例、会话状态以及与 LLM 的交互。
type Service struct {
	config  *Config
	store   SessionStore
	logger  zerolog.Logger
	breaker BreakerConfig
	locks   *sessionLocks

	mu         sync.Mutex
	modelCache map[string]llms.Model
	breakers   map[string]*gobreaker.CircuitBreaker
}

// ServiceOption 定制 Service。
type ServiceOption func(*Service)

// WithLogger 注入日志记录器。
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithBreaker 为每个模型启用熔断器。
func WithBreaker(cfg BreakerConfig) ServiceOption {
	return func(s *Service) {
		s.breaker = cfg
	}
}

// WithModelInstance 预置模型实例，跳过按 provider 初始化。
func WithModelInstance(name string, llm llms.Model) ServiceOption {
	return func(s *Service) {
		s.modelCache[name] = llm
	}
}

// NewService 创建一个新的 AI 服务实例。
func NewService(config *Config, store SessionStore, opts ...ServiceOption) *Service {
	s := &Service{
		config:     config,
		store:      store,
		logger:     zerolog.Nop(),
		locks:      newSessionLocks(),
		modelCache: make(map[string]llms.Model),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// getModel 获取模型实例及其熔断器。
// 如果缓存中存在则直接返回，否则初始化一个新的模型实例并缓存。
//
// Check Cache -> (Hit) -> Return
//
//	  |
//	(Miss)
//	  v
//
// Load Config -> Init Provider -> Update Cache -> Return
func (s *Service) getModel(ctx context.Context, modelName string) (llms.Model, *gobreaker.CircuitBreaker, *ModelConfig, error) {
	cfg := s.config.Model(modelName)
	if cfg == nil {
		return nil, nil, nil, fmt.Errorf("model '%s': %w", modelName, ErrModelNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	llm, ok := s.modelCache[modelName]
	if !ok {
		var err error
		llm, err = newProvider(ctx, cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create model provider: %w", err)
		}
		s.modelCache[modelName] = llm
	}

	cb, ok := s.breakers[modelName]
	if !ok {
		cb = newBreaker(modelName, s.breaker, s.logger)
		s.breakers[modelName] = cb
	}
	return llm, cb, cfg, nil
}

// ChatOptions 定义调用 Generate 时的配置。
type ChatOptions struct {
	Model string
}

// ChatOption 是配置 ChatOptions 的函数。
type ChatOption func(*ChatOptions)

// WithModel 指定使用的模型。
func WithModel(model string) ChatOption {
	return func(o *ChatOptions) {
		o.Model = model
	}
}

// Result 是一次生成的结果。
type Result struct {
	Output    string   // 去除首尾空白后的模型输出
	SessionID string   // 实际使用的会话 ID
	History   []string // 追加后最近 HistoryLimit 条历史
}

// Generate 处理用户输入：读取历史、拼接 prompt、调用模型并写回历史。
//
//	User Input
//	      |
//	      v
//	+-------------------------+
//	| SessionStore            |
//	| 1. Load History         |
//	+-----------+-------------+
//	            |  BuildPrompt(history[-N:], input)
//	            v
//	+-------------------------+
//	| LLM Provider            |
//	| 2. GenerateContent()    |
//	+-----------+-------------+
//	            |
//	            v
//	+-------------------------+
//	| SessionStore            |
//	| 3. Append User/AI Turn  |
//	| 4. Recent History       |
//	+-------------------------+
//
// 同一会话的请求按顺序执行，避免并发读改写丢失更新。
func (s *Service) Generate(ctx context.Context, sessionID, input string, opts ...ChatOption) (*Result, error) {
	// Step 0: 解析选项（默认使用配置中的 default_model，可被 WithModel 覆盖）
	options := &ChatOptions{
		Model: s.config.DefaultModel,
	}
	for _, o := range opts {
		o(options)
	}
	modelName := options.Model
	if modelName == "" {
		modelName = s.config.DefaultModel
	}

	llm, cb, cfg, err := s.getModel(ctx, modelName)
	if err != nil {
		return nil, err
	}

	sessionID = ResolveSessionID(sessionID)
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	// Step 1: 加载历史并拼接 prompt
	history, err := s.store.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	prompt := BuildPrompt(history, input, s.config.ContextEntries)

	// Step 2: 调用模型
	output, err := s.generate(ctx, modelName, llm, cb, cfg, prompt)
	if err != nil {
		s.logger.Error().Err(err).Str("model", modelName).Str("session_id", sessionID).Msg("generation failed")
		return nil, err
	}

	// Step 3: 写回历史（保存原始输出）
	if err := s.store.AppendTurn(ctx, sessionID, input, output); err != nil {
		return nil, fmt.Errorf("failed to append turn: %w", err)
	}

	// Step 4: 读取最近历史用于响应
	recent, err := s.store.Recent(ctx, sessionID, s.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent history: %w", err)
	}

	s.logger.Debug().
		Str("model", modelName).
		Str("session_id", sessionID).
		Int("history_len", len(history)+2).
		Msg("generation completed")

	return &Result{
		Output:    strings.TrimSpace(output),
		SessionID: sessionID,
		History:   recent,
	}, nil
}

// generate 通过熔断器调用模型并记录指标。
func (s *Service) generate(ctx context.Context, modelName string, llm llms.Model, cb *gobreaker.CircuitBreaker, cfg *ModelConfig, prompt string) (string, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	output, err := execute(cb, func() (string, error) {
		resp, err := llm.GenerateContent(ctx,
			[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
			callOptions(cfg)...,
		)
		if err != nil {
			return "", fmt.Errorf("llm generate error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyOutput
		}
		return resp.Choices[0].Content, nil
	})
	metrics.GenerateDuration.WithLabelValues(modelName).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrGeneratorUnavailable):
		metrics.GenerateRequestsTotal.WithLabelValues(modelName, metrics.StatusUnavailable).Inc()
	case err != nil:
		metrics.GenerateRequestsTotal.WithLabelValues(modelName, metrics.StatusError).Inc()
	default:
		metrics.GenerateRequestsTotal.WithLabelValues(modelName, metrics.StatusOK).Inc()
	}
	return output, err
}

// History 返回会话最近 n 条历史。
func (s *Service) History(ctx context.Context, sessionID string, n int) ([]string, error) {
	return s.store.Recent(ctx, sessionID, n)
}

// ClearSession 清空会话历史。
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	return s.store.ClearHistory(ctx, sessionID)
}

// Ping 检查存储是否可用；不支持健康检查的存储视为可用。
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

package ai

import "errors"

// 会话与生成阶段的通用错误，便于 HTTP 层统一映射状态码。
var (
	// ErrModelNotFound 表示请求的模型未在配置中声明。
	ErrModelNotFound = errors.New("model not found")
	// ErrUnsupportedProvider 表示模型配置的 provider 不受支持。
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrGeneratorUnavailable 表示熔断器处于打开状态，暂停调用模型。
	ErrGeneratorUnavailable = errors.New("generator unavailable")
	// ErrEmptyOutput 表示模型没有返回任何候选结果。
	ErrEmptyOutput = errors.New("empty response from llm")
)

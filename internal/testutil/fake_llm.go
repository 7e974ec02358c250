// Package testutil 提供测试用的模型替身。
package testutil

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// FakeLLM 是实现 llms.Model 的确定性模型替身。
// 依次返回 Responses（用完后重复最后一个），并记录收到的 prompt 与调用参数。
type FakeLLM struct {
	Responses []string
	Err       error
	// Block 非空时，GenerateContent 会等待其关闭或 ctx 结束。
	Block chan struct{}

	mu      sync.Mutex
	calls   int
	prompts []string
	options []llms.CallOptions
}

var _ llms.Model = (*FakeLLM)(nil)

// NewFakeLLM 创建按顺序返回 responses 的模型替身。
func NewFakeLLM(responses ...string) *FakeLLM {
	return &FakeLLM{Responses: responses}
}

// GenerateContent 实现 llms.Model。
func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, promptText(messages))
	f.options = append(f.options, opts)
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Responses) == 0 {
		return &llms.ContentResponse{}, nil
	}
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.Responses[idx]}},
	}, nil
}

// Call 实现 llms.Model。
func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Prompts 返回已收到的 prompt。
func (f *FakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

// Options 返回每次调用解析后的参数。
func (f *FakeLLM) Options() []llms.CallOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llms.CallOptions, len(f.options))
	copy(out, f.options)
	return out
}

// Calls 返回调用次数。
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func promptText(messages []llms.MessageContent) string {
	var text string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				text += tc.Text
			}
		}
	}
	return text
}

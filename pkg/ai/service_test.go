package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fakes "github.com/IMBotPlatform/IMBotChat/internal/testutil"
	"github.com/IMBotPlatform/IMBotChat/pkg/metrics"
)

func testConfig() *Config {
	cfg := &Config{
		DefaultModel: "fake",
		Models: []ModelConfig{
			{Name: "fake", Provider: "fake"},
			{Name: "alt", Provider: "fake"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestService(t *testing.T, llm *fakes.FakeLLM, opts ...ServiceOption) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opts = append([]ServiceOption{WithModelInstance("fake", llm)}, opts...)
	return NewService(testConfig(), store, opts...), store
}

func TestGenerate_NewSession(t *testing.T) {
	llm := fakes.NewFakeLLM("  Hi there!  ")
	svc, _ := newTestService(t, llm)

	res, err := svc.Generate(context.Background(), "s1", "Hello")
	require.NoError(t, err)

	assert.Equal(t, "Hi there!", res.Output)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, []string{"User: Hello", "AI:   Hi there!  "}, res.History)
	assert.Equal(t, []string{"User: Hello\nAI:"}, llm.Prompts())
}

func TestGenerate_SecondRequestSeesPreviousExchange(t *testing.T) {
	llm := fakes.NewFakeLLM("first", "second")
	svc, store := newTestService(t, llm)
	ctx := context.Background()

	_, err := svc.Generate(ctx, "s1", "Hello")
	require.NoError(t, err)
	res, err := svc.Generate(ctx, "s1", "How are you?")
	require.NoError(t, err)

	prompts := llm.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, "User: Hello\nAI: first\nUser: How are you?\nAI:", prompts[1])

	history, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.Equal(t, history, res.History)
}

func TestGenerate_PromptWindowIsBounded(t *testing.T) {
	llm := fakes.NewFakeLLM("ok")
	svc, _ := newTestService(t, llm)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := svc.Generate(ctx, "s1", fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	prompts := llm.Prompts()
	last := prompts[len(prompts)-1]
	assert.Equal(t, "User: q4\nAI: ok\nUser: q5\nAI:", last)
	assert.Equal(t, 3, strings.Count(last, "\n"))
}

func TestGenerate_ContextEntriesConfigurable(t *testing.T) {
	llm := fakes.NewFakeLLM("ok")
	cfg := testConfig()
	cfg.ContextEntries = 4
	svc := NewService(cfg, NewMemoryStore(), WithModelInstance("fake", llm))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Generate(ctx, "s1", fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	prompts := llm.Prompts()
	assert.Equal(t, "User: q0\nAI: ok\nUser: q1\nAI: ok\nUser: q2\nAI:", prompts[2])
}

func TestGenerate_HistoryCappedAtLimit(t *testing.T) {
	llm := fakes.NewFakeLLM("ok")
	svc, store := newTestService(t, llm)
	ctx := context.Background()

	var res *Result
	var err error
	for i := 0; i < 7; i++ {
		res, err = svc.Generate(ctx, "s1", fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	full, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, full, 14)
	assert.Len(t, res.History, 10)
	assert.Equal(t, full[4:], res.History)
}

func TestGenerate_GeneratesSessionID(t *testing.T) {
	llm := fakes.NewFakeLLM("ok")
	svc, _ := newTestService(t, llm)
	ctx := context.Background()

	first, err := svc.Generate(ctx, "", "Hello")
	require.NoError(t, err)
	second, err := svc.Generate(ctx, "", "Hello")
	require.NoError(t, err)

	_, err = uuid.Parse(first.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Len(t, second.History, 2, "fresh session must not inherit history")
}

func TestGenerate_SamplingOptions(t *testing.T) {
	llm := fakes.NewFakeLLM("ok")
	svc, _ := newTestService(t, llm)

	_, err := svc.Generate(context.Background(), "s1", "Hello")
	require.NoError(t, err)

	opts := llm.Options()
	require.Len(t, opts, 1)
	assert.Equal(t, DefaultMaxTokens, opts[0].MaxTokens)
	assert.Equal(t, DefaultTemperature, opts[0].Temperature)
	assert.Equal(t, DefaultTopK, opts[0].TopK)
	assert.Equal(t, DefaultTopP, opts[0].TopP)
}

func TestGenerate_WithModel(t *testing.T) {
	def := fakes.NewFakeLLM("default")
	alt := fakes.NewFakeLLM("alternate")
	svc, _ := newTestService(t, def, WithModelInstance("alt", alt))

	res, err := svc.Generate(context.Background(), "s1", "Hello", WithModel("alt"))
	require.NoError(t, err)
	assert.Equal(t, "alternate", res.Output)
	assert.Equal(t, 0, def.Calls())
	assert.Equal(t, 1, alt.Calls())
}

func TestGenerate_UnknownModel(t *testing.T) {
	svc, _ := newTestService(t, fakes.NewFakeLLM("ok"))

	_, err := svc.Generate(context.Background(), "s1", "Hello", WithModel("missing"))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestGenerate_UnsupportedProvider(t *testing.T) {
	svc := NewService(testConfig(), NewMemoryStore())

	_, err := svc.Generate(context.Background(), "s1", "Hello")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestGenerate_GeneratorErrorLeavesHistoryUntouched(t *testing.T) {
	llm := fakes.NewFakeLLM()
	llm.Err = errors.New("model exploded")
	svc, store := newTestService(t, llm)
	ctx := context.Background()

	_, err := svc.Generate(ctx, "s1", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")

	history, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGenerate_EmptyOutput(t *testing.T) {
	svc, _ := newTestService(t, fakes.NewFakeLLM())

	_, err := svc.Generate(context.Background(), "s1", "Hello")
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestGenerate_Timeout(t *testing.T) {
	llm := fakes.NewFakeLLM("late")
	llm.Block = make(chan struct{})
	defer close(llm.Block)

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	svc := NewService(cfg, NewMemoryStore(), WithModelInstance("fake", llm))

	_, err := svc.Generate(context.Background(), "s1", "Hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_CircuitBreakerOpens(t *testing.T) {
	llm := fakes.NewFakeLLM()
	llm.Err = errors.New("upstream down")
	svc, _ := newTestService(t, llm, WithBreaker(BreakerConfig{Failures: 2, Timeout: time.Minute}))
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.GenerateRequestsTotal.WithLabelValues("fake", metrics.StatusUnavailable))

	for i := 0; i < 2; i++ {
		_, err := svc.Generate(ctx, "s1", "Hello")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrGeneratorUnavailable)
	}

	_, err := svc.Generate(ctx, "s1", "Hello")
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)
	assert.Equal(t, 2, llm.Calls(), "open breaker must not reach the model")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.GenerateRequestsTotal.WithLabelValues("fake", metrics.StatusUnavailable)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("fake")))
}

func TestGenerate_SameSessionIsSerialized(t *testing.T) {
	llm := fakes.NewFakeLLM("ok")
	svc, store := newTestService(t, llm)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Generate(ctx, "shared", fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := store.GetHistory(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, history, 2*n)
	for i := 0; i < n; i++ {
		assert.True(t, strings.HasPrefix(history[2*i], "User: q"))
		assert.Equal(t, "AI: ok", history[2*i+1])
	}
	assert.Zero(t, svc.locks.len(), "session locks must be released")
}

func TestService_HistoryAndClear(t *testing.T) {
	svc, _ := newTestService(t, fakes.NewFakeLLM("ok"))
	ctx := context.Background()

	_, err := svc.Generate(ctx, "s1", "Hello")
	require.NoError(t, err)

	history, err := svc.History(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"AI: ok"}, history)

	require.NoError(t, svc.ClearSession(ctx, "s1"))
	history, err = svc.History(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_PingWithoutPinger(t *testing.T) {
	svc, _ := newTestService(t, fakes.NewFakeLLM("ok"))
	assert.NoError(t, svc.Ping(context.Background()))
}

package ai

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/IMBotPlatform/IMBotChat/pkg/metrics"
)

// memorySession 是 MemoryStore 中单个会话的状态。
type memorySession struct {
	id         string
	transcript []string
	lastAccess time.Time
}

// MemoryStore 提供基于内存的 SessionStore 实现；进程重启即丢失。
// maxSessions>0 时按最近访问淘汰（LRU），ttl>0 时空闲超时的会话视为不存在。
type MemoryStore struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	maxSessions int
	ttl         time.Duration
	sessions    map[string]*list.Element
	order       *list.List // front = 最近访问
}

// MemoryOption 定制 MemoryStore。
type MemoryOption func(*MemoryStore)

// WithClock 注入时钟，测试时可使用 clockwork.NewFakeClock。
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// WithMaxSessions 设置会话数上限，0 表示不限制。
func WithMaxSessions(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxSessions = n
	}
}

// WithTTL 设置会话空闲过期时间，0 表示永不过期。
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// NewMemoryStore 创建内存存储实例。
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		clock:    clockwork.NewRealClock(),
		sessions: make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// lookup 返回未过期的会话并刷新访问时间；调用方需持有锁。
func (s *MemoryStore) lookup(sessionID string) *memorySession {
	el, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess := el.Value.(*memorySession)
	now := s.clock.Now()
	if s.expired(sess, now) {
		s.remove(el)
		return nil
	}
	sess.lastAccess = now
	s.order.MoveToFront(el)
	return sess
}

func (s *MemoryStore) expired(sess *memorySession, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastAccess) >= s.ttl
}

func (s *MemoryStore) remove(el *list.Element) {
	sess := el.Value.(*memorySession)
	s.order.Remove(el)
	delete(s.sessions, sess.id)
	metrics.SessionsActive.Set(float64(len(s.sessions)))
}

// GetHistory 返回会话历史的副本；未知会话返回空切片。
func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		return []string{}, nil
	}
	out := make([]string, len(sess.transcript))
	copy(out, sess.transcript)
	return out, nil
}

// AppendTurn 追加一轮对话；首次引用时创建会话，超出上限时淘汰最久未访问的会话。
func (s *MemoryStore) AppendTurn(ctx context.Context, sessionID, userInput, aiOutput string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		sess = &memorySession{id: sessionID, lastAccess: s.clock.Now()}
		s.sessions[sessionID] = s.order.PushFront(sess)
	}
	sess.transcript = append(sess.transcript, UserLine(userInput), AILine(aiOutput))

	for s.maxSessions > 0 && len(s.sessions) > s.maxSessions {
		s.remove(s.order.Back())
	}
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	return nil
}

// Recent 返回最近 n 条历史。
func (s *MemoryStore) Recent(ctx context.Context, sessionID string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		return []string{}, nil
	}
	return Tail(sess.transcript, n), nil
}

// ClearHistory 删除会话。
func (s *MemoryStore) ClearHistory(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.sessions[sessionID]; ok {
		s.remove(el)
	}
	return nil
}

// Len 返回当前保存的会话数（含尚未清理的过期会话）。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune 清理所有已过期会话，返回清理数量。
func (s *MemoryStore) Prune() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	// 链表尾部是最久未访问的会话，遇到未过期的即可停止。
	for el := s.order.Back(); el != nil; {
		sess := el.Value.(*memorySession)
		if !s.expired(sess, now) {
			break
		}
		prev := el.Prev()
		s.remove(el)
		removed++
		el = prev
	}
	return removed
}

// RunJanitor 按 interval 周期调用 Prune，直到 ctx 取消。
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Prune()
		}
	}
}

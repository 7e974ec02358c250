package ai

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	roleUser = "user"
	roleAI   = "ai"
)

// storedMessage 是用于 JSON 序列化的中间结构
type storedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// line 还原为历史中的文本行。
func (m storedMessage) line() string {
	switch m.Role {
	case roleUser:
		return UserLine(m.Content)
	case roleAI:
		return AILine(m.Content)
	default:
		return fmt.Sprintf("[%s]: %s", m.Role, m.Content)
	}
}

// FileStore 实现了基于文件系统的 SessionStore (JSONL 格式)。
// 每个 Session 的历史记录存储在单独的文件中，每行一个 JSON 对象。
type FileStore struct {
	baseDir string
	logger  zerolog.Logger
	mu      sync.RWMutex // 全局锁，保护文件系统操作并发安全
}

// FileOption 定制 FileStore。
type FileOption func(*FileStore)

// WithFileLogger 注入日志记录器，用于报告损坏的历史行。
func WithFileLogger(l zerolog.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = l
	}
}

// NewFileStore 创建一个新的 FileStore。
// baseDir: 存储历史记录的目录路径。
func NewFileStore(baseDir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	s := &FileStore{
		baseDir: baseDir,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// getFilePath 返回指定 SessionID 的文件路径。
// 文件名是 SessionID 的 URL-safe base64 编码：一一对应，且不含路径分隔符。
func (s *FileStore) getFilePath(sessionID string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(sessionID))
	return filepath.Join(s.baseDir, name+".jsonl")
}

// appendToFile 追加若干行 JSON 记录到文件
func (s *FileStore) appendToFile(path string, msgs ...storedMessage) error {
	// 以追加模式打开文件，如果不存在则创建
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// json.Encoder 默认会在末尾加 \n，符合 JSONL 规范
	encoder := json.NewEncoder(f)
	encoder.SetEscapeHTML(false) // 保持原始字符，不转义 <, >, &
	for _, msg := range msgs {
		if err := encoder.Encode(msg); err != nil {
			return err
		}
	}
	return nil
}

// readFile 逐行读取文件获取历史记录；调用方需持有读锁。
func (s *FileStore) readFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := []string{}
	scanner := bufio.NewScanner(f)

	// 增加 Buffer 大小以支持超长单行（默认 64KB 可能不够）
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 5*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var sm storedMessage
		if err := json.Unmarshal(raw, &sm); err != nil {
			// 遇到坏行，记录警告并跳过，保证最大容错性
			s.logger.Warn().Err(err).Str("path", path).Int("line", lineNum).Msg("skipping malformed history line")
			continue
		}
		lines = append(lines, sm.line())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning history file: %w", err)
	}
	return lines, nil
}

// GetHistory 返回会话的完整历史。
func (s *FileStore) GetHistory(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readFile(s.getFilePath(sessionID))
}

// AppendTurn 追加一轮用户/AI 消息（一次写入两行）。
func (s *FileStore) AppendTurn(ctx context.Context, sessionID, userInput, aiOutput string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendToFile(s.getFilePath(sessionID),
		storedMessage{Role: roleUser, Content: userInput},
		storedMessage{Role: roleAI, Content: aiOutput},
	)
}

// Recent 返回最近 n 条历史。
func (s *FileStore) Recent(ctx context.Context, sessionID string, n int) ([]string, error) {
	history, err := s.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Tail(history, n), nil
}

// ClearHistory 清空会话历史（删除文件）
func (s *FileStore) ClearHistory(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.getFilePath(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

package ai

import (
	"strings"

	"github.com/google/uuid"
)

const (
	userPrefix = "User: "
	aiPrefix   = "AI: "
)

// ResolveSessionID 返回调用方提供的会话 ID；为空时生成新的 UUID。
// 不检查与已有会话的冲突。
func ResolveSessionID(provided string) string {
	if provided != "" {
		return provided
	}
	return uuid.NewString()
}

// UserLine 返回写入历史的用户行。
func UserLine(input string) string { return userPrefix + input }

// AILine 返回写入历史的 AI 行。
func AILine(output string) string { return aiPrefix + output }

// BuildPrompt 将最近 window 条历史与当前输入拼接为模型 prompt。
//
//	history[-window:]...
//	User: {input}
//	AI:
func BuildPrompt(history []string, input string, window int) string {
	lines := append(Tail(history, window), UserLine(input)+"\nAI:")
	return strings.Join(lines, "\n")
}

// Tail 返回 entries 的最后 n 项（n<=0 时为空）。结果是拷贝。
func Tail(entries []string, n int) []string {
	if n <= 0 || len(entries) == 0 {
		return []string{}
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]string, n)
	copy(out, entries[len(entries)-n:])
	return out
}

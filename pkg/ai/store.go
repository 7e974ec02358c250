package ai

import (
	"context"
)

// SessionStore manages the persistence of chat transcripts.
// A transcript is an ordered list of lines such as "User: hi" and "AI: hello".
type SessionStore interface {
	// GetHistory retrieves the full transcript for a given session.
	// Unknown sessions yield an empty transcript and no error.
	GetHistory(ctx context.Context, sessionID string) ([]string, error)

	// AppendTurn appends the user line followed by the AI line.
	AppendTurn(ctx context.Context, sessionID, userInput, aiOutput string) error

	// Recent returns the last n transcript entries, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]string, error)

	// ClearHistory clears the session history.
	ClearHistory(ctx context.Context, sessionID string) error
}

// Pinger 由可以做健康检查的存储实现（例如 Redis）。
type Pinger interface {
	Ping(ctx context.Context) error
}

package model

import (
	"context"
	"time"
)

// TurnRole distinguishes user and assistant turns.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// TurnMetadata holds artifacts attached to an assistant turn after the
// workflow produced them.
type TurnMetadata struct {
	ChartPaths []string        `json:"chart_paths,omitempty"`
	SavedPath  string          `json:"saved_path,omitempty"`
	Analysis   *AnalysisResult `json:"analysis,omitempty"`
}

// Turn is one user message or one assistant response. Immutable after
// creation except for attaching metadata when it becomes available.
type Turn struct {
	Role      TurnRole      `json:"role"`
	Content   string        `json:"content"`
	Metadata  *TurnMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// SessionHistory represents loaded session data with metadata.
type SessionHistory struct {
	SessionID string
	Turns     []*Turn
}

// SessionInfo is a lightweight listing entry for stored sessions.
type SessionInfo struct {
	SessionID string
	Preview   string
	TurnCount int
}

// SessionRepository persists the append-only turn sequence per session away
// from the workflow core. The graph only reads a snapshot passed in at
// invocation time.
type SessionRepository interface {
	// AppendTurn appends a turn to the session's history.
	AppendTurn(ctx context.Context, sessionID string, turn *Turn) error

	// LoadHistory retrieves the turn history for a session.
	LoadHistory(ctx context.Context, sessionID string) (*SessionHistory, error)

	// ClearHistory removes all history for a session.
	ClearHistory(ctx context.Context, sessionID string) error

	// TurnCount returns the number of stored turns in the session.
	TurnCount(ctx context.Context, sessionID string) (int, error)

	// ListSessions returns up to limit recent sessions with previews.
	ListSessions(ctx context.Context, limit int) ([]SessionInfo, error)
}

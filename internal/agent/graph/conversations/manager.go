// Package conversations bridges the session store and the workflow graph:
// it snapshots history into LLM messages before a run and records the
// finished turn pair afterwards.
package conversations

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core-v1/server/internal/agent/model"
)

type Manager struct {
	repo     model.SessionRepository
	maxTurns int
}

func NewManager(repo model.SessionRepository, cfg model.SessionConfig) *Manager {
	return &Manager{
		repo:     repo,
		maxTurns: cfg.History.MaxTurns,
	}
}

// Snapshot loads a session's recent turns as chat messages plus the most
// recent stored analysis payload, which enables follow-up requests like
// "save that as PDF" to bypass the agents.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) ([]*schema.Message, *model.AnalysisResult, error) {
	history, err := m.repo.LoadHistory(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	turns := trimTail(history.Turns, m.maxTurns)

	messages := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		if t == nil || t.Content == "" {
			continue
		}
		switch t.Role {
		case model.TurnRoleUser:
			messages = append(messages, schema.UserMessage(t.Content))
		case model.TurnRoleAssistant:
			messages = append(messages, schema.AssistantMessage(t.Content, nil))
		}
	}

	return messages, latestAnalysis(history.Turns), nil
}

// RecordTurn persists the question/answer pair for one finished workflow
// run, attaching produced artifacts to the assistant turn.
func (m *Manager) RecordTurn(ctx context.Context, sessionID, question, answer string, meta *model.TurnMetadata) error {
	now := time.Now()
	if err := m.repo.AppendTurn(ctx, sessionID, &model.Turn{
		Role:      model.TurnRoleUser,
		Content:   question,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	return m.repo.AppendTurn(ctx, sessionID, &model.Turn{
		Role:      model.TurnRoleAssistant,
		Content:   answer,
		Metadata:  meta,
		CreatedAt: now,
	})
}

// latestAnalysis walks the history backwards for the newest assistant turn
// that carried an analysis payload.
func latestAnalysis(turns []*model.Turn) *model.AnalysisResult {
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t == nil || t.Role != model.TurnRoleAssistant || t.Metadata == nil {
			continue
		}
		if t.Metadata.Analysis != nil {
			return t.Metadata.Analysis
		}
	}
	return nil
}

func trimTail(turns []*model.Turn, maxTurns int) []*model.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}

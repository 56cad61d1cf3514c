// Package triage holds the lightweight LLM-routing agents that sit in front
// of the domain agents: the request classifier, the routing supervisor, the
// general-conversation responder, and the retry-path query rewriter. All of
// them are contractually non-throwing; LLM failures degrade to conservative
// defaults.
package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core-v1/server/internal/agent/graph/prompts"
	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

const (
	// NotFinanceMessage is the canned reply for out-of-domain questions.
	NotFinanceMessage = "경제, 금융관련 질문이 아닙니다. 주식, 재무, 경제 관련 질문을 해주시면 도움을 드릴 수 있습니다."
	// ClarifyMessage asks the user for a more specific question.
	ClarifyMessage = "질문을 좀 더 구체적으로 말씀해 주시겠어요?"

	generalFallbackMessage = "안녕하세요! 저는 금융 AI 어시스턴트입니다. 주식 분석, 재무 지표, 보고서 작성 등을 도와드릴 수 있어요."
)

type Triage struct {
	gw llm.Gateway
}

func New(gw llm.Gateway) *Triage {
	return &Triage{gw: gw}
}

// Classify labels a question as finance, general conversation, or
// out-of-domain. An LLM failure is logged and degrades to not_finance with a
// generic apology rather than propagating.
func (t *Triage) Classify(ctx context.Context, question string, history []*schema.Message) model.ClassifyResult {
	system, err := prompts.RenderClassifierSystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("classifier prompt render failed")
		return model.ClassifyResult{Label: model.LabelNotFinance, Message: NotFinanceMessage}
	}

	var out struct {
		Label string `json:"label"`
	}
	msgs := withHistory(system, history, question)
	if err := t.gw.CompleteStructured(ctx, msgs, &out); err != nil {
		logx.Error().Err(err).Msg("classifier LLM call failed")
		return model.ClassifyResult{Label: model.LabelNotFinance, Message: NotFinanceMessage}
	}

	switch model.ClassifyLabel(strings.TrimSpace(out.Label)) {
	case model.LabelFinance:
		return model.ClassifyResult{Label: model.LabelFinance}
	case model.LabelGeneralConv:
		return model.ClassifyResult{Label: model.LabelGeneralConv}
	default:
		return model.ClassifyResult{Label: model.LabelNotFinance, Message: NotFinanceMessage}
	}
}

// Route selects the domain agent for an in-domain question. Anything the
// model cannot place, and any LLM failure, maps to AgentNone so the general
// conversation terminal still produces a helpful reply.
func (t *Triage) Route(ctx context.Context, question string, history []*schema.Message) model.AgentChoice {
	system, err := prompts.RenderSupervisorSystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("supervisor prompt render failed")
		return model.AgentNone
	}

	var out struct {
		Agent string `json:"agent"`
	}
	msgs := withHistory(system, history, question)
	if err := t.gw.CompleteStructured(ctx, msgs, &out); err != nil {
		logx.Error().Err(err).Msg("supervisor LLM call failed")
		return model.AgentNone
	}

	switch model.AgentChoice(strings.TrimSpace(out.Agent)) {
	case model.AgentFinancialAnalyst:
		return model.AgentFinancialAnalyst
	case model.AgentVectorSearch:
		return model.AgentVectorSearch
	default:
		return model.AgentNone
	}
}

// Respond handles greetings, meta-questions and other general conversation.
func (t *Triage) Respond(ctx context.Context, question string, history []*schema.Message) string {
	system, err := prompts.RenderGeneralConversationSystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("general conversation prompt render failed")
		return generalFallbackMessage
	}

	reply, err := t.gw.Complete(ctx, withHistory(system, history, question))
	if err != nil {
		logx.Error().Err(err).Msg("general conversation LLM call failed")
		return generalFallbackMessage
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return generalFallbackMessage
	}
	return reply
}

// Rewrite rephrases a failed query for the retry loop. On LLM failure it
// degrades to asking the user for detail, which terminates the loop.
func (t *Triage) Rewrite(ctx context.Context, originalQuery string, failureReason model.FailureReason, history []*schema.Message) model.RewriteResult {
	system, err := prompts.RenderRewriteQuerySystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("rewrite prompt render failed")
		return model.RewriteResult{NeedsUserInput: true, RequestForDetail: ClarifyMessage}
	}

	human := fmt.Sprintf("실패 원인: %s\n원본 질문: %s", failureReason, originalQuery)

	var out model.RewriteResult
	msgs := withHistory(system, history, human)
	if err := t.gw.CompleteStructured(ctx, msgs, &out); err != nil {
		logx.Error().Err(err).Msg("rewrite LLM call failed")
		return model.RewriteResult{NeedsUserInput: true, RequestForDetail: ClarifyMessage}
	}

	if !out.NeedsUserInput && strings.TrimSpace(out.RewrittenQuery) == "" {
		// nothing usable came back; fall back to the original question
		out.RewrittenQuery = originalQuery
	}
	if out.NeedsUserInput && strings.TrimSpace(out.RequestForDetail) == "" {
		out.RequestForDetail = ClarifyMessage
	}
	return out
}

// withHistory builds the message list: system prompt, prior turns, then the
// current human input.
func withHistory(system string, history []*schema.Message, human string) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, history...)
	msgs = append(msgs, schema.UserMessage(human))
	return msgs
}

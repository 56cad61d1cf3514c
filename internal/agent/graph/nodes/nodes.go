// Package nodes defines the workflow graph's node lambdas and branch
// conditions. Every node takes the shared WorkflowState, mutates it, and
// passes it on; branch conditions only read the Route field the previous
// node wrote.
package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/finsight-core-v1/server/internal/agent/analyst"
	"github.com/finsight-core-v1/server/internal/agent/heuristics"
	"github.com/finsight-core-v1/server/internal/agent/model"
	"github.com/finsight-core-v1/server/internal/agent/quality"
	"github.com/finsight-core-v1/server/internal/agent/report"
	"github.com/finsight-core-v1/server/internal/agent/triage"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

// Graph node names.
const (
	NodeRequestAnalyst   = "request_analyst"
	NodeSupervisor       = "supervisor"
	NodeFinancialAnalyst = "financial_analyst"
	NodeRAGAgent         = "rag_agent"
	NodeGeneralConv      = "general_conversation"
	NodeReportGenerator  = "report_generator"
	NodeQualityEvaluator = "quality_evaluator"
	NodeQueryRewriter    = "query_rewriter"
)

const (
	// rewriteNotice is the transitional answer set while a retry runs; the
	// next pass through the report generator overwrites it.
	rewriteNotice = "질문을 다시 정제했습니다. 재시도합니다."

	apologySystemError = "죄송합니다. 시스템 오류로 인해 답변을 드리지 못했습니다. 잠시 후 다시 시도해 주세요."
	apologyNoAnswer    = "죄송합니다. 질문에 대한 적절한 답변을 찾지 못했습니다. 질문을 좀 더 구체적으로 해주시면 도움이 될 것 같습니다."

	emptyQuestionMessage = "질문이 비어 있어 답변을 드릴 수 없습니다."
)

// NewInputConverterNode turns the public QueryInput into the initial
// WorkflowState.
func NewInputConverterNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (*model.WorkflowState, error) {
		return &model.WorkflowState{
			SessionID: in.SessionID,
			Question:  strings.TrimSpace(in.Question),
			Messages:  in.PreviousMessages,
			Analysis:  in.PreviousAnalysis,
			Route:     model.RouteRequestAnalyst,
		}, nil
	})
}

// NewRequestAnalystNode classifies the question and decides the first hop.
// An empty question terminates with a canned answer, and a follow-up request
// that references a prior analysis bypasses the agents and goes straight to
// the report generator.
func NewRequestAnalystNode(tr *triage.Triage, followUp heuristics.Classifier) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		if s.Question == "" {
			s.Answer = emptyQuestionMessage
			s.QualityPassed = false
			s.Route = model.RouteEnd
			return s, nil
		}

		if followUp.Matches(s.Question) && s.Analysis != nil && s.Analysis.AnalysisType != model.AnalysisError {
			logx.Debug().Str("session_id", s.SessionID).Msg("follow-up detected, bypassing agents")
			if s.Analysis.AnalysisType == model.AnalysisRAG {
				s.RequestType = model.RequestTypeRAG
			} else {
				s.RequestType = model.RequestTypeFinancialAnalyst
			}
			s.Route = model.RouteReportGenerator
			return s, nil
		}

		result := tr.Classify(ctx, s.Question, s.Messages)
		logx.Debug().Str("session_id", s.SessionID).Str("label", string(result.Label)).Msg("request classified")

		switch result.Label {
		case model.LabelFinance:
			s.Route = model.RouteSupervisor
		case model.LabelGeneralConv:
			s.Route = model.RouteGeneralConv
		default:
			s.Answer = result.Message
			s.QualityPassed = true
			s.Route = model.RouteEnd
		}
		return s, nil
	})
}

// NewSupervisorNode picks the domain agent for an in-domain question.
func NewSupervisorNode(tr *triage.Triage) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		choice := tr.Route(ctx, s.Question, s.Messages)
		logx.Debug().Str("session_id", s.SessionID).Str("agent", string(choice)).Msg("supervisor routed")

		switch choice {
		case model.AgentVectorSearch:
			s.RequestType = model.RequestTypeRAG
			s.Route = model.RouteRAG
		case model.AgentFinancialAnalyst:
			s.RequestType = model.RequestTypeFinancialAnalyst
			s.Route = model.RouteFinancialAnalyst
		default:
			// nothing fits; answer conversationally rather than failing
			s.Route = model.RouteGeneralConv
		}
		return s, nil
	})
}

// NewGeneralConvNode is the terminal for greetings and capability questions.
func NewGeneralConvNode(tr *triage.Triage) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		s.Answer = tr.Respond(ctx, s.Question, s.Messages)
		s.QualityPassed = true
		s.Route = model.RouteEnd
		return s, nil
	})
}

// NewFinancialAnalystNode runs the full analysis pipeline.
func NewFinancialAnalystNode(an *analyst.Analyst) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		s.Analysis = an.Analyze(ctx, s.Question)
		s.RequestType = model.RequestTypeFinancialAnalyst
		s.Route = model.RouteReportGenerator
		return s, nil
	})
}

// NewRAGAgentNode answers from the document index, falling back to the full
// analysis pipeline when retrieval finds nothing.
func NewRAGAgentNode(an *analyst.Analyst) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		result, sources, found := an.Retrieve(ctx, s.Question)
		if !found {
			logx.Debug().Str("session_id", s.SessionID).Msg("no documents found, falling back to analyst")
			s.Analysis = an.Analyze(ctx, s.Question)
			s.RequestType = model.RequestTypeFinancialAnalyst
			s.Route = model.RouteReportGenerator
			return s, nil
		}
		s.Analysis = result
		s.RAGSources = sources
		s.RequestType = model.RequestTypeRAG
		s.Route = model.RouteReportGenerator
		return s, nil
	})
}

// NewReportGeneratorNode composes the user-facing answer from the analysis.
func NewReportGeneratorNode(composer *report.Composer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		var previousCharts []string
		if s.Analysis != nil {
			previousCharts = s.Analysis.Charts
		}

		result := composer.Compose(ctx, s.Question, s.Analysis, previousCharts)

		var b strings.Builder
		b.WriteString(result.Report)
		if s.RequestType == model.RequestTypeRAG && len(s.RAGSources) > 0 {
			b.WriteString("\n\n출처:\n")
			b.WriteString(strings.Join(s.RAGSources, "\n"))
		}
		for _, chart := range result.Charts {
			fmt.Fprintf(&b, "\n\n차트 생성 완료: %s", chart)
		}
		if result.SavedPath != "" {
			fmt.Fprintf(&b, "\n\n보고서가 저장되었습니다: %s", result.SavedPath)
		}
		s.Answer = b.String()
		s.CurrentCharts = result.Charts
		s.CurrentSavedFile = result.SavedPath

		// remember drawn charts so a later "save as pdf" can embed them
		if s.Analysis != nil && len(result.Charts) > 0 {
			s.Analysis.Charts = append(s.Analysis.Charts, result.Charts...)
		}

		s.Route = model.RouteQualityEval
		return s, nil
	})
}

// NewQualityEvaluatorNode scores the answer and applies the retry policy: a
// pass resets all retry bookkeeping, a repeated identical failure reason or
// an exhausted retry budget terminates with an apology, anything else goes
// to the rewriter.
func NewQualityEvaluatorNode(ev *quality.Evaluator, cfg model.WorkflowConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		result := ev.Evaluate(ctx, s.Question, s.Answer)
		s.Quality = result

		if result.Passed() {
			s.QualityPassed = true
			s.Retries = 0
			s.PreviousFailureReason = model.FailureNone
			s.ConsecutiveSameFailures = 0
			s.Route = model.RouteEnd
			return s, nil
		}

		reason := result.FailureReason
		if reason != model.FailureNone && reason == s.PreviousFailureReason {
			s.ConsecutiveSameFailures++
		} else {
			s.ConsecutiveSameFailures = 1
		}
		s.PreviousFailureReason = reason

		logx.Debug().
			Str("session_id", s.SessionID).
			Str("failure_reason", string(reason)).
			Int("retries", s.Retries).
			Int("consecutive_same_failures", s.ConsecutiveSameFailures).
			Msg("quality evaluation failed")

		if s.Retries >= cfg.RetryMax || s.ConsecutiveSameFailures >= cfg.SameFailureMax {
			s.Answer = terminalApology(reason)
			s.QualityPassed = false
			s.Route = model.RouteEnd
			return s, nil
		}

		s.Route = model.RouteRetry
		return s, nil
	})
}

// NewQueryRewriterNode rewrites the failed question for another attempt, or
// terminates asking the user for detail when the rewriter decides the
// question cannot be salvaged.
func NewQueryRewriterNode(tr *triage.Triage) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.WorkflowState) (*model.WorkflowState, error) {
		result := tr.Rewrite(ctx, s.Question, s.PreviousFailureReason, s.Messages)

		if result.NeedsUserInput {
			s.Answer = result.RequestForDetail
			s.QualityPassed = false
			s.Route = model.RouteEnd
			return s, nil
		}

		logx.Debug().
			Str("session_id", s.SessionID).
			Str("rewritten", result.RewrittenQuery).
			Msg("query rewritten, retrying")

		s.Question = result.RewrittenQuery
		s.Retries++
		s.Answer = rewriteNotice
		s.Route = model.RouteRequestAnalyst
		return s, nil
	})
}

// NewRouteCondition builds a branch condition that maps the state's Route to
// a node name, constrained to the branch's allowed targets.
func NewRouteCondition(allowed ...string) func(context.Context, *model.WorkflowState) (string, error) {
	permitted := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		permitted[a] = true
	}
	return func(ctx context.Context, s *model.WorkflowState) (string, error) {
		target := routeTarget(s.Route)
		if !permitted[target] {
			return "", fmt.Errorf("route %q not reachable from this branch", s.Route)
		}
		return target, nil
	}
}

// routeTarget maps a Route value to the graph node name it selects.
func routeTarget(r model.Route) string {
	switch r {
	case model.RouteRequestAnalyst:
		return NodeRequestAnalyst
	case model.RouteSupervisor:
		return NodeSupervisor
	case model.RouteFinancialAnalyst:
		return NodeFinancialAnalyst
	case model.RouteRAG:
		return NodeRAGAgent
	case model.RouteGeneralConv:
		return NodeGeneralConv
	case model.RouteReportGenerator:
		return NodeReportGenerator
	case model.RouteQualityEval:
		return NodeQualityEvaluator
	case model.RouteRetry:
		return NodeQueryRewriter
	default:
		return compose.END
	}
}

func terminalApology(reason model.FailureReason) string {
	if reason == model.FailureError {
		return apologySystemError
	}
	return apologyNoAnswer
}

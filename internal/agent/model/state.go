package model

import (
	"github.com/cloudwego/eino/schema"
)

// Route is the next-hop directive written by the node that just ran and read
// immediately by the graph's conditional edges.
type Route string

const (
	RouteEnd              Route = "end"
	RouteRequestAnalyst   Route = "request_analyst"
	RouteSupervisor       Route = "supervisor"
	RouteFinancialAnalyst Route = "financial_analyst"
	RouteRAG              Route = "rag"
	RouteGeneralConv      Route = "general_conversation"
	RouteReportGenerator  Route = "report_generator"
	RouteQualityEval      Route = "quality_evaluator"
	RouteRetry            Route = "retry"
)

// RequestType disambiguates which branch the report generator takes.
type RequestType string

const (
	RequestTypeRAG              RequestType = "rag"
	RequestTypeFinancialAnalyst RequestType = "financial_analyst"
)

// FailureReason is the quality evaluator's failure taxonomy.
type FailureReason string

const (
	FailureNone       FailureReason = ""
	FailureEmpty      FailureReason = "empty"
	FailureError      FailureReason = "error"
	FailureLowQuality FailureReason = "low_quality"
)

// WorkflowState is the single record threaded through every graph node while
// one question is processed. It is mutated only by node lambdas; eino runs
// the graph sequentially so no synchronization is needed within a traversal.
type WorkflowState struct {
	SessionID string
	// Question is the current, possibly rewritten, query. Only the retry
	// path replaces it.
	Question string
	// Answer is the current best answer; terminal nodes overwrite it.
	Answer      string
	Route       Route
	RequestType RequestType

	// Analysis is the structured payload consumed by the report generator.
	// It is produced by exactly one upstream node per turn and survives a
	// retry unchanged when no new agent ran.
	Analysis *AnalysisResult

	Quality       *QualityResult
	QualityPassed bool

	// Retry-loop bookkeeping. ConsecutiveSameFailures counts only strictly
	// consecutive occurrences of the identical failure reason; a pass resets
	// all three fields.
	Retries                 int
	PreviousFailureReason   FailureReason
	ConsecutiveSameFailures int

	// Messages is a read-only snapshot of prior conversation turns, owned by
	// the caller and passed to LLM calls as context.
	Messages []*schema.Message

	// Artifacts produced by the current turn only, never inherited from
	// history.
	RAGSources       []string
	CurrentCharts    []string
	CurrentSavedFile string
}

// QueryInput is the public input for one run of the workflow graph.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`

	// PreviousMessages is the caller-owned history snapshot.
	PreviousMessages []*schema.Message `json:"-"`
	// PreviousAnalysis is the most recent stored analysis payload, if any,
	// enabling follow-up requests like "save that as PDF".
	PreviousAnalysis *AnalysisResult `json:"-"`
}

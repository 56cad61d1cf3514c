package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/finsight-core-v1/server/internal/agent/analyst"
	"github.com/finsight-core-v1/server/internal/agent/graph/conversations"
	"github.com/finsight-core-v1/server/internal/agent/graph/nodes"
	"github.com/finsight-core-v1/server/internal/agent/graph/observers"
	"github.com/finsight-core-v1/server/internal/agent/heuristics"
	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
	"github.com/finsight-core-v1/server/internal/agent/quality"
	"github.com/finsight-core-v1/server/internal/agent/report"
	"github.com/finsight-core-v1/server/internal/agent/tools"
	"github.com/finsight-core-v1/server/internal/agent/triage"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

// Result is the outcome of one workflow run.
type Result struct {
	Answer        string
	QualityPassed bool
	Retries       int
	Charts        []string
	SavedPath     string
}

// Runner executes the workflow for one question at a time, handling history
// snapshotting and turn persistence around the graph invocation.
type Runner interface {
	Ask(ctx context.Context, sessionID, question string) (*Result, error)
}

// Config holds everything needed to compose the workflow end-to-end.
type Config struct {
	APIKey  string
	BaseURL string

	LLM      model.LLMConfig
	Session  model.SessionConfig
	Workflow model.WorkflowConfig
	Tool     model.ToolConfig

	Repo     model.SessionRepository
	Market   tools.MarketData
	Index    tools.DocumentIndex
	Renderer tools.Renderer
}

// Deps are the resolved collaborators the graph nodes close over. Tests
// substitute fakes here; production wiring goes through BuildWorkflow.
type Deps struct {
	Gateway  llm.Gateway
	Market   tools.MarketData
	Index    tools.DocumentIndex
	Renderer tools.Renderer
	Workflow model.WorkflowConfig
	Tool     model.ToolConfig
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.WorkflowState]
	manager  *conversations.Manager
}

// BuildWorkflow constructs the LLM gateway, the conversation manager, and
// the compiled graph, returning a ready Runner.
func BuildWorkflow(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("session repo is nil")
	}
	if cfg.Market == nil || cfg.Index == nil || cfg.Renderer == nil {
		return nil, fmt.Errorf("tool collaborators are not properly initialized")
	}

	gw, err := llm.NewGeminiGateway(ctx, cfg.APIKey, cfg.BaseURL, cfg.LLM)
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, Deps{
		Gateway:  gw,
		Market:   cfg.Market,
		Index:    cfg.Index,
		Renderer: cfg.Renderer,
		Workflow: cfg.Workflow,
		Tool:     cfg.Tool,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("workflow graph built")
	return &graphRunner{
		runnable: runnable,
		manager:  conversations.NewManager(cfg.Repo, cfg.Session),
	}, nil
}

func (r *graphRunner) Ask(ctx context.Context, sessionID, question string) (*Result, error) {
	messages, prevAnalysis, err := r.manager.Snapshot(ctx, sessionID)
	if err != nil {
		// answering still works without history, so degrade instead of failing
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("history snapshot failed, continuing without context")
		messages, prevAnalysis = nil, nil
	}

	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		SessionID:        sessionID,
		Question:         question,
		PreviousMessages: messages,
		PreviousAnalysis: prevAnalysis,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("workflow produced no state")
	}

	meta := &model.TurnMetadata{
		ChartPaths: out.CurrentCharts,
		SavedPath:  out.CurrentSavedFile,
		Analysis:   out.Analysis,
	}
	if err := r.manager.RecordTurn(ctx, sessionID, question, out.Answer, meta); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to persist turn")
	}

	return &Result{
		Answer:        out.Answer,
		QualityPassed: out.QualityPassed,
		Retries:       out.Retries,
		Charts:        out.CurrentCharts,
		SavedPath:     out.CurrentSavedFile,
	}, nil
}

// GraphBuilder handles the construction of the workflow graph.
type GraphBuilder struct {
	deps  Deps
	graph *compose.Graph[model.QueryInput, *model.WorkflowState]
}

// BuildGraph constructs and compiles the workflow graph from its resolved
// collaborators.
func BuildGraph(ctx context.Context, deps Deps) (compose.Runnable[model.QueryInput, *model.WorkflowState], error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("llm gateway is nil")
	}
	if deps.Market == nil || deps.Index == nil || deps.Renderer == nil {
		return nil, fmt.Errorf("tool collaborators are not properly initialized")
	}
	deps.Workflow.Normalize()

	b := &GraphBuilder{
		deps:  deps,
		graph: compose.NewGraph[model.QueryInput, *model.WorkflowState](),
	}

	b.addNodes()
	b.addEdges()
	if err := b.addBranches(); err != nil {
		return nil, err
	}
	return b.compile(ctx)
}

const nodeInputConverter = "input_converter"

func (b *GraphBuilder) addNodes() {
	tr := triage.New(b.deps.Gateway)
	an := analyst.New(b.deps.Gateway, b.deps.Market, b.deps.Index, b.deps.Tool)
	composer := report.New(b.deps.Gateway, b.deps.Renderer, b.deps.Tool, b.deps.Workflow)
	ev := quality.New(b.deps.Gateway, b.deps.Workflow)

	b.graph.AddLambdaNode(nodeInputConverter, nodes.NewInputConverterNode())
	b.graph.AddLambdaNode(nodes.NodeRequestAnalyst, nodes.NewRequestAnalystNode(tr, heuristics.NewFollowUpKeywords()))
	b.graph.AddLambdaNode(nodes.NodeSupervisor, nodes.NewSupervisorNode(tr))
	b.graph.AddLambdaNode(nodes.NodeFinancialAnalyst, nodes.NewFinancialAnalystNode(an))
	b.graph.AddLambdaNode(nodes.NodeRAGAgent, nodes.NewRAGAgentNode(an))
	b.graph.AddLambdaNode(nodes.NodeGeneralConv, nodes.NewGeneralConvNode(tr))
	b.graph.AddLambdaNode(nodes.NodeReportGenerator, nodes.NewReportGeneratorNode(composer))
	b.graph.AddLambdaNode(nodes.NodeQualityEvaluator, nodes.NewQualityEvaluatorNode(ev, b.deps.Workflow))
	b.graph.AddLambdaNode(nodes.NodeQueryRewriter, nodes.NewQueryRewriterNode(tr))
}

func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodeInputConverter},
		{nodeInputConverter, nodes.NodeRequestAnalyst},
		{nodes.NodeFinancialAnalyst, nodes.NodeReportGenerator},
		{nodes.NodeRAGAgent, nodes.NodeReportGenerator},
		{nodes.NodeReportGenerator, nodes.NodeQualityEvaluator},
		{nodes.NodeGeneralConv, compose.END},
	}
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

func (b *GraphBuilder) addBranches() error {
	type branch struct {
		from    string
		targets []string
	}
	branches := []branch{
		{nodes.NodeRequestAnalyst, []string{nodes.NodeSupervisor, nodes.NodeGeneralConv, nodes.NodeReportGenerator, compose.END}},
		{nodes.NodeSupervisor, []string{nodes.NodeFinancialAnalyst, nodes.NodeRAGAgent, nodes.NodeGeneralConv}},
		{nodes.NodeQualityEvaluator, []string{nodes.NodeQueryRewriter, compose.END}},
		// rewriter either re-enters the pipeline with a refined question or
		// ends asking the user for detail
		{nodes.NodeQueryRewriter, []string{nodes.NodeRequestAnalyst, compose.END}},
	}

	for _, br := range branches {
		targets := make(map[string]bool, len(br.targets))
		for _, t := range br.targets {
			targets[t] = true
		}
		gb := compose.NewGraphBranch(nodes.NewRouteCondition(br.targets...), targets)
		if err := b.graph.AddBranch(br.from, gb); err != nil {
			logx.Error().Err(err).Str("from", br.from).Msg("error adding branch")
			return fmt.Errorf("add branch from %s: %w", br.from, err)
		}
	}
	return nil
}

func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.WorkflowState], error) {
	// Bound total steps so a misbehaving retry loop cannot spin. Two full
	// retry cycles plus the longest straight path fit comfortably.
	maxSteps := 12 + b.deps.Workflow.RetryMax*8
	if maxSteps < 24 {
		maxSteps = 24
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Msg("graph compiled")
	return runnable, nil
}

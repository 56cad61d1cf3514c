// Package prompts embeds the system prompt templates used by the workflow
// agents and renders them through the Eino prompt component so prompt
// callbacks fire for observability.
package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/classifier.txt
var classifierSystem string

//go:embed template/supervisor.txt
var supervisorSystem string

//go:embed template/general_conversation.txt
var generalConversationSystem string

//go:embed template/quality_rubric.txt
var qualityRubricSystem string

//go:embed template/rewrite_query.txt
var rewriteQuerySystem string

//go:embed template/plan_report.txt
var planReportSystem string

//go:embed template/extract_companies.txt
var extractCompaniesSystem string

//go:embed template/analyze_stock.txt
var analyzeStockSystem string

//go:embed template/compare_stocks.txt
var compareStocksSystem string

//go:embed template/explain_concept.txt
var explainConceptSystem string

//go:embed template/rag_answer.txt
var ragAnswerSystem string

// RenderClassifierSystem returns the request-classifier system prompt.
func RenderClassifierSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, classifierSystem)
}

// RenderSupervisorSystem returns the routing-supervisor system prompt.
func RenderSupervisorSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, supervisorSystem)
}

// RenderGeneralConversationSystem returns the general-conversation prompt.
func RenderGeneralConversationSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, generalConversationSystem)
}

// RenderQualityRubricSystem returns the four-criterion rubric prompt.
func RenderQualityRubricSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, qualityRubricSystem)
}

// RenderRewriteQuerySystem returns the query-rewrite prompt.
func RenderRewriteQuerySystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, rewriteQuerySystem)
}

// RenderPlanReportSystem returns the report-planning prompt.
func RenderPlanReportSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, planReportSystem)
}

// RenderExtractCompaniesSystem returns the company-name extraction prompt.
func RenderExtractCompaniesSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, extractCompaniesSystem)
}

// RenderAnalyzeStockSystem returns the single-stock synthesis prompt.
func RenderAnalyzeStockSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, analyzeStockSystem)
}

// RenderCompareStocksSystem returns the multi-stock comparison prompt.
func RenderCompareStocksSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, compareStocksSystem)
}

// RenderExplainConceptSystem returns the concept-explanation prompt.
func RenderExplainConceptSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, explainConceptSystem)
}

// RenderRAGAnswerSystem returns the document-grounded answering prompt.
func RenderRAGAnswerSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, ragAnswerSystem)
}

// renderStatic wraps a static template via the Eino prompt component using a
// messages placeholder so prompt callbacks are emitted.
func renderStatic(ctx context.Context, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt render: empty result")
	}
	return msgs[0].Content, nil
}

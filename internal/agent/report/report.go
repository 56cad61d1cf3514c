// Package report composes the final user-facing answer from an analysis
// result: it plans presentation with the LLM, draws requested charts, and
// optionally exports the report to a file. The composer never fails; every
// step degrades independently and the worst case is a plain-text report.
package report

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core-v1/server/internal/agent/graph/prompts"
	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
	"github.com/finsight-core-v1/server/internal/agent/tools"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

const failedMessage = "보고서를 생성하지 못했습니다."

type Composer struct {
	gw       llm.Gateway
	renderer tools.Renderer
	cfg      model.ToolConfig
	wf       model.WorkflowConfig

	// now is swappable for deterministic file names in tests.
	now func() time.Time
}

func New(gw llm.Gateway, renderer tools.Renderer, cfg model.ToolConfig, wf model.WorkflowConfig) *Composer {
	return &Composer{gw: gw, renderer: renderer, cfg: cfg, wf: wf, now: time.Now}
}

// Compose builds the final report for one answered question. previousCharts
// are chart files drawn in earlier turns of the same analysis; a save request
// embeds them without redrawing.
func (c *Composer) Compose(ctx context.Context, question string, analysis *model.AnalysisResult, previousCharts []string) *model.ReportResult {
	if analysis == nil {
		return &model.ReportResult{Report: failedMessage, Status: "error"}
	}
	if analysis.AnalysisType == model.AnalysisError {
		// surface the analysis failure as-is so the evaluator sees it
		text := analysis.Analysis
		if strings.TrimSpace(text) == "" {
			text = failedMessage
		}
		return &model.ReportResult{Report: text, Status: "error"}
	}

	plan := c.plan(ctx, question, analysis)

	// Requests of a few words ("차트 보여줘") never trigger charts or
	// saves on their own; those come from explicit longer instructions.
	if wordCount(question) <= c.wf.ShortRequestWordMax {
		plan.NeedsPriceChart = false
		plan.NeedsValuationChart = false
		plan.NeedsSave = false
	}

	result := &model.ReportResult{Status: "success"}

	if plan.NeedsPriceChart && chartable(analysis) {
		path := c.chartPath(analysis, "price")
		if drawn, err := c.renderer.DrawPriceChart(ctx, analysis, path); err != nil {
			logx.Error().Err(err).Msg("price chart failed")
			result.Status = "partial"
		} else {
			result.Charts = append(result.Charts, drawn)
		}
	}
	if plan.NeedsValuationChart && chartable(analysis) {
		path := c.chartPath(analysis, "valuation")
		if drawn, err := c.renderer.DrawValuationChart(ctx, analysis, path); err != nil {
			logx.Error().Err(err).Msg("valuation chart failed")
			result.Status = "partial"
		} else {
			result.Charts = append(result.Charts, drawn)
		}
	}

	text := strings.TrimSpace(plan.ReportText)
	if text == "" {
		text = fallbackText(analysis)
	}
	if title := strings.TrimSpace(plan.ReportTitle); title != "" {
		text = fmt.Sprintf("# %s\n\n%s", title, text)
	}
	result.Report = text

	if plan.NeedsSave {
		format := normalizeFormat(plan.SaveFormat)
		charts := append(append([]string{}, previousCharts...), result.Charts...)
		path := filepath.Join(c.cfg.ReportDir, fmt.Sprintf("report_%s.%s", c.now().Format("20060102_150405"), format))
		if saved, err := c.renderer.Export(ctx, text, format, path, charts); err != nil {
			logx.Error().Err(err).Msg("report export failed")
			result.Status = "partial"
		} else {
			result.SavedPath = saved
		}
	}

	return result
}

// plan asks the LLM how to present the analysis. A failed call degrades to a
// text-only plan built from the analysis narrative.
func (c *Composer) plan(ctx context.Context, question string, analysis *model.AnalysisResult) model.ReportPlan {
	fallback := model.ReportPlan{ReportText: fallbackText(analysis)}

	system, err := prompts.RenderPlanReportSystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("report plan prompt render failed")
		return fallback
	}

	human := fmt.Sprintf("질문: %s\n\n분석 유형: %s\n분석 내용:\n%s", question, analysis.AnalysisType, analysis.Analysis)

	var plan model.ReportPlan
	msgs := []*schema.Message{schema.SystemMessage(system), schema.UserMessage(human)}
	if err := c.gw.CompleteStructured(ctx, msgs, &plan); err != nil {
		logx.Error().Err(err).Msg("report planning failed, using fallback plan")
		return fallback
	}
	return plan
}

func (c *Composer) chartPath(analysis *model.AnalysisResult, kind string) string {
	label := analysis.Ticker
	if label == "" {
		label = "comparison"
	}
	name := fmt.Sprintf("%s_%s_%s.svg", label, kind, c.now().Format("20060102_150405"))
	return filepath.Join(c.cfg.ChartDir, name)
}

// chartable reports whether the analysis carries price data a chart can show.
func chartable(a *model.AnalysisResult) bool {
	switch a.AnalysisType {
	case model.AnalysisSingle:
		return a.Ticker != ""
	case model.AnalysisComparison:
		return len(a.Stocks) > 0
	default:
		return false
	}
}

func fallbackText(a *model.AnalysisResult) string {
	switch a.AnalysisType {
	case model.AnalysisSingle:
		return fmt.Sprintf("## %s (%s)\n\n현재가: %.2f\n\n%s", a.CompanyName, a.Ticker, a.CurrentPrice, a.Analysis)
	case model.AnalysisComparison:
		var b strings.Builder
		b.WriteString("## 종목 비교\n\n")
		for _, s := range a.Stocks {
			fmt.Fprintf(&b, "- %s (%s): %.2f\n", s.CompanyName, s.Ticker, s.CurrentPrice)
		}
		b.WriteString("\n")
		b.WriteString(a.Analysis)
		return b.String()
	case model.AnalysisConcept, model.AnalysisRAG:
		return a.Analysis
	default:
		if strings.TrimSpace(a.Analysis) != "" {
			return a.Analysis
		}
		return failedMessage
	}
}

func normalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pdf":
		return "pdf"
	case "txt":
		return "txt"
	default:
		return "md"
	}
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

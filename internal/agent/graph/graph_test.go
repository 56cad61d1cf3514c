package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-core-v1/server/internal/agent/graph/prompts"
	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
	"github.com/finsight-core-v1/server/internal/agent/tools"
)

// scriptedGateway selects replies by the system prompt of each call so every
// agent in the graph can be scripted independently. Calls with no scripted
// reply fail, which exercises each agent's degradation path.
type scriptedGateway struct {
	replies map[string][]string
}

func (g *scriptedGateway) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages")
	}
	key := messages[0].Content
	queue := g.replies[key]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted reply for this prompt")
	}
	g.replies[key] = queue[1:]
	return queue[0], nil
}

func (g *scriptedGateway) CompleteStructured(ctx context.Context, messages []*schema.Message, out any) error {
	content, err := g.Complete(ctx, messages)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(content, out)
}

var _ llm.Gateway = (*scriptedGateway)(nil)

type promptSet struct {
	classifier  string
	supervisor  string
	generalConv string
	rubric      string
	rewrite     string
	plan        string
	extract     string
	analyze     string
	rag         string
}

func loadPrompts(t *testing.T) promptSet {
	t.Helper()
	ctx := context.Background()
	mustRender := func(f func(context.Context) (string, error)) string {
		s, err := f(ctx)
		require.NoError(t, err)
		return s
	}
	return promptSet{
		classifier:  mustRender(prompts.RenderClassifierSystem),
		supervisor:  mustRender(prompts.RenderSupervisorSystem),
		generalConv: mustRender(prompts.RenderGeneralConversationSystem),
		rubric:      mustRender(prompts.RenderQualityRubricSystem),
		rewrite:     mustRender(prompts.RenderRewriteQuerySystem),
		plan:        mustRender(prompts.RenderPlanReportSystem),
		extract:     mustRender(prompts.RenderExtractCompaniesSystem),
		analyze:     mustRender(prompts.RenderAnalyzeStockSystem),
		rag:         mustRender(prompts.RenderRAGAnswerSystem),
	}
}

func buildTestGraph(t *testing.T, gw llm.Gateway) func(ctx context.Context, in model.QueryInput) (*model.WorkflowState, error) {
	t.Helper()
	dir := t.TempDir()
	runnable, err := BuildGraph(context.Background(), Deps{
		Gateway:  gw,
		Market:   tools.NewMemoryMarketData(),
		Index:    tools.NewMemoryDocumentIndex(),
		Renderer: tools.NewFileRenderer(),
		Workflow: model.WorkflowConfig{
			RetryMax:            2,
			SameFailureMax:      2,
			QualityThreshold:    2.0,
			ShortRequestWordMax: 3,
		},
		Tool: model.ToolConfig{
			HistoryPeriod: "3mo",
			ChartDir:      filepath.Join(dir, "charts"),
			ReportDir:     filepath.Join(dir, "reports"),
		},
	})
	require.NoError(t, err)
	return func(ctx context.Context, in model.QueryInput) (*model.WorkflowState, error) {
		return runnable.Invoke(ctx, in)
	}
}

const passingRubric = "accuracy: 4\ncompleteness: 4\nrelevance: 4\nclarity: 4"

func planReply(text string) string {
	return fmt.Sprintf(`{"needs_price_chart":false,"needs_valuation_chart":false,"needs_save":false,"report_title":"","report_text":%q}`, text)
}

func TestGeneralConversationPath(t *testing.T) {
	ps := loadPrompts(t)
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.classifier:  {`{"label":"general_conversation"}`},
		ps.generalConv: {"안녕하세요! 무엇을 도와드릴까요?"},
	}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "안녕하세요"})

	require.NoError(t, err)
	assert.True(t, out.QualityPassed)
	assert.Equal(t, "안녕하세요! 무엇을 도와드릴까요?", out.Answer)
}

func TestNotFinancePath(t *testing.T) {
	ps := loadPrompts(t)
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.classifier: {`{"label":"not_finance"}`},
	}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "김치찌개 레시피 알려줘"})

	require.NoError(t, err)
	assert.Contains(t, out.Answer, "경제, 금융관련 질문이 아닙니다")
	assert.Zero(t, out.Retries)
}

func TestFinancialAnalysisHappyPath(t *testing.T) {
	ps := loadPrompts(t)
	reportText := "삼성전자는 반도체 업황 개선으로 상승세이며 밸류에이션 부담은 제한적입니다."
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.classifier: {`{"label":"finance"}`},
		ps.supervisor: {`{"agent":"financial_analyst"}`},
		ps.extract:    {"삼성전자"},
		ps.analyze:    {"반도체 업황 개선에 따른 상승 흐름입니다."},
		ps.plan:       {planReply(reportText)},
		ps.rubric:     {passingRubric},
	}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "삼성전자 주가 분석해줘"})

	require.NoError(t, err)
	assert.True(t, out.QualityPassed)
	assert.Contains(t, out.Answer, reportText)
	assert.Zero(t, out.Retries)
	require.NotNil(t, out.Analysis)
	assert.Equal(t, model.AnalysisSingle, out.Analysis.AnalysisType)
	assert.Equal(t, "005930.KS", out.Analysis.Ticker)
}

func TestRAGPathAppendsSources(t *testing.T) {
	ps := loadPrompts(t)
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.classifier: {`{"label":"finance"}`},
		ps.supervisor: {`{"agent":"vector_search_agent"}`},
		ps.rag:        {"레버리지 ETF는 일일 복리 효과로 장기 보유에 적합하지 않습니다."},
		ps.plan:       {planReply("레버리지 ETF는 변동성 장세에서 괴리가 커질 수 있습니다.")},
		ps.rubric:     {passingRubric},
	}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "레버리지 etf 위험성 문서에서 찾아줘"})

	require.NoError(t, err)
	assert.True(t, out.QualityPassed)
	assert.Contains(t, out.Answer, "출처:")
	assert.Contains(t, out.Answer, "p.")
	require.NotNil(t, out.Analysis)
	assert.Equal(t, model.AnalysisRAG, out.Analysis.AnalysisType)
}

func TestRetryTerminatesOnConsecutiveSameFailure(t *testing.T) {
	ps := loadPrompts(t)
	// both passes resolve no ticker, so both answers trip the critical
	// failure gate with the same reason
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.classifier: {`{"label":"finance"}`, `{"label":"finance"}`},
		ps.supervisor: {`{"agent":"financial_analyst"}`, `{"agent":"financial_analyst"}`},
		ps.extract:    {"존재하지않는회사", "존재하지않는회사"},
		ps.rewrite:    {`{"needs_user_input":false,"rewritten_query":"존재하지않는회사 다시 분석"}`},
	}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "존재하지않는회사 분석해줘"})

	require.NoError(t, err)
	assert.False(t, out.QualityPassed)
	// one rewrite happened, then the identical failure ended the loop
	assert.Equal(t, 1, out.Retries)
	assert.Contains(t, out.Answer, "죄송합니다")
}

func TestRetryRecoversAfterRewrite(t *testing.T) {
	ps := loadPrompts(t)
	reportText := "삼성전자는 반도체 업황 개선으로 상승세입니다."
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.classifier: {`{"label":"finance"}`, `{"label":"finance"}`},
		ps.supervisor: {`{"agent":"financial_analyst"}`, `{"agent":"financial_analyst"}`},
		ps.extract:    {"존재하지않는회사", "삼성전자"},
		ps.analyze:    {"반도체 업황 개선에 따른 상승 흐름입니다."},
		ps.rewrite:    {`{"needs_user_input":false,"rewritten_query":"삼성전자 주가 분석"}`},
		ps.plan:       {planReply(reportText)},
		ps.rubric:     {passingRubric},
	}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "존재하지않는회사 분석해줘"})

	require.NoError(t, err)
	assert.True(t, out.QualityPassed)
	// a pass resets the retry bookkeeping
	assert.Zero(t, out.Retries)
	assert.Zero(t, out.ConsecutiveSameFailures)
	assert.Equal(t, "삼성전자 주가 분석", out.Question)
	assert.Contains(t, out.Answer, reportText)
}

func TestRewriterAsksUserForDetail(t *testing.T) {
	ps := loadPrompts(t)
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.classifier: {`{"label":"finance"}`},
		ps.supervisor: {`{"agent":"financial_analyst"}`},
		ps.extract:    {"존재하지않는회사"},
		ps.rewrite:    {`{"needs_user_input":true,"request_for_detail_msg":"어떤 종목을 말씀하시는지 알려주세요."}`},
	}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "존재하지않는회사 분석해줘"})

	require.NoError(t, err)
	assert.False(t, out.QualityPassed)
	assert.Equal(t, "어떤 종목을 말씀하시는지 알려주세요.", out.Answer)
	assert.Zero(t, out.Retries)
}

func TestFollowUpBypassesAgents(t *testing.T) {
	ps := loadPrompts(t)
	// no classifier reply is scripted: if the bypass failed, classification
	// would degrade to the out-of-domain answer and the assertion would fail
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{
		ps.plan:   {`{"needs_price_chart":true,"needs_valuation_chart":false,"needs_save":false,"report_title":"","report_text":"이전 분석의 가격 차트입니다."}`},
		ps.rubric: {passingRubric},
	}})

	out, err := invoke(context.Background(), model.QueryInput{
		SessionID: "s1",
		Question:  "방금 분석 차트로 그려줘",
		PreviousAnalysis: &model.AnalysisResult{
			AnalysisType: model.AnalysisSingle,
			Ticker:       "005930.KS",
			CompanyName:  "Samsung Electronics",
			CurrentPrice: 71000,
			Metrics:      map[string]any{"52week_high": 88000.0, "52week_low": 56000.0},
			Analysis:     "반도체 업황 개선에 따른 상승 흐름입니다.",
		},
	})

	require.NoError(t, err)
	assert.True(t, out.QualityPassed)
	assert.Contains(t, out.Answer, "이전 분석의 가격 차트입니다.")
	require.Len(t, out.CurrentCharts, 1)
	assert.Contains(t, out.Answer, "차트 생성 완료")
}

func TestEmptyQuestionShortCircuits(t *testing.T) {
	// no replies scripted: a blank question must never reach an LLM call
	invoke := buildTestGraph(t, &scriptedGateway{replies: map[string][]string{}})

	out, err := invoke(context.Background(), model.QueryInput{SessionID: "s1", Question: "   "})

	require.NoError(t, err)
	assert.Equal(t, "질문이 비어 있어 답변을 드릴 수 없습니다.", out.Answer)
	assert.False(t, out.QualityPassed)
}

package analyst

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-core-v1/server/internal/agent/graph/prompts"
	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
	"github.com/finsight-core-v1/server/internal/agent/tools"
)

// scriptedGateway selects replies by the system prompt of each call, so one
// fake serves the extraction, synthesis, and concept calls independently.
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

func promptKeys(t *testing.T) (extract, single, compare, concept, rag string) {
	t.Helper()
	ctx := context.Background()
	var err error
	extract, err = prompts.RenderExtractCompaniesSystem(ctx)
	require.NoError(t, err)
	single, err = prompts.RenderAnalyzeStockSystem(ctx)
	require.NoError(t, err)
	compare, err = prompts.RenderCompareStocksSystem(ctx)
	require.NoError(t, err)
	concept, err = prompts.RenderExplainConceptSystem(ctx)
	require.NoError(t, err)
	rag, err = prompts.RenderRAGAnswerSystem(ctx)
	require.NoError(t, err)
	return
}

func newAnalyst(gw llm.Gateway, market tools.MarketData) *Analyst {
	return New(gw, market, tools.NewMemoryDocumentIndex(), model.ToolConfig{HistoryPeriod: "3mo"})
}

func TestAnalyzeSingleStock(t *testing.T) {
	extract, single, _, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자"},
		single:  {"삼성전자는 반도체 업황 개선으로 상승세입니다."},
	}}

	result := newAnalyst(gw, tools.NewMemoryMarketData()).Analyze(context.Background(), "삼성전자 주가 분석해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisSingle, result.AnalysisType)
	assert.Equal(t, "005930.KS", result.Ticker)
	assert.Equal(t, "Samsung Electronics", result.CompanyName)
	assert.Equal(t, 71000.0, result.CurrentPrice)
	assert.Contains(t, result.Analysis, "상승세")
	assert.NotEmpty(t, result.AnalystRecommendation)
	assert.Contains(t, result.Metrics, "52week_high")
}

func TestAnalyzeConceptWhenNoCompany(t *testing.T) {
	extract, _, _, concept, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"NONE"},
		concept: {"ETF는 거래소에 상장된 지수 추종 펀드입니다."},
	}}

	result := newAnalyst(gw, tools.NewMemoryMarketData()).Analyze(context.Background(), "ETF가 뭐야?")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisConcept, result.AnalysisType)
	assert.Contains(t, result.Analysis, "ETF는")
	assert.Equal(t, "ETF가 뭐야?", result.Query)
}

func TestAnalyzeComparison(t *testing.T) {
	extract, _, compare, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자, 애플"},
		compare: {"두 종목 모두 IT 대형주이나 밸류에이션이 다릅니다.\n\n요약하면 애플이 더 높은 PER에 거래됩니다."},
	}}

	result := newAnalyst(gw, tools.NewMemoryMarketData()).Analyze(context.Background(), "삼성전자랑 애플 비교해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisComparison, result.AnalysisType)
	require.Len(t, result.Stocks, 2)
	assert.Equal(t, "005930.KS", result.Stocks[0].Ticker)
	assert.Equal(t, "AAPL", result.Stocks[1].Ticker)
	assert.NotEmpty(t, result.ComparisonSummary)
}

// failingMarket wraps the in-memory fixture with per-ticker failures. The
// webFail keys match against the search query since WebSearch receives the
// company name, not the ticker.
type failingMarket struct {
	tools.MarketData
	infoFail map[string]bool
	histFail map[string]bool
	recFail  map[string]bool
	webFail  map[string]bool
}

func (f *failingMarket) Info(ctx context.Context, ticker string) (*tools.StockInfo, error) {
	if f.infoFail[ticker] {
		return nil, fmt.Errorf("upstream timeout")
	}
	return f.MarketData.Info(ctx, ticker)
}

func (f *failingMarket) History(ctx context.Context, ticker, period string) ([]tools.PricePoint, error) {
	if f.histFail[ticker] {
		return nil, fmt.Errorf("upstream timeout")
	}
	return f.MarketData.History(ctx, ticker, period)
}

func (f *failingMarket) Recommendations(ctx context.Context, ticker string) (string, error) {
	if f.recFail[ticker] {
		return "", fmt.Errorf("upstream timeout")
	}
	return f.MarketData.Recommendations(ctx, ticker)
}

func (f *failingMarket) WebSearch(ctx context.Context, query string) (string, error) {
	for key := range f.webFail {
		if f.webFail[key] && strings.Contains(query, key) {
			return "", fmt.Errorf("upstream timeout")
		}
	}
	return f.MarketData.WebSearch(ctx, query)
}

func TestAnalyzeSingleSurvivesOptionalFetchFailures(t *testing.T) {
	extract, single, _, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자"},
		single:  {"가격 정보만으로 작성한 분석입니다."},
	}}
	market := &failingMarket{
		MarketData: tools.NewMemoryMarketData(),
		histFail:   map[string]bool{"005930.KS": true},
		recFail:    map[string]bool{"005930.KS": true},
		webFail:    map[string]bool{"Samsung Electronics": true},
	}

	result := newAnalyst(gw, market).Analyze(context.Background(), "삼성전자 분석해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisSingle, result.AnalysisType)
	assert.Equal(t, "005930.KS", result.Ticker)
	assert.Empty(t, result.AnalystRecommendation)
}

func TestAnalyzeSingleDegradesWhenInfoFails(t *testing.T) {
	extract, single, _, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자"},
		single:  {"가격 이력과 뉴스만으로 작성한 분석입니다."},
	}}
	market := &failingMarket{
		MarketData: tools.NewMemoryMarketData(),
		infoFail:   map[string]bool{"005930.KS": true},
	}

	result := newAnalyst(gw, market).Analyze(context.Background(), "삼성전자 분석해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisSingle, result.AnalysisType)
	assert.Equal(t, "005930.KS", result.Ticker)
	assert.Equal(t, "Samsung Electronics", result.CompanyName)
	assert.Zero(t, result.CurrentPrice)
	// the 52-week range comes from the one-year history backfill
	assert.Contains(t, result.Metrics, "52week_high")
	assert.Contains(t, result.Metrics, "52week_low")
}

func TestAnalyzeSingleAllSourcesFailedIsError(t *testing.T) {
	extract, _, _, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자"},
	}}
	market := &failingMarket{
		MarketData: tools.NewMemoryMarketData(),
		infoFail:   map[string]bool{"005930.KS": true},
		histFail:   map[string]bool{"005930.KS": true},
		recFail:    map[string]bool{"005930.KS": true},
		webFail:    map[string]bool{"Samsung Electronics": true},
	}

	result := newAnalyst(gw, market).Analyze(context.Background(), "삼성전자 분석해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisError, result.AnalysisType)
	assert.Contains(t, result.Analysis, "분석 데이터를 찾을 수 없습니다")
}

func TestAnalyzeComparisonDropsFailedTickers(t *testing.T) {
	extract, _, compare, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자, 애플"},
		compare: {"애플 데이터 기준의 비교입니다."},
	}}
	market := &failingMarket{
		MarketData: tools.NewMemoryMarketData(),
		infoFail:   map[string]bool{"005930.KS": true},
		histFail:   map[string]bool{"005930.KS": true},
		recFail:    map[string]bool{"005930.KS": true},
		webFail:    map[string]bool{"Samsung Electronics": true},
	}

	result := newAnalyst(gw, market).Analyze(context.Background(), "삼성전자랑 애플 비교해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisComparison, result.AnalysisType)
	require.Len(t, result.Stocks, 1)
	assert.Equal(t, "AAPL", result.Stocks[0].Ticker)
}

func TestAnalyzeNoTickerResolvedIsError(t *testing.T) {
	extract, _, _, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"존재하지않는회사"},
	}}

	result := newAnalyst(gw, tools.NewMemoryMarketData()).Analyze(context.Background(), "존재하지않는회사 분석해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisError, result.AnalysisType)
	assert.Contains(t, result.Analysis, "분석 데이터를 찾을 수 없습니다")
}

func TestAnalyzeSynthesisFailureUsesTemplate(t *testing.T) {
	extract, _, _, _, _ := promptKeys(t)
	// no scripted reply for the synthesis prompt forces the template path
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자"},
	}}

	result := newAnalyst(gw, tools.NewMemoryMarketData()).Analyze(context.Background(), "삼성전자 분석해줘")

	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisSingle, result.AnalysisType)
	assert.Contains(t, result.Analysis, "Samsung Electronics")
	assert.Contains(t, result.Analysis, "52주 최고가")
}

// bareMarket returns info records without 52-week metrics so the backfill
// path has to compute them from history.
type bareMarket struct {
	tools.MarketData
}

func (b *bareMarket) Info(ctx context.Context, ticker string) (*tools.StockInfo, error) {
	info, err := b.MarketData.Info(ctx, ticker)
	if err != nil {
		return nil, err
	}
	info.Metrics = map[string]any{"pe_ratio": 10.5}
	return info, nil
}

func TestAnalyzeBackfills52WeekRange(t *testing.T) {
	extract, single, _, _, _ := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		extract: {"삼성전자"},
		single:  {"분석 결과입니다. 추세는 완만합니다."},
	}}

	result := newAnalyst(gw, &bareMarket{MarketData: tools.NewMemoryMarketData()}).
		Analyze(context.Background(), "삼성전자 분석해줘")

	require.NotNil(t, result)
	require.Contains(t, result.Metrics, "52week_high")
	require.Contains(t, result.Metrics, "52week_low")
	high, _ := result.Metrics["52week_high"].(float64)
	low, _ := result.Metrics["52week_low"].(float64)
	assert.Greater(t, high, low)
}

func TestRetrieveFindsDocuments(t *testing.T) {
	_, _, _, _, rag := promptKeys(t)
	gw := &scriptedGateway{replies: map[string][]string{
		rag: {"레버리지 ETF는 일일 복리 효과 때문에 장기 보유에 적합하지 않습니다."},
	}}

	result, sources, found := newAnalyst(gw, tools.NewMemoryMarketData()).
		Retrieve(context.Background(), "레버리지 etf 위험성 알려줘")

	require.True(t, found)
	require.NotNil(t, result)
	assert.Equal(t, model.AnalysisRAG, result.AnalysisType)
	assert.NotEmpty(t, result.Documents)
	require.NotEmpty(t, sources)
	// pages render one-based with the score prefix
	assert.Regexp(t, `^- \(score=\d+\.\d{2}\) .+ p\.\d+$`, sources[0])
}

func TestRetrieveNotFound(t *testing.T) {
	gw := &scriptedGateway{replies: map[string][]string{}}

	result, sources, found := newAnalyst(gw, tools.NewMemoryMarketData()).
		Retrieve(context.Background(), "오늘 점심 메뉴 추천")

	assert.False(t, found)
	assert.Nil(t, result)
	assert.Nil(t, sources)
}

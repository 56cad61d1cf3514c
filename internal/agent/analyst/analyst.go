// Package analyst implements the financial analysis agent and the
// document-retrieval agent. Both are contractually non-throwing: every
// external fetch is individually guarded and the worst outcome is an
// AnalysisResult with AnalysisType "error".
package analyst

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core-v1/server/internal/agent/graph/prompts"
	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
	"github.com/finsight-core-v1/server/internal/agent/tools"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

const (
	noDataMessage = "분석 데이터를 찾을 수 없습니다."

	week52HighKey = "52week_high"
	week52LowKey  = "52week_low"
)

// collected is one ticker's gathered raw data before synthesis. Optional
// fields stay zero when their fetch failed.
type collected struct {
	info            *tools.StockInfo
	history         []tools.PricePoint
	recommendations string
	news            string
}

type Analyst struct {
	gw     llm.Gateway
	market tools.MarketData
	index  tools.DocumentIndex
	cfg    model.ToolConfig
}

func New(gw llm.Gateway, market tools.MarketData, index tools.DocumentIndex, cfg model.ToolConfig) *Analyst {
	return &Analyst{gw: gw, market: market, index: index, cfg: cfg}
}

// Analyze runs the full financial analysis pipeline for one question and
// never returns an error; unrecoverable states come back as an error-typed
// AnalysisResult instead.
func (a *Analyst) Analyze(ctx context.Context, question string) *model.AnalysisResult {
	companies := a.extractCompanies(ctx, question)

	if len(companies) == 0 {
		return a.explainConcept(ctx, question)
	}

	tickers := a.resolveTickers(ctx, companies)
	if len(tickers) == 0 {
		logx.Warn().Strs("companies", companies).Msg("no tickers resolved")
		return &model.AnalysisResult{
			AnalysisType: model.AnalysisError,
			Analysis:     noDataMessage,
			Err:          "ticker resolution produced no candidates",
		}
	}

	if len(tickers) == 1 {
		return a.analyzeSingle(ctx, question, tickers[0])
	}
	return a.analyzeComparison(ctx, question, tickers)
}

// extractCompanies asks the LLM for company names mentioned in the question.
// A failure or the NONE sentinel both mean "no companies", which sends the
// question down the concept path.
func (a *Analyst) extractCompanies(ctx context.Context, question string) []string {
	system, err := prompts.RenderExtractCompaniesSystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("extract companies prompt render failed")
		return nil
	}
	reply, err := a.gw.Complete(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(question),
	})
	if err != nil {
		logx.Error().Err(err).Msg("company extraction failed")
		return nil
	}

	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "NONE") {
		return nil
	}

	// the model is asked for newline-separated names but commas show up too
	var names []string
	for _, part := range strings.FieldsFunc(reply, func(r rune) bool { return r == '\n' || r == ',' }) {
		if name := strings.TrimSpace(part); name != "" && !strings.EqualFold(name, "NONE") {
			names = append(names, name)
		}
	}
	return names
}

// resolveTickers maps company names to tickers, skipping names that fail to
// resolve and deduplicating the result in input order.
func (a *Analyst) resolveTickers(ctx context.Context, companies []string) []tickerName {
	seen := make(map[string]bool, len(companies))
	var out []tickerName
	for _, name := range companies {
		candidates, err := a.market.Search(ctx, name, 1)
		if err != nil || len(candidates) == 0 {
			logx.Warn().Err(err).Str("company", name).Msg("ticker search failed, skipping")
			continue
		}
		c := candidates[0]
		if seen[c.Ticker] {
			continue
		}
		seen[c.Ticker] = true
		out = append(out, tickerName{ticker: c.Ticker, name: c.Name})
	}
	return out
}

type tickerName struct {
	ticker string
	name   string
}

// collect gathers the four data sources for one ticker. Each fetch degrades
// to its zero value on failure; the info record falls back to the ticker and
// name carried over from search. The returned flag is false only when every
// source failed.
func (a *Analyst) collect(ctx context.Context, tn tickerName) (*collected, bool) {
	c := &collected{}
	ok := false

	if info, err := a.market.Info(ctx, tn.ticker); err != nil {
		logx.Warn().Err(err).Str("ticker", tn.ticker).Msg("info fetch failed")
		c.info = &tools.StockInfo{Ticker: tn.ticker, CompanyName: tn.name}
	} else {
		c.info = info
		ok = true
	}
	if hist, err := a.market.History(ctx, tn.ticker, a.cfg.HistoryPeriod); err != nil {
		logx.Warn().Err(err).Str("ticker", tn.ticker).Msg("history fetch failed")
	} else {
		c.history = hist
		ok = true
	}
	if rec, err := a.market.Recommendations(ctx, tn.ticker); err != nil {
		logx.Warn().Err(err).Str("ticker", tn.ticker).Msg("recommendations fetch failed")
	} else {
		c.recommendations = rec
		ok = true
	}
	if news, err := a.market.WebSearch(ctx, tn.name+" 주가 뉴스"); err != nil {
		logx.Warn().Err(err).Str("ticker", tn.ticker).Msg("news search failed")
	} else {
		c.news = news
		ok = true
	}

	a.backfill52Week(ctx, tn.ticker, c)
	return c, ok
}

// backfill52Week fills the 52-week high/low metrics from a one-year price
// series when the info record did not carry them.
func (a *Analyst) backfill52Week(ctx context.Context, ticker string, c *collected) {
	if c.info.Metrics == nil {
		c.info.Metrics = make(map[string]any)
	}
	if _, okHigh := c.info.Metrics[week52HighKey]; okHigh {
		if _, okLow := c.info.Metrics[week52LowKey]; okLow {
			return
		}
	}
	hist, err := a.market.History(ctx, ticker, "1y")
	if err != nil || len(hist) == 0 {
		return
	}
	high, low := hist[0].High, hist[0].Low
	for _, p := range hist[1:] {
		if p.High > high {
			high = p.High
		}
		if p.Low < low {
			low = p.Low
		}
	}
	c.info.Metrics[week52HighKey] = high
	c.info.Metrics[week52LowKey] = low
}

func (a *Analyst) analyzeSingle(ctx context.Context, question string, tn tickerName) *model.AnalysisResult {
	c, ok := a.collect(ctx, tn)
	if !ok {
		logx.Error().Str("ticker", tn.ticker).Msg("every data source failed")
		return &model.AnalysisResult{
			AnalysisType: model.AnalysisError,
			Analysis:     noDataMessage,
			Err:          fmt.Sprintf("all data sources failed for %s", tn.ticker),
		}
	}

	narrative := a.synthesizeSingle(ctx, question, c)

	return &model.AnalysisResult{
		AnalysisType:          model.AnalysisSingle,
		Ticker:                c.info.Ticker,
		CompanyName:           c.info.CompanyName,
		CurrentPrice:          c.info.CurrentPrice,
		Metrics:               c.info.Metrics,
		Period:                a.cfg.HistoryPeriod,
		AnalystRecommendation: c.recommendations,
		Analysis:              narrative,
	}
}

func (a *Analyst) analyzeComparison(ctx context.Context, question string, tns []tickerName) *model.AnalysisResult {
	var stocks []StockData
	for _, tn := range tns {
		c, ok := a.collect(ctx, tn)
		if !ok {
			logx.Warn().Str("ticker", tn.ticker).Msg("dropping ticker from comparison")
			continue
		}
		stocks = append(stocks, StockData{tickerName: tn, collected: c})
	}
	if len(stocks) == 0 {
		return &model.AnalysisResult{
			AnalysisType: model.AnalysisError,
			Analysis:     noDataMessage,
			Err:          "all tickers failed data collection",
		}
	}

	narrative := a.synthesizeComparison(ctx, question, stocks)

	summaries := make([]model.StockSummary, 0, len(stocks))
	for _, s := range stocks {
		summaries = append(summaries, model.StockSummary{
			Ticker:       s.info.Ticker,
			CompanyName:  s.info.CompanyName,
			CurrentPrice: s.info.CurrentPrice,
			Metrics:      s.info.Metrics,
		})
	}
	return &model.AnalysisResult{
		AnalysisType:      model.AnalysisComparison,
		Stocks:            summaries,
		Analysis:          narrative,
		ComparisonSummary: lastParagraph(narrative),
	}
}

// StockData pairs a resolved ticker with its collected raw data.
type StockData struct {
	tickerName
	*collected
}

// explainConcept answers questions that name no company: it gathers web
// context and asks the LLM for an explanation.
func (a *Analyst) explainConcept(ctx context.Context, question string) *model.AnalysisResult {
	var references string
	if refs, err := a.market.WebSearch(ctx, question); err != nil {
		logx.Warn().Err(err).Msg("concept reference search failed")
	} else {
		references = refs
	}

	system, perr := prompts.RenderExplainConceptSystem(ctx)
	if perr != nil {
		logx.Error().Err(perr).Msg("concept prompt render failed")
		return conceptFallback(question, references)
	}

	human := question
	if references != "" {
		human = fmt.Sprintf("질문: %s\n\n참고 자료:\n%s", question, references)
	}
	narrative, err := a.gw.Complete(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(human),
	})
	if err != nil || strings.TrimSpace(narrative) == "" {
		logx.Error().Err(err).Msg("concept synthesis failed, using fallback")
		return conceptFallback(question, references)
	}

	return &model.AnalysisResult{
		AnalysisType: model.AnalysisConcept,
		Query:        question,
		Analysis:     strings.TrimSpace(narrative),
	}
}

func conceptFallback(question, references string) *model.AnalysisResult {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s'에 대한 자동 분석 결과입니다.\n", question)
	if references != "" {
		b.WriteString("\n참고 자료:\n")
		b.WriteString(references)
	} else {
		b.WriteString(noDataMessage)
	}
	return &model.AnalysisResult{
		AnalysisType: model.AnalysisConcept,
		Query:        question,
		Analysis:     b.String(),
	}
}

// synthesizeSingle asks the LLM for the single-stock narrative, falling back
// to a template built from the raw data.
func (a *Analyst) synthesizeSingle(ctx context.Context, question string, c *collected) string {
	system, perr := prompts.RenderAnalyzeStockSystem(ctx)
	if perr == nil {
		narrative, err := a.gw.Complete(ctx, []*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(fmt.Sprintf("질문: %s\n\n%s", question, formatStockData(c))),
		})
		if err == nil && strings.TrimSpace(narrative) != "" {
			return strings.TrimSpace(narrative)
		}
		logx.Error().Err(err).Str("ticker", c.info.Ticker).Msg("stock synthesis failed, using template")
	} else {
		logx.Error().Err(perr).Msg("stock synthesis prompt render failed")
	}
	return singleTemplate(c)
}

func (a *Analyst) synthesizeComparison(ctx context.Context, question string, stocks []StockData) string {
	system, perr := prompts.RenderCompareStocksSystem(ctx)
	if perr == nil {
		var b strings.Builder
		fmt.Fprintf(&b, "질문: %s\n", question)
		for _, s := range stocks {
			b.WriteString("\n")
			b.WriteString(formatStockData(s.collected))
		}
		narrative, err := a.gw.Complete(ctx, []*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(b.String()),
		})
		if err == nil && strings.TrimSpace(narrative) != "" {
			return strings.TrimSpace(narrative)
		}
		logx.Error().Err(err).Msg("comparison synthesis failed, using template")
	} else {
		logx.Error().Err(perr).Msg("comparison synthesis prompt render failed")
	}
	return comparisonTemplate(stocks)
}

// formatStockData flattens one ticker's collected data into the prompt body.
func formatStockData(c *collected) string {
	var b strings.Builder
	fmt.Fprintf(&b, "종목: %s (%s)\n현재가: %.2f\n", c.info.CompanyName, c.info.Ticker, c.info.CurrentPrice)
	if len(c.info.Metrics) > 0 {
		keys := make([]string, 0, len(c.info.Metrics))
		for k := range c.info.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("지표:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, c.info.Metrics[k])
		}
	}
	if n := len(c.history); n > 0 {
		first, last := c.history[0], c.history[n-1]
		fmt.Fprintf(&b, "기간 시작가: %.2f, 기간 종가: %.2f (%d 거래일)\n", first.Close, last.Close, n)
	}
	if c.recommendations != "" {
		fmt.Fprintf(&b, "애널리스트 의견: %s\n", c.recommendations)
	}
	if c.news != "" {
		fmt.Fprintf(&b, "최근 뉴스:\n%s\n", c.news)
	}
	return b.String()
}

func singleTemplate(c *collected) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) 분석 요약입니다.\n\n현재가: %.2f\n", c.info.CompanyName, c.info.Ticker, c.info.CurrentPrice)
	if high, ok := c.info.Metrics[week52HighKey]; ok {
		fmt.Fprintf(&b, "52주 최고가: %v\n", high)
	}
	if low, ok := c.info.Metrics[week52LowKey]; ok {
		fmt.Fprintf(&b, "52주 최저가: %v\n", low)
	}
	if n := len(c.history); n > 0 {
		change := c.history[n-1].Close - c.history[0].Close
		fmt.Fprintf(&b, "조회 기간 동안 주가는 %.2f 변동했습니다.\n", change)
	}
	if c.recommendations != "" {
		fmt.Fprintf(&b, "\n애널리스트 의견: %s\n", c.recommendations)
	}
	return b.String()
}

func comparisonTemplate(stocks []StockData) string {
	var b strings.Builder
	b.WriteString("종목 비교 요약입니다.\n\n")
	for _, s := range stocks {
		fmt.Fprintf(&b, "- %s (%s): 현재가 %.2f\n", s.info.CompanyName, s.info.Ticker, s.info.CurrentPrice)
	}
	return b.String()
}

func lastParagraph(text string) string {
	parts := strings.Split(strings.TrimSpace(text), "\n\n")
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[len(parts)-1])
}

package model

// AnalysisType discriminates the shape of an AnalysisResult.
type AnalysisType string

const (
	AnalysisSingle     AnalysisType = "single"
	AnalysisComparison AnalysisType = "comparison"
	AnalysisConcept    AnalysisType = "concept"
	AnalysisRAG        AnalysisType = "rag"
	AnalysisError      AnalysisType = "error"
)

// StockSummary carries one ticker's collected core data inside a comparison.
type StockSummary struct {
	Ticker       string         `json:"ticker"`
	CompanyName  string         `json:"company_name"`
	CurrentPrice float64        `json:"current_price"`
	Metrics      map[string]any `json:"metrics,omitempty"`
	Analysis     string         `json:"analysis,omitempty"`
}

// AnalysisResult is the structured output of the financial analysis agent
// (or the RAG branch), consumed by the report generator. Which fields are
// populated depends on AnalysisType.
type AnalysisResult struct {
	AnalysisType AnalysisType `json:"analysis_type"`

	// Single-stock fields.
	Ticker                string         `json:"ticker,omitempty"`
	CompanyName           string         `json:"company_name,omitempty"`
	CurrentPrice          float64        `json:"current_price,omitempty"`
	Metrics               map[string]any `json:"metrics,omitempty"`
	Period                string         `json:"period,omitempty"`
	AnalystRecommendation string         `json:"analyst_recommendation,omitempty"`

	// Shared narrative field, always set.
	Analysis string `json:"analysis"`

	// Comparison fields.
	Stocks            []StockSummary `json:"stocks,omitempty"`
	ComparisonSummary string         `json:"comparison_summary,omitempty"`

	// Concept / RAG fields.
	Query     string   `json:"query,omitempty"`
	Documents []string `json:"documents,omitempty"`

	// Charts drawn for this analysis in earlier turns; lets a later save
	// request embed them without redrawing.
	Charts []string `json:"charts,omitempty"`

	// Error field, set only for AnalysisError.
	Err string `json:"error,omitempty"`
}

// QualityResult is the quality evaluator's verdict for one answer.
type QualityResult struct {
	Status string `json:"status"` // "pass" or "fail"
	// Score is the mean of the parseable rubric criteria on the 1-5 scale,
	// or 0 when a pre-rubric gate failed.
	Score float64 `json:"score"`
	// Criteria holds the per-criterion scores that parsed.
	Criteria      map[string]int `json:"criteria,omitempty"`
	FailureReason FailureReason  `json:"failure_reason,omitempty"`
}

// Passed reports whether the evaluation passed.
func (q *QualityResult) Passed() bool {
	return q != nil && q.Status == "pass"
}

// ReportPlan is the structured plan the report generator asks the LLM for.
type ReportPlan struct {
	NeedsPriceChart     bool   `json:"needs_price_chart"`
	NeedsValuationChart bool   `json:"needs_valuation_chart"`
	NeedsSave           bool   `json:"needs_save"`
	SaveFormat          string `json:"save_format,omitempty"` // pdf | md | txt
	ReportTitle         string `json:"report_title"`
	ReportText          string `json:"report_text"`
}

// ReportResult is the report generator's final, never-failing output.
type ReportResult struct {
	Report    string   `json:"report"`
	Status    string   `json:"status"` // success | partial | error
	Charts    []string `json:"charts"`
	SavedPath string   `json:"saved_path,omitempty"`
}

// ClassifyLabel is the request classifier's verdict.
type ClassifyLabel string

const (
	LabelFinance     ClassifyLabel = "finance"
	LabelGeneralConv ClassifyLabel = "general_conversation"
	LabelNotFinance  ClassifyLabel = "not_finance"
)

// ClassifyResult carries the label plus an optional canned reply for
// out-of-domain questions.
type ClassifyResult struct {
	Label   ClassifyLabel `json:"label"`
	Message string        `json:"message,omitempty"`
}

// AgentChoice is the supervisor's routing decision.
type AgentChoice string

const (
	AgentFinancialAnalyst AgentChoice = "financial_analyst"
	AgentVectorSearch     AgentChoice = "vector_search_agent"
	AgentNone             AgentChoice = "none"
)

// RewriteResult is the query rewriter's structured output on the retry path.
type RewriteResult struct {
	NeedsUserInput   bool   `json:"needs_user_input"`
	RewrittenQuery   string `json:"rewritten_query,omitempty"`
	RequestForDetail string `json:"request_for_detail_msg,omitempty"`
}

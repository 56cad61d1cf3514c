// Package tools declares the workflow's external collaborators: market data,
// the document index used for retrieval, and chart/file rendering. The graph
// treats all of them as opaque, possibly-failing remote calls; every
// implementation error degrades to an empty or default value upstream.
package tools

import (
	"context"
	"time"

	"github.com/finsight-core-v1/server/internal/agent/model"
)

// TickerCandidate is one match from a ticker search.
type TickerCandidate struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
}

// StockInfo is the flat record returned by an info lookup.
type StockInfo struct {
	Ticker       string         `json:"ticker"`
	CompanyName  string         `json:"company_name"`
	Sector       string         `json:"sector,omitempty"`
	CurrentPrice float64        `json:"current_price"`
	Metrics      map[string]any `json:"metrics,omitempty"`
}

// PricePoint is one bar of a historical price series.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// MarketData is the market-data tool set.
type MarketData interface {
	// Search resolves a company name to ticker candidates.
	Search(ctx context.Context, name string, maxResults int) ([]TickerCandidate, error)
	// Info returns the flat info record for a ticker.
	Info(ctx context.Context, ticker string) (*StockInfo, error)
	// History returns the price series for a period such as "3mo".
	History(ctx context.Context, ticker, period string) ([]PricePoint, error)
	// Recommendations returns an analyst-recommendation summary.
	Recommendations(ctx context.Context, ticker string) (string, error)
	// WebSearch returns free-text news/context for a query.
	WebSearch(ctx context.Context, query string) (string, error)
}

// ScoredDocument is one retrieval hit with its relevance score.
type ScoredDocument struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
}

// DocumentIndex is the retrieval collaborator. An empty result is a valid
// return, not an error.
type DocumentIndex interface {
	Search(ctx context.Context, query string) ([]ScoredDocument, error)
}

// Renderer draws charts and exports reports to files. Paths returned are
// relative to the process working directory.
type Renderer interface {
	DrawPriceChart(ctx context.Context, analysis *model.AnalysisResult, outputPath string) (string, error)
	DrawValuationChart(ctx context.Context, analysis *model.AnalysisResult, outputPath string) (string, error)
	// Export writes the report text in the given format (pdf, md, txt),
	// embedding chart references where the format supports them.
	Export(ctx context.Context, text, format, outputPath string, chartPaths []string) (string, error)
}

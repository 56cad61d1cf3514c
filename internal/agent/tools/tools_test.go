package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-core-v1/server/internal/agent/model"
)

func TestMemoryMarketSearch(t *testing.T) {
	m := NewMemoryMarketData()
	ctx := context.Background()

	tests := []struct {
		name       string
		query      string
		maxResults int
		wantTicker string
		wantEmpty  bool
	}{
		{name: "korean alias", query: "삼성전자", maxResults: 1, wantTicker: "005930.KS"},
		{name: "english name", query: "apple", maxResults: 1, wantTicker: "AAPL"},
		{name: "ticker substring", query: "msft", maxResults: 1, wantTicker: "MSFT"},
		{name: "unknown company", query: "없는회사", maxResults: 1, wantEmpty: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Search(ctx, tt.query, tt.maxResults)
			require.NoError(t, err)
			if tt.wantEmpty {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantTicker, got[0].Ticker)
		})
	}

	_, err := m.Search(ctx, "   ", 1)
	assert.Error(t, err)
}

func TestMemoryMarketHistoryAndInfo(t *testing.T) {
	m := NewMemoryMarketData()
	ctx := context.Background()

	info, err := m.Info(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", info.CompanyName)

	// returned info must be a copy, not a pointer into the fixture
	info.CompanyName = "mutated"
	again, err := m.Info(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", again.CompanyName)

	_, err = m.Info(ctx, "NOPE")
	assert.Error(t, err)

	points, err := m.History(ctx, "AAPL", "1mo")
	require.NoError(t, err)
	assert.Len(t, points, 22)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.High, p.Close)
		assert.LessOrEqual(t, p.Low, p.Close)
	}

	year, err := m.History(ctx, "AAPL", "1y")
	require.NoError(t, err)
	assert.Len(t, year, 252)
}

func TestMemoryIndexSearch(t *testing.T) {
	idx := NewMemoryDocumentIndex()
	ctx := context.Background()

	hits, err := idx.Search(ctx, "레버리지 ETF의 위험이 뭔가요?")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "financial_glossary.pdf", hits[0].Source)
	assert.Contains(t, hits[0].Content, "레버리지")
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}

	none, err := idx.Search(ctx, "오늘 점심 뭐 먹지")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileRendererCharts(t *testing.T) {
	r := NewFileRenderer()
	ctx := context.Background()
	dir := t.TempDir()

	single := &model.AnalysisResult{
		AnalysisType: model.AnalysisSingle,
		Ticker:       "AAPL",
		CompanyName:  "Apple Inc.",
		CurrentPrice: 228.5,
		Metrics:      map[string]any{"52week_high": 237.2, "52week_low": 164.1, "pe_ratio": 34.2},
	}

	path, err := r.DrawPriceChart(ctx, single, filepath.Join(dir, "price.svg"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
	assert.Contains(t, string(data), "Apple Inc. price")

	comparison := &model.AnalysisResult{
		AnalysisType: model.AnalysisComparison,
		Stocks: []model.StockSummary{
			{Ticker: "AAPL", Metrics: map[string]any{"pe_ratio": 34.2}},
			{Ticker: "MSFT", Metrics: map[string]any{"pe_ratio": 36.1}},
		},
	}
	path, err = r.DrawValuationChart(ctx, comparison, filepath.Join(dir, "val.svg"))
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AAPL")
	assert.Contains(t, string(data), "MSFT")

	_, err = r.DrawPriceChart(ctx, nil, filepath.Join(dir, "nil.svg"))
	assert.Error(t, err)
}

func TestFileRendererExport(t *testing.T) {
	r := NewFileRenderer()
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		format  string
		charts  []string
		want    string
		wantErr bool
	}{
		{name: "markdown embeds charts", format: "md", charts: []string{"charts/a.svg"}, want: "![chart](charts/a.svg)"},
		{name: "plain text", format: "txt", want: "# 보고서"},
		{name: "pdf header", format: "pdf", want: "%PDF-1.4"},
		{name: "unknown format", format: "docx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, "report."+tt.format)
			path, err := r.Export(ctx, "# 보고서\n\n본문 (괄호) 포함", tt.format, out, tt.charts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.True(t, strings.Contains(string(data), tt.want), "output missing %q", tt.want)
		})
	}
}

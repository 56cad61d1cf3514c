package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MemoryMarketData is an in-memory MarketData backed by fixture listings.
// It stands in for a real market-data provider in local runs and tests.
type MemoryMarketData struct {
	listings []listing
}

type listing struct {
	info    StockInfo
	aliases []string
	news    string
	rec     string
}

func NewMemoryMarketData() *MemoryMarketData {
	return &MemoryMarketData{listings: defaultListings}
}

func (m *MemoryMarketData) Search(ctx context.Context, name string, maxResults int) ([]TickerCandidate, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	var out []TickerCandidate
	for _, l := range m.listings {
		if !l.matches(query) {
			continue
		}
		out = append(out, TickerCandidate{
			Ticker:   l.info.Ticker,
			Name:     l.info.CompanyName,
			Exchange: l.info.Sector,
		})
		if len(out) >= maxResults {
			break
		}
	}
	return out, nil
}

func (m *MemoryMarketData) Info(ctx context.Context, ticker string) (*StockInfo, error) {
	for _, l := range m.listings {
		if l.info.Ticker == ticker {
			info := l.info
			return &info, nil
		}
	}
	return nil, fmt.Errorf("unknown ticker %q", ticker)
}

func (m *MemoryMarketData) History(ctx context.Context, ticker, period string) ([]PricePoint, error) {
	info, err := m.Info(ctx, ticker)
	if err != nil {
		return nil, err
	}

	days := periodDays(period)
	base := info.CurrentPrice
	points := make([]PricePoint, 0, days)
	day := time.Now().AddDate(0, 0, -days)
	for i := 0; i < days; i++ {
		// deterministic synthetic walk around the current price
		drift := float64((i*37)%21-10) / 200.0
		close := base * (1 + drift)
		points = append(points, PricePoint{
			Date:   day.AddDate(0, 0, i),
			Open:   close * 0.995,
			High:   close * 1.01,
			Low:    close * 0.99,
			Close:  close,
			Volume: int64(1_000_000 + (i*7919)%500_000),
		})
	}
	return points, nil
}

func (m *MemoryMarketData) Recommendations(ctx context.Context, ticker string) (string, error) {
	for _, l := range m.listings {
		if l.info.Ticker == ticker {
			return l.rec, nil
		}
	}
	return "", fmt.Errorf("unknown ticker %q", ticker)
}

func (m *MemoryMarketData) WebSearch(ctx context.Context, query string) (string, error) {
	q := strings.ToLower(query)
	for _, l := range m.listings {
		if strings.Contains(q, strings.ToLower(l.info.Ticker)) || l.matches(q) {
			return l.news, nil
		}
	}
	return "", nil
}

func (l listing) matches(query string) bool {
	if strings.Contains(strings.ToLower(l.info.CompanyName), query) ||
		strings.Contains(strings.ToLower(l.info.Ticker), query) {
		return true
	}
	for _, a := range l.aliases {
		if strings.Contains(strings.ToLower(a), query) || strings.Contains(query, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

func periodDays(period string) int {
	switch period {
	case "1mo":
		return 22
	case "6mo":
		return 126
	case "1y":
		return 252
	default: // "3mo"
		return 63
	}
}

var defaultListings = []listing{
	{
		info: StockInfo{
			Ticker:       "005930.KS",
			CompanyName:  "Samsung Electronics",
			Sector:       "Technology",
			CurrentPrice: 71000,
			Metrics: map[string]any{
				"pe_ratio":     10.5,
				"market_cap":   420_000_000_000_000.0,
				"52week_high":  88000.0,
				"52week_low":   56000.0,
				"dividend_pct": 2.1,
			},
		},
		aliases: []string{"삼성전자", "삼성", "samsung"},
		news:    "Samsung Electronics shares track the memory-chip cycle; analysts flag HBM demand from AI accelerators as the main catalyst.",
		rec:     "Buy: 24, Hold: 8, Sell: 1 (consensus: buy)",
	},
	{
		info: StockInfo{
			Ticker:       "AAPL",
			CompanyName:  "Apple Inc.",
			Sector:       "Technology",
			CurrentPrice: 228.5,
			Metrics: map[string]any{
				"pe_ratio":    34.2,
				"market_cap":  3_500_000_000_000.0,
				"52week_high": 237.2,
				"52week_low":  164.1,
			},
		},
		aliases: []string{"애플", "apple"},
		news:    "Apple's services segment keeps growing double digits while iPhone demand stays seasonal; buybacks support the share price.",
		rec:     "Buy: 30, Hold: 12, Sell: 2 (consensus: buy)",
	},
	{
		info: StockInfo{
			Ticker:       "TSLA",
			CompanyName:  "Tesla, Inc.",
			Sector:       "Consumer Cyclical",
			CurrentPrice: 242.3,
			Metrics: map[string]any{
				"pe_ratio":    68.9,
				"market_cap":  770_000_000_000.0,
				"52week_high": 299.3,
				"52week_low":  138.8,
			},
		},
		aliases: []string{"테슬라", "tesla"},
		news:    "Tesla margins remain under pressure from price cuts; robotaxi timeline dominates the bull case.",
		rec:     "Buy: 14, Hold: 20, Sell: 9 (consensus: hold)",
	},
	{
		info: StockInfo{
			Ticker:       "MSFT",
			CompanyName:  "Microsoft Corporation",
			Sector:       "Technology",
			CurrentPrice: 412.8,
			Metrics: map[string]any{
				"pe_ratio":    36.1,
				"market_cap":  3_100_000_000_000.0,
				"52week_high": 430.8,
				"52week_low":  309.4,
			},
		},
		aliases: []string{"마이크로소프트", "microsoft"},
		news:    "Microsoft Azure growth re-accelerates on AI workloads; Copilot attach rates are the number analysts watch.",
		rec:     "Buy: 33, Hold: 5, Sell: 0 (consensus: strong buy)",
	},
	{
		info: StockInfo{
			Ticker:       "035420.KS",
			CompanyName:  "NAVER Corporation",
			Sector:       "Communication Services",
			CurrentPrice: 189500,
			Metrics: map[string]any{
				"pe_ratio":    28.4,
				"market_cap":  31_000_000_000_000.0,
				"52week_high": 247500.0,
				"52week_low":  151000.0,
			},
		},
		aliases: []string{"네이버", "naver"},
		news:    "NAVER's commerce and fintech arms offset slowing search-ad growth; HyperCLOVA X adoption is early.",
		rec:     "Buy: 18, Hold: 10, Sell: 2 (consensus: buy)",
	},
}

var _ MarketData = (*MemoryMarketData)(nil)

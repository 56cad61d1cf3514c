package tools

import (
	"context"
	"sort"
	"strings"
)

// MemoryDocumentIndex is an in-memory DocumentIndex over a small glossary of
// finance documents, scored by naive term overlap. It returns an empty slice
// when nothing matches, which the workflow treats as the trigger for the
// analyst fallback.
type MemoryDocumentIndex struct {
	docs []indexedDoc
}

type indexedDoc struct {
	content string
	source  string
	page    int
	terms   []string
}

func NewMemoryDocumentIndex() *MemoryDocumentIndex {
	return &MemoryDocumentIndex{docs: defaultDocs}
}

func (m *MemoryDocumentIndex) Search(ctx context.Context, query string) ([]ScoredDocument, error) {
	q := strings.ToLower(query)

	var hits []ScoredDocument
	for _, d := range m.docs {
		matched := 0
		for _, t := range d.terms {
			if strings.Contains(q, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, ScoredDocument{
			Content: d.content,
			Source:  d.source,
			Page:    d.page,
			Score:   float64(matched) / float64(len(d.terms)),
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

var defaultDocs = []indexedDoc{
	{
		content: "ETF(상장지수펀드)는 특정 지수의 수익률을 추종하도록 설계되어 거래소에 상장된 펀드입니다. 개별 주식처럼 실시간으로 매매할 수 있으며, 소액으로 분산 투자가 가능합니다.",
		source:  "financial_glossary.pdf",
		page:    12,
		terms:   []string{"etf", "상장지수", "지수펀드"},
	},
	{
		content: "레버리지 ETF는 기초 지수 일일 수익률의 2배 또는 3배를 추종합니다. 일일 복리 효과 때문에 장기 보유 시 기초 지수 누적 수익률과 크게 괴리될 수 있어 변동성 장세에서 손실 위험이 큽니다.",
		source:  "financial_glossary.pdf",
		page:    14,
		terms:   []string{"레버리지", "etf", "위험"},
	},
	{
		content: "PER(주가수익비율)은 주가를 주당순이익으로 나눈 값으로, 기업의 이익 대비 주가 수준을 나타냅니다. 업종 평균과 비교하여 고평가/저평가를 판단하는 대표적인 밸류에이션 지표입니다.",
		source:  "financial_glossary.pdf",
		page:    31,
		terms:   []string{"per", "주가수익", "밸류에이션"},
	},
	{
		content: "나스닥(NASDAQ)은 미국의 전자 증권거래소로, 기술주 중심의 상장 구조를 갖고 있습니다. 나스닥 종합지수는 상장된 전 종목을, 나스닥 100은 시가총액 상위 비금융 100개 종목을 추종합니다.",
		source:  "market_guide.pdf",
		page:    5,
		terms:   []string{"나스닥", "nasdaq"},
	},
	{
		content: "채권은 정부나 기업이 자금을 조달하기 위해 발행하는 확정금리부 증권입니다. 금리가 오르면 채권 가격은 하락하며, 듀레이션이 길수록 금리 민감도가 커집니다.",
		source:  "financial_glossary.pdf",
		page:    45,
		terms:   []string{"채권", "금리", "듀레이션"},
	},
	{
		content: "배당수익률은 주당 배당금을 현재 주가로 나눈 비율입니다. 배당 성장의 지속 가능성은 배당성향과 잉여현금흐름으로 함께 판단해야 합니다.",
		source:  "financial_glossary.pdf",
		page:    52,
		terms:   []string{"배당", "수익률"},
	},
}

var _ DocumentIndex = (*MemoryDocumentIndex)(nil)

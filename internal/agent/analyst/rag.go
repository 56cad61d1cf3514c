package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core-v1/server/internal/agent/graph/prompts"
	"github.com/finsight-core-v1/server/internal/agent/model"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

// Retrieve answers a question from the document index. found is false when
// the index returned no hits, which tells the caller to fall back to the
// full analysis pipeline instead of answering from nothing.
func (a *Analyst) Retrieve(ctx context.Context, question string) (result *model.AnalysisResult, sources []string, found bool) {
	docs, err := a.index.Search(ctx, question)
	if err != nil {
		logx.Error().Err(err).Msg("document search failed")
		return nil, nil, false
	}
	if len(docs) == 0 {
		return nil, nil, false
	}

	contents := make([]string, 0, len(docs))
	sources = make([]string, 0, len(docs))
	for _, d := range docs {
		contents = append(contents, d.Content)
		// stored pages are zero-based; display them one-based
		sources = append(sources, fmt.Sprintf("- (score=%.2f) %s p.%d", d.Score, d.Source, d.Page+1))
	}

	answer := a.answerFromDocuments(ctx, question, contents)

	return &model.AnalysisResult{
		AnalysisType: model.AnalysisRAG,
		Query:        question,
		Documents:    contents,
		Analysis:     answer,
	}, sources, true
}

func (a *Analyst) answerFromDocuments(ctx context.Context, question string, contents []string) string {
	system, perr := prompts.RenderRAGAnswerSystem(ctx)
	if perr == nil {
		var b strings.Builder
		fmt.Fprintf(&b, "질문: %s\n\n문서 발췌:\n", question)
		for i, c := range contents {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
		}
		answer, err := a.gw.Complete(ctx, []*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(b.String()),
		})
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer)
		}
		logx.Error().Err(err).Msg("document answer synthesis failed, using excerpts")
	} else {
		logx.Error().Err(perr).Msg("document answer prompt render failed")
	}

	var b strings.Builder
	b.WriteString("관련 문서에서 찾은 내용입니다.\n\n")
	for _, c := range contents {
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

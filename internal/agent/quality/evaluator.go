// Package quality implements the answer quality evaluator that guards the
// retry loop. Cheap deterministic gates run before the LLM rubric so obvious
// failures never cost a model call. Evaluate never returns an error.
package quality

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"github.com/finsight-core-v1/server/internal/agent/graph/prompts"
	"github.com/finsight-core-v1/server/internal/agent/heuristics"
	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
	logx "github.com/finsight-core-v1/server/pkg/logger"
)

// minAnswerRunes is the length below which an answer is considered empty.
const minAnswerRunes = 10

var rubricCriteria = []string{"accuracy", "completeness", "relevance", "clarity"}

type Evaluator struct {
	gw        llm.Gateway
	success   heuristics.Classifier
	critical  heuristics.Classifier
	errVocab  heuristics.Classifier
	threshold float64
}

func New(gw llm.Gateway, cfg model.WorkflowConfig) *Evaluator {
	return &Evaluator{
		gw:        gw,
		success:   heuristics.NewSuccessMarkers(),
		critical:  heuristics.NewCriticalFailures(),
		errVocab:  heuristics.NewErrorVocabulary(),
		threshold: cfg.QualityThreshold,
	}
}

// Evaluate scores one answer against the original question. Gate order
// matters: emptiness first, then failure phrase detection, then the LLM
// rubric. A success marker ("저장되었습니다 ✓") suppresses the phrase gates,
// since a confirmation can legitimately mention an earlier error, but the
// answer is still rubric-scored.
func (e *Evaluator) Evaluate(ctx context.Context, question, answer string) *model.QualityResult {
	trimmed := strings.TrimSpace(answer)

	if utf8.RuneCountInString(trimmed) < minAnswerRunes {
		return &model.QualityResult{Status: "fail", FailureReason: model.FailureEmpty}
	}

	if !e.success.Matches(trimmed) {
		if e.critical.Matches(trimmed) {
			return &model.QualityResult{Status: "fail", FailureReason: model.FailureError}
		}
		if e.errVocab.Matches(trimmed) {
			return &model.QualityResult{Status: "fail", FailureReason: model.FailureError}
		}
	}

	return e.rubric(ctx, question, trimmed)
}

// rubric asks the LLM to score the answer on four criteria and averages the
// lines that parse. All-unparseable output and LLM failures both count as an
// error-class failure rather than propagating.
func (e *Evaluator) rubric(ctx context.Context, question, answer string) *model.QualityResult {
	system, err := prompts.RenderQualityRubricSystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("rubric prompt render failed")
		return &model.QualityResult{Status: "fail", FailureReason: model.FailureError}
	}

	human := fmt.Sprintf("질문:\n%s\n\n답변:\n%s", question, answer)
	reply, err := e.gw.Complete(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(human),
	})
	if err != nil {
		logx.Error().Err(err).Msg("rubric evaluation call failed")
		return &model.QualityResult{Status: "fail", FailureReason: model.FailureError}
	}

	criteria := parseScores(reply)
	if len(criteria) == 0 {
		logx.Warn().Str("reply", reply).Msg("rubric reply had no parseable scores")
		return &model.QualityResult{Status: "fail", FailureReason: model.FailureError}
	}

	var sum int
	for _, v := range criteria {
		sum += v
	}
	mean := float64(sum) / float64(len(criteria))

	result := &model.QualityResult{Score: mean, Criteria: criteria}
	if mean >= e.threshold {
		result.Status = "pass"
	} else {
		result.Status = "fail"
		result.FailureReason = model.FailureLowQuality
	}
	return result
}

// parseScores extracts "criterion: N" lines for the known criteria, clamping
// scores to the 1..5 scale. Lines that do not parse are skipped.
func parseScores(reply string) map[string]int {
	out := make(map[string]int)
	for _, line := range strings.Split(reply, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.ToLower(strings.TrimSpace(strings.TrimLeft(label, "-* ")))
		if !isRubricCriterion(label) {
			continue
		}
		n, err := strconv.Atoi(firstDigit(value))
		if err != nil {
			continue
		}
		if n < 1 {
			n = 1
		} else if n > 5 {
			n = 5
		}
		out[label] = n
	}
	return out
}

func isRubricCriterion(label string) bool {
	for _, c := range rubricCriteria {
		if label == c {
			return true
		}
	}
	return false
}

// firstDigit returns the first digit run in s, so "4/5" and "4 점" both
// yield "4".
func firstDigit(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

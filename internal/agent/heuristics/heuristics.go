// Package heuristics isolates the fuzzy keyword-based intent signals used by
// the workflow (success markers, critical failure phrases, follow-up
// detection) behind a small interface, so any of them can later be replaced
// by a learned classifier without touching the state machine.
package heuristics

import (
	"strings"
)

// Classifier reports whether a text matches one named intent signal.
type Classifier interface {
	// Name identifies the signal, for logging.
	Name() string
	// Matches reports whether the text carries the signal.
	Matches(text string) bool
}

// keywordSet matches when any of its substrings occurs in the text.
// caseFold controls whether matching lowercases the input first; the Korean
// phrase sets are case-free, the English error vocabulary is not.
type keywordSet struct {
	name     string
	keywords []string
	caseFold bool
}

func (k *keywordSet) Name() string { return k.name }

func (k *keywordSet) Matches(text string) bool {
	if k.caseFold {
		text = strings.ToLower(text)
	}
	for _, kw := range k.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// NewSuccessMarkers builds the classifier whose presence defeats the
// failure-phrase gates: a confirmation may mention an earlier error without
// being one.
func NewSuccessMarkers() Classifier {
	return &keywordSet{
		name: "success_markers",
		keywords: []string{
			"✓", "✔", "성공", "완료", "저장되었습니다", "저장됨",
			"생성되었습니다", "생성 완료", "saved", "completed", "successfully",
		},
	}
}

// NewCriticalFailures builds the classifier for fixed phrases that signal an
// unrecoverable failure in an answer.
func NewCriticalFailures() Classifier {
	return &keywordSet{
		name: "critical_failures",
		keywords: []string{
			"분석 데이터를 찾을 수 없습니다",
			"데이터를 찾을 수 없습니다",
			"질문이 비어 있어",
			"적합한 에이전트를 찾을 수 없습니다",
			"보고서를 생성하지 못했습니다",
			"답변을 드릴 수 없습니다",
			"처리할 수 없습니다",
			"오류가 발생했습니다",
		},
	}
}

// NewErrorVocabulary builds the classifier for generic error wording, deemed
// critical only when no success marker is present.
func NewErrorVocabulary() Classifier {
	return &keywordSet{
		name:     "error_vocabulary",
		keywords: []string{"error", "failed", "could not", "unable to", "오류", "실패"},
		caseFold: true,
	}
}

// NewFollowUpKeywords builds the classifier that detects follow-up requests
// referencing a prior analysis (chart/save/file vocabulary), enabling the
// graph's bypass straight to the report generator.
func NewFollowUpKeywords() Classifier {
	return &keywordSet{
		name: "follow_up_keywords",
		keywords: []string{
			"차트", "그래프", "저장", "파일", "pdf", "PDF",
			"마크다운", "다운로드", "chart", "save", "file", "export",
		},
		caseFold: false,
	}
}

package model

// ================ Config ================

type SessionConfig struct {
	TTL     string `envconfig:"SESSION_TTL" default:"24h"`
	History struct {
		MaxTurns int `envconfig:"SESSION_HISTORY_MAX_TURNS" default:"20"`
	}
}

type LLMConfig struct {
	Model       string  `envconfig:"LLM_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"LLM_TEMPERATURE" default:"0.2"`
	// CallTimeout bounds every single completion call; on timeout the caller
	// degrades to its fallback path instead of failing the whole turn.
	CallTimeout string `envconfig:"LLM_CALL_TIMEOUT" default:"60s"`
}

type WorkflowConfig struct {
	// RetryMax caps total rewrite-and-retry traversals per question.
	RetryMax int `envconfig:"WORKFLOW_RETRY_MAX" default:"2"`
	// SameFailureMax caps strictly consecutive identical failure reasons.
	SameFailureMax int `envconfig:"WORKFLOW_SAME_FAILURE_MAX" default:"2"`
	// QualityThreshold is the pass bar for the mean rubric score (1-5 scale).
	QualityThreshold float64 `envconfig:"WORKFLOW_QUALITY_THRESHOLD" default:"2.0"`
	// ShortRequestWordMax: requests at or under this word count never trigger
	// chart or save side effects, whatever the report plan says.
	ShortRequestWordMax int `envconfig:"WORKFLOW_SHORT_REQUEST_WORD_MAX" default:"3"`
}

// Normalize clamps misconfigured workflow limits to their minimum usable
// values so a bad env never disables the retry loop entirely.
func (w *WorkflowConfig) Normalize() {
	if w.RetryMax < 1 {
		w.RetryMax = 1
	}
	if w.SameFailureMax < 1 {
		w.SameFailureMax = 1
	}
	if w.QualityThreshold <= 0 {
		w.QualityThreshold = 2.0
	}
}

type ToolConfig struct {
	// HistoryPeriod is the default lookback window for price series.
	HistoryPeriod string `envconfig:"TOOL_HISTORY_PERIOD" default:"3mo"`
	ChartDir      string `envconfig:"TOOL_CHART_DIR" default:"charts"`
	ReportDir     string `envconfig:"TOOL_REPORT_DIR" default:"reports"`
}

package domain

import "time"

// Item is the persisted, deduplicated unit of content.
type Item struct {
	ID          string
	SourceID    string
	ExternalID  string
	Title       string
	Content     string
	URL         string
	Author      string
	PublishedAt time.Time
	FetchedAt   time.Time
	ContentHash string

	Priority      Priority
	PriorityScore int

	Read     bool
	Starred  bool
	Archived bool

	Analysis Analysis

	ClassifiedAt     *time.Time
	ClassifyAttempts int
}

// AnalysisSchemaVersion is bumped whenever Analysis changes shape.
const AnalysisSchemaVersion = 1

// Analysis is the typed replacement for the free-form item metadata map.
type Analysis struct {
	SchemaVersion int                `json:"schema_version"`
	Rules         *RuleAnalysis      `json:"rules,omitempty"`
	Classifier    *ClassifierOutcome `json:"classifier,omitempty"`
	LLM           *LLMOutcome        `json:"llm,omitempty"`
	Runs          []RunProvenance    `json:"runs,omitempty"`
	Source        map[string]any     `json:"source,omitempty"`
	// Extra keeps fields written by newer classifier versions.
	Extra map[string]any `json:"extra,omitempty"`
}

// RuleAnalysis records which rules contributed to the rule-derived score.
type RuleAnalysis struct {
	Matched        []string  `json:"matched"`
	TotalBoost     int       `json:"total_boost"`
	TargetPriority *Priority `json:"target_priority,omitempty"`
}

// ClassifierOutcome is the Stage A result kept for audit even when overridden.
type ClassifierOutcome struct {
	Relevant     bool      `json:"relevant"`
	Confidence   float64   `json:"relevance_confidence"`
	Priority     Priority  `json:"priority"`
	Score        int       `json:"score"`
	SkipLLM      bool      `json:"skip_llm"`
	SuggestedAK  string    `json:"suggested_ak,omitempty"`
	AKConfidence *float64  `json:"ak_confidence,omitempty"`
	At           time.Time `json:"at"`
}

// LLMOutcome is the parsed Stage B result.
type LLMOutcome struct {
	Relevant       bool      `json:"relevant"`
	Priority       Priority  `json:"priority"`
	Category       string    `json:"ak"`
	CategoryHint   string    `json:"ak_suggestion,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	TagSuggestions []string  `json:"tag_suggestions,omitempty"`
	Reasoning      string    `json:"reasoning,omitempty"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	TokensUsed     *int      `json:"tokens_used,omitempty"`
	At             time.Time `json:"at"`
}

// RunProvenance summarizes one orchestrator run against the item.
type RunProvenance struct {
	RunID          string    `json:"run_id"`
	At             time.Time `json:"at"`
	PriorityBefore Priority  `json:"priority_before"`
	PriorityAfter  Priority  `json:"priority_after"`
	ClassifierUsed bool      `json:"classifier_used"`
	LLMUsed        bool      `json:"llm_used"`
	LLMSkipped     bool      `json:"llm_skipped"`
	Deferred       bool      `json:"deferred"`
}

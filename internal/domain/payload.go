package domain

import "time"

// Budget limits one orchestration round.
type Budget struct {
	MaxTools int
	Timeout  time.Duration
}

// EnhancementPayload is the aggregated result of one orchestration round.
type EnhancementPayload struct {
	RoundID       string            `json:"roundId"`
	Timestamp     time.Time         `json:"timestamp"`
	SceneAnalysis SceneAnalysis     `json:"sceneAnalysis"`
	ToolResults   []ToolCallOutcome `json:"toolResults"`
	Summary       string            `json:"summary"`
}

// GenerationType is the host's label for the kind of generation being run.
type GenerationType string

const (
	GenerationNormal      GenerationType = "normal"
	GenerationQuiet       GenerationType = "quiet"
	GenerationImpersonate GenerationType = "impersonate"
)

// Turn is one host generation event.
type Turn struct {
	Context AnalysisContext `json:"context"`
	Type    GenerationType  `json:"type,omitempty"`
	DryRun  bool            `json:"dryRun,omitempty"`
}

// EngineState is the orchestration engine lifecycle state.
type EngineState string

const (
	EngineUninitialized EngineState = "uninitialized"
	EngineInitializing  EngineState = "initializing"
	EngineReady         EngineState = "ready"
	EngineDisabled      EngineState = "disabled"
)

type Stats struct {
	TotalGenerations   int64  `json:"totalGenerations"`
	ToolCallsTriggered int64  `json:"toolCallsTriggered"`
	SuccessfulCalls    int64  `json:"successfulCalls"`
	FailedCalls        int64  `json:"failedCalls"`
	CacheHits          int64  `json:"cacheHits"`
	SuccessRate        string `json:"successRate"`
}

package domain

import "time"

const (
	// DefaultToolTimeout bounds a single tool request attempt.
	DefaultToolTimeout = 5 * time.Second
	// DefaultToolMaxRetries is the number of retries after the first attempt.
	DefaultToolMaxRetries = 2
	// DefaultToolCacheTimeout is how long a cached tool result stays valid.
	DefaultToolCacheTimeout = 5 * time.Minute
	// DefaultToolPriority is used when a tool config omits priority.
	DefaultToolPriority = 1.0
	// DefaultRetryBackoff is the linear backoff step between attempts.
	DefaultRetryBackoff = time.Second
	// DefaultPingTimeout bounds a liveness probe.
	DefaultPingTimeout = 2 * time.Second
)

const (
	DefaultAutoTrigger           = true
	DefaultMaxToolsPerGeneration = 3
	DefaultOrchestrationTimeout  = 8 * time.Second
	DefaultConfidenceThreshold   = 0.4
	DefaultEnableCaching         = true
	DefaultDebugMode             = false
)

const (
	// MaxRecommendedTools caps the candidate list produced by the classifier.
	MaxRecommendedTools = 5
	// HistoryWindow is the number of trailing chat messages analyzed and forwarded.
	HistoryWindow = 5
	// SceneEmitThreshold is the score a scene must exceed to be reported.
	SceneEmitThreshold = 0.3
	// CandidateFloor is the final priority a candidate must exceed to be invoked.
	CandidateFloor = 0.3
	// PersonalityWeight scales scenes found in the personality field.
	PersonalityWeight = 0.7
)

const (
	DefaultAdminListenAddress   = "127.0.0.1:8790"
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultHealthSchedule       = "@every 1m"
	DefaultCatalogPath          = "tools.yaml"
	DefaultSettingsPath         = "data/settings.db"
	ClientName                  = "mcpscene"
	ClientVersion               = "0.1.0"
)

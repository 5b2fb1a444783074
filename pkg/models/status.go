package models

// Work item statuses used throughout the codebase. The four statuses map
// one-to-one onto the queue document's buckets.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Failure classes reported by the worker. Exactly one class per terminal report.
const (
	ClassSuccess        = "success"
	ClassSpecFailure    = "spec-failure"
	ClassRegression     = "regression"
	ClassInfrastructure = "infrastructure"
	ClassQualityFailure = "quality-failure"
	ClassUnknown        = "unknown"
)

// ParseFailureClass normalizes a reported class string; anything unrecognized
// maps to ClassUnknown rather than erroring so a garbled worker report still
// flows through the retry policy.
func ParseFailureClass(s string) string {
	switch s {
	case ClassSuccess, ClassSpecFailure, ClassRegression, ClassInfrastructure, ClassQualityFailure:
		return s
	default:
		return ClassUnknown
	}
}

// Tracker label conventions mirrored onto issues and PRs.
const (
	LabelSpec               = "spec"
	LabelQueued             = "status:queued"
	LabelInProgress         = "status:in-progress"
	LabelManualIntervention = "status:manual-intervention"
	LabelRetryPrefix        = "retry:"    // retry:2/3
	LabelPriorityPrefix     = "priority:" // priority:10240
)

// Default limits.
const (
	DefaultMaxConcurrent   = 3
	DefaultMaxRetries      = 3
	DefaultErrorHistoryMax = 20
	DefaultQueueVersion    = 1
	DefaultTrackerPageSize = 100
)

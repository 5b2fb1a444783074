// Package models provides shared types for the specq queue document and external tools.
// These types mirror the persisted JSON and are stable for use by other consumers.
package models

import "time"

// WorkItem is one discrete unit of work: an intentionally failing test spec
// discovered in the corpus, waiting to be implemented by the coding worker.
type WorkItem struct {
	SpecID      string `json:"spec_id"`
	FilePath    string `json:"file_path"`
	TestName    string `json:"test_name,omitempty"`
	Description string `json:"description,omitempty"`
	FeaturePath string `json:"feature_path,omitempty"`
	Line        int    `json:"line,omitempty"`
	Priority    int64  `json:"priority"`
	Status      string `json:"status"`

	Attempts int         `json:"attempts"`
	Errors   []SpecError `json:"errors,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// External tracker linkage (set once populate/dispatch have run).
	IssueNumber *int    `json:"issue_number,omitempty"`
	PRNumber    *int    `json:"pr_number,omitempty"`
	Branch      *string `json:"branch,omitempty"`

	// Set when the item escalates to manual intervention.
	FailureReason  string `json:"failure_reason,omitempty"`
	RequiredAction string `json:"required_action,omitempty"`
}

// SpecError is one immutable per-attempt failure record on a work item.
type SpecError struct {
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	Detail        string    `json:"detail,omitempty"`
	AffectedSpecs []string  `json:"affected_specs,omitempty"`
}

// QueueConfig holds the tunables persisted alongside the queue buckets.
type QueueConfig struct {
	MaxConcurrent int           `json:"max_concurrent"`
	MaxRetries    int           `json:"max_retries"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// QueueMetrics carries running counters persisted with the queue document.
type QueueMetrics struct {
	TotalProcessed      int `json:"total_processed"`
	TotalSucceeded      int `json:"total_succeeded"`
	TotalFailed         int `json:"total_failed"`
	InfraRetries        int `json:"infra_retries"`
	ManualInterventions int `json:"manual_interventions"`
}

// QueueState is the aggregate root persisted as one JSON document. The four
// buckets are a partition of every known item; ActiveFiles and ActiveSpecs are
// the concurrency guard sets mirroring the active bucket.
type QueueState struct {
	Version   int                  `json:"version"`
	Pending   map[string]*WorkItem `json:"pending"`
	Active    map[string]*WorkItem `json:"active"`
	Completed map[string]*WorkItem `json:"completed"`
	Failed    map[string]*WorkItem `json:"failed"`

	ActiveFiles []string `json:"active_files"`
	ActiveSpecs []string `json:"active_specs"`

	Config    QueueConfig  `json:"config"`
	Metrics   QueueMetrics `json:"metrics"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Dependency is one resolved import of a work item's subject file.
type Dependency struct {
	ImportPath   string `json:"import_path"`
	ResolvedPath string `json:"resolved_path"`
	Exists       bool   `json:"exists"`
}

// DependencyInfo is the advisory readiness record for one work item.
type DependencyInfo struct {
	SpecID       string       `json:"spec_id"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Missing      []string     `json:"missing,omitempty"`
	Ready        bool         `json:"ready"`
}

// Lease is the ephemeral marker guarding the bulk populate path.
type Lease struct {
	Timestamp time.Time `json:"timestamp"`
	OwnerID   string    `json:"owner_id"`
}

// WorkerReport is the single terminal outcome a worker produces for one item.
type WorkerReport struct {
	SpecID        string   `json:"spec_id"`
	Class         string   `json:"class"`
	Message       string   `json:"message,omitempty"`
	Detail        string   `json:"detail,omitempty"`
	AffectedSpecs []string `json:"affected_specs,omitempty"`
	PRNumber      *int     `json:"pr_number,omitempty"`
	Branch        *string  `json:"branch,omitempty"`
}

// Package worker abstracts the external coding worker. The orchestrator
// hands over one assignment at a time and gets back exactly one terminal
// report; everything the worker does in between is opaque.
package worker

import (
	"context"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// Assignment is the unit of work handed to the worker: the spec to make
// pass plus enough context to act without consulting the queue.
type Assignment struct {
	SpecID      string             `json:"spec_id"`
	FilePath    string             `json:"file_path"`
	TestName    string             `json:"test_name,omitempty"`
	Description string             `json:"description,omitempty"`
	FeaturePath string             `json:"feature_path,omitempty"`
	Priority    int64              `json:"priority"`
	Attempt     int                `json:"attempt"`
	MaxRetries  int                `json:"max_retries"`
	PriorErrors []models.SpecError `json:"prior_errors,omitempty"`
	CorpusRoot  string             `json:"corpus_root,omitempty"`
	SourceRoot  string             `json:"source_root,omitempty"`
	// Branch is the branch the worker is expected to push its attempt to.
	Branch string `json:"branch,omitempty"`
}

// Runtime runs one assignment to a terminal report. A non-nil error means
// the system failed to obtain a report at all; callers treat that as an
// infrastructure failure, never as a verdict on the spec.
type Runtime interface {
	Name() string
	Run(ctx context.Context, a Assignment) (models.WorkerReport, error)
}

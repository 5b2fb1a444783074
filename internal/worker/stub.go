package worker

import (
	"context"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// StubRuntime is a deterministic local runtime for tests and dry runs. With
// no Handler it reports success for every assignment.
type StubRuntime struct {
	Handler func(Assignment) (models.WorkerReport, error)
}

func (s StubRuntime) Name() string { return "stub" }

func (s StubRuntime) Run(ctx context.Context, a Assignment) (models.WorkerReport, error) {
	if err := ctx.Err(); err != nil {
		return models.WorkerReport{}, err
	}
	if s.Handler != nil {
		return s.Handler(a)
	}
	return models.WorkerReport{
		SpecID:  a.SpecID,
		Class:   models.ClassSuccess,
		Message: "stub: ok",
	}, nil
}

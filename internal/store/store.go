package store

import (
	"context"

	"github.com/adnord/ownership-cli/internal/model"
)

// RunFilter specifies criteria for listing workflow runs.
type RunFilter struct {
	Status     model.RunStatus `json:"status,omitempty"`
	PropertyID string          `json:"property_id,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for workflow runs. A run is
// created when a property enters the pipeline, accumulates step logs as
// stages finish, and is completed exactly once with a terminal status.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, property model.PropertyRecord) (*model.WorkflowRun, error)
	AppendStep(ctx context.Context, runID string, step model.StepLog) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, runErr string, result *model.ResolutionResult) error
	GetRun(ctx context.Context, runID string) (*model.WorkflowRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.WorkflowRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

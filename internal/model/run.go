package model

import "time"

// RunStatus represents the overall state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StepStatus represents the state of a single workflow step.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepLog records one workflow transition for a property.
type StepLog struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    StepStatus     `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// DataQualityTier is the coarse confidence classification of an entire
// resolution result. High requires an official ownership record, a registry
// match, and at least one contact at or above the verification confidence;
// absence of the ownership record forces low unconditionally.
type DataQualityTier string

const (
	TierHigh   DataQualityTier = "high"
	TierMedium DataQualityTier = "medium"
	TierLow    DataQualityTier = "low"
)

// ResolutionResult is the per-property outcome of the pipeline.
type ResolutionResult struct {
	OwnerName        string                   `json:"owner_name"`
	RegistryID       string                   `json:"registry_id,omitempty"`
	OwnershipType    OwnershipType            `json:"ownership_type"`
	Ownership        *OfficialOwnershipRecord `json:"ownership,omitempty"`
	Match            *RegistryMatch           `json:"match,omitempty"`
	Contacts         []CandidateContact       `json:"contacts"`
	QualityTier      DataQualityTier          `json:"quality_tier"`
	QualityReason    string                   `json:"quality_reason,omitempty"`
	Corrections      []string                 `json:"corrections,omitempty"`
	ReadyForOutreach bool                     `json:"ready_for_outreach"`
	GateReason       string                   `json:"gate_reason,omitempty"`
}

// BestContact returns the highest-ranked contact, or nil when there are none.
// Contacts are kept in canonical order, so this is the first element.
func (r *ResolutionResult) BestContact() *CandidateContact {
	if len(r.Contacts) == 0 {
		return nil
	}
	return &r.Contacts[0]
}

// WorkflowRun tracks one property through the pipeline. Terminal once
// completed, failed, or cancelled.
type WorkflowRun struct {
	ID         string            `json:"id"`
	PropertyID string            `json:"property_id"`
	Property   PropertyRecord    `json:"property"`
	Steps      []StepLog         `json:"steps"`
	Status     RunStatus         `json:"status"`
	Error      string            `json:"error,omitempty"`
	Result     *ResolutionResult `json:"result,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at,omitempty"`
}

// Terminal reports whether the run has reached a terminal status.
func (r *WorkflowRun) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Package domain provides shared domain types for the FORGE pipeline agent.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library, google/uuid
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per architecture requirements.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/forge/internal/constants"
)

// TimelineRecord is the reportable state of one execution unit (job or task)
// within a timeline. One record exists per execution context; detail and
// debug records reuse the same shape.
//
// Example JSON representation:
//
//	{
//	    "id": "6f7a9c52-...",
//	    "parent_id": "b3d2e1f0-...",
//	    "timeline_id": "0a1b2c3d-...",
//	    "order": 1,
//	    "type": "Task",
//	    "name": "Run unit tests",
//	    "ref_name": "run_unit_tests",
//	    "state": "inProgress",
//	    "percent_complete": 50,
//	    "error_count": 0,
//	    "warning_count": 1,
//	    "issues": [...]
//	}
type TimelineRecord struct {
	// ID is the unique identifier of this record.
	ID uuid.UUID `json:"id"`

	// ParentID links task records to their parent record.
	// Nil for the job root.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// TimelineID groups records belonging to one reporting stream.
	TimelineID uuid.UUID `json:"timeline_id"`

	// Order is the insertion order among siblings, assigned by the creator.
	// Nil for the job root, whose order is assigned by the orchestrator.
	Order *int `json:"order,omitempty"`

	// Type distinguishes the job root from task records.
	Type constants.RecordType `json:"type"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// RefName is the stable machine-readable identifier.
	RefName string `json:"ref_name"`

	// State is the current lifecycle state (pending, inProgress, completed).
	// Transitions are strictly forward.
	State constants.TimelineRecordState `json:"state"`

	// PercentComplete is the progress in [0,100]. Non-decreasing within a
	// context; forced to 100 at completion.
	PercentComplete int `json:"percent_complete"`

	// CurrentOperation is a free-text label of what the unit is doing now.
	// Last write wins.
	CurrentOperation string `json:"current_operation,omitempty"`

	// StartTime is when the unit started (nil until Start).
	StartTime *time.Time `json:"start_time,omitempty"`

	// FinishTime is when the unit completed. Set exactly once, at
	// completion; nil iff State is not completed.
	FinishTime *time.Time `json:"finish_time,omitempty"`

	// Result is the unit outcome. Nil until completion; defaults to
	// succeeded if never explicitly set.
	Result *constants.TaskResult `json:"result,omitempty"`

	// ResultCode carries free-form machine detail about the result.
	ResultCode string `json:"result_code,omitempty"`

	// ErrorCount counts every reported error, never capped.
	ErrorCount int `json:"error_count"`

	// WarningCount counts every reported warning, never capped.
	WarningCount int `json:"warning_count"`

	// Issues is the display list of reported issues, capped at
	// constants.MaxIssueCount entries. Entries past the cap are dropped
	// but still counted.
	Issues []Issue `json:"issues,omitempty"`

	// Outputs maps variable names to values for variables explicitly
	// flagged as job outputs.
	Outputs map[string]VariableValue `json:"outputs,omitempty"`

	// DetailTimelineID references the record's detail timeline, allocated
	// lazily on the first detail update.
	DetailTimelineID *uuid.UUID `json:"detail_timeline_id,omitempty"`
}

// Issue is one reported error or warning attached to a timeline record.
type Issue struct {
	// Kind classifies the issue (error or warning).
	Kind constants.IssueKind `json:"kind"`

	// Message is the redacted, human-readable issue text.
	Message string `json:"message"`
}

// VariableValue is a variable value paired with its secret flag.
type VariableValue struct {
	// Value is the variable value. Stored as provided; redaction happens
	// at the logging boundary, not here.
	Value string `json:"value"`

	// IsSecret marks the value for redaction in logs and display.
	IsSecret bool `json:"is_secret"`
}

// Clone returns a deep copy of the record. The upload queue operates on
// snapshots so that in-place mutation by the owning context cannot race
// with asynchronous delivery.
func (r *TimelineRecord) Clone() *TimelineRecord {
	cp := *r
	if r.ParentID != nil {
		id := *r.ParentID
		cp.ParentID = &id
	}
	if r.Order != nil {
		o := *r.Order
		cp.Order = &o
	}
	if r.StartTime != nil {
		t := *r.StartTime
		cp.StartTime = &t
	}
	if r.FinishTime != nil {
		t := *r.FinishTime
		cp.FinishTime = &t
	}
	if r.Result != nil {
		res := *r.Result
		cp.Result = &res
	}
	if r.DetailTimelineID != nil {
		id := *r.DetailTimelineID
		cp.DetailTimelineID = &id
	}
	if r.Issues != nil {
		cp.Issues = make([]Issue, len(r.Issues))
		copy(cp.Issues, r.Issues)
	}
	if r.Outputs != nil {
		cp.Outputs = make(map[string]VariableValue, len(r.Outputs))
		for k, v := range r.Outputs {
			cp.Outputs[k] = v
		}
	}
	return &cp
}

// Merge applies a sparse patch to the record: each field is overwritten only
// when the incoming value is present. Used by the detail record table, where
// repeated updates for the same record arrive as partial patches.
func (r *TimelineRecord) Merge(patch *TimelineRecord) {
	if patch.ParentID != nil {
		id := *patch.ParentID
		r.ParentID = &id
	}
	if patch.Order != nil {
		o := *patch.Order
		r.Order = &o
	}
	if patch.Type != "" {
		r.Type = patch.Type
	}
	if patch.Name != "" {
		r.Name = patch.Name
	}
	if patch.RefName != "" {
		r.RefName = patch.RefName
	}
	if patch.State != "" {
		r.State = patch.State
	}
	if patch.PercentComplete > r.PercentComplete {
		r.PercentComplete = patch.PercentComplete
	}
	if patch.CurrentOperation != "" {
		r.CurrentOperation = patch.CurrentOperation
	}
	if patch.StartTime != nil {
		t := *patch.StartTime
		r.StartTime = &t
	}
	if patch.FinishTime != nil {
		t := *patch.FinishTime
		r.FinishTime = &t
	}
	if patch.Result != nil {
		res := *patch.Result
		r.Result = &res
	}
	if patch.ResultCode != "" {
		r.ResultCode = patch.ResultCode
	}
	if patch.ErrorCount > 0 {
		r.ErrorCount = patch.ErrorCount
	}
	if patch.WarningCount > 0 {
		r.WarningCount = patch.WarningCount
	}
	if len(patch.Issues) > 0 {
		r.Issues = make([]Issue, len(patch.Issues))
		copy(r.Issues, patch.Issues)
	}
	if len(patch.Outputs) > 0 {
		if r.Outputs == nil {
			r.Outputs = make(map[string]VariableValue, len(patch.Outputs))
		}
		for k, v := range patch.Outputs {
			r.Outputs[k] = v
		}
	}
}

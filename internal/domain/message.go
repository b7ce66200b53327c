package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// JobMessage is the inbound message from the orchestrator that initializes
// one job-level execution context. Validation failures on any required field
// are fatal to job initialization.
type JobMessage struct {
	// JobID identifies the job record within the timeline.
	JobID uuid.UUID `json:"job_id" yaml:"job_id"`

	// JobName is the human-readable display name of the job.
	JobName string `json:"job_name" yaml:"job_name"`

	// JobRefName is the stable machine-readable job identifier.
	JobRefName string `json:"job_ref_name" yaml:"job_ref_name"`

	// TimelineID is the primary reporting stream for this job.
	TimelineID uuid.UUID `json:"timeline_id" yaml:"timeline_id"`

	// Environment carries endpoints, variables, mask hints, and secure
	// files supplied by the orchestrator. Required.
	Environment *JobEnvironment `json:"environment" yaml:"environment"`

	// Plan describes the orchestration plan this job belongs to and yields
	// the feature flags shared across the tree. Required.
	Plan *PlanDescriptor `json:"plan" yaml:"plan"`

	// Steps is the ordered list of task descriptors the driver will run.
	Steps []StepDescriptor `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// JobEnvironment holds the orchestrator-supplied execution environment.
type JobEnvironment struct {
	// Endpoints are the service connections available to tasks.
	// Required (may be empty, but not nil).
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`

	// Variables are the initial key/value pairs, pre-expansion.
	// Required (may be empty, but not nil).
	Variables map[string]string `json:"variables" yaml:"variables"`

	// MaskHints name the variables whose values must be registered with
	// the secret masker before any logging starts.
	MaskHints []MaskHint `json:"mask_hints,omitempty" yaml:"mask_hints,omitempty"`

	// SecureFiles lists orchestrator-managed files tasks may download.
	SecureFiles []SecureFile `json:"secure_files,omitempty" yaml:"secure_files,omitempty"`
}

// Endpoint is a named service connection shared by reference across the
// whole execution tree.
type Endpoint struct {
	// Name identifies the endpoint (e.g. "SystemVssConnection").
	Name string `json:"name" yaml:"name"`

	// URL is the endpoint base address.
	URL string `json:"url" yaml:"url"`

	// Authorization holds scheme parameters such as access tokens.
	// Values are treated as secrets.
	Authorization map[string]string `json:"authorization,omitempty" yaml:"authorization,omitempty"`
}

// MaskHint marks one variable as secret-bearing.
type MaskHint struct {
	// Kind is the hint type; only "variable" is recognized today.
	Kind string `json:"kind" yaml:"kind"`

	// Value is the variable name whose value must be masked.
	Value string `json:"value" yaml:"value"`
}

// SecureFile is an orchestrator-managed file reference.
type SecureFile struct {
	// ID identifies the secure file on the orchestrator.
	ID uuid.UUID `json:"id" yaml:"id"`

	// Name is the file's display name.
	Name string `json:"name" yaml:"name"`

	// Ticket authorizes the download. Treated as a secret.
	Ticket string `json:"ticket,omitempty" yaml:"ticket,omitempty"`
}

// PlanDescriptor identifies the orchestration plan and its feature flags.
type PlanDescriptor struct {
	// PlanID identifies the plan on the orchestrator.
	PlanID uuid.UUID `json:"plan_id" yaml:"plan_id"`

	// PlanType names the orchestration flavor (e.g. "build", "release").
	PlanType string `json:"plan_type" yaml:"plan_type"`

	// Version is the plan schema version.
	Version int `json:"version" yaml:"version"`

	// Features are orchestrator-controlled feature flags shared by
	// reference across the whole execution tree.
	Features map[string]bool `json:"features,omitempty" yaml:"features,omitempty"`
}

// StepDescriptor describes one task the job driver will execute.
type StepDescriptor struct {
	// ID is the pre-allocated timeline record id for the task.
	ID uuid.UUID `json:"id" yaml:"id"`

	// Name is the task's display name.
	Name string `json:"name" yaml:"name"`

	// RefName is the task's stable reference name.
	RefName string `json:"ref_name" yaml:"ref_name"`

	// Script is the shell command the driver runs for this task.
	Script string `json:"script" yaml:"script"`

	// Timeout caps the task's run time. Zero means no per-task timeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Variables are task-scoped variable overrides layered on top of the
	// job's variable scope.
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Validate checks that all required fields of the job message are present.
// It fails fast so the driver can abort initialization before any record
// is enqueued.
func (m *JobMessage) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: message is nil", forgeerrors.ErrInvalidJobMessage)
	}
	if m.Environment == nil {
		return fmt.Errorf("%w: environment is missing", forgeerrors.ErrInvalidJobMessage)
	}
	if m.Environment.Endpoints == nil {
		return fmt.Errorf("%w: endpoints are missing", forgeerrors.ErrInvalidJobMessage)
	}
	if m.Environment.Variables == nil {
		return fmt.Errorf("%w: variables are missing", forgeerrors.ErrInvalidJobMessage)
	}
	if m.Plan == nil {
		return fmt.Errorf("%w: plan is missing", forgeerrors.ErrInvalidJobMessage)
	}
	if m.JobID == uuid.Nil {
		return fmt.Errorf("%w: job id is missing", forgeerrors.ErrInvalidJobMessage)
	}
	if m.TimelineID == uuid.Nil {
		return fmt.Errorf("%w: timeline id is missing", forgeerrors.ErrInvalidJobMessage)
	}
	return nil
}

// ContainerInfo is the job's container/image descriptor, seeded from the
// agent.containerimage variable at job initialization and shared by
// reference with every child context.
type ContainerInfo struct {
	// Image is the container image reference (e.g. "ubuntu:24.04").
	Image string `json:"image"`
}

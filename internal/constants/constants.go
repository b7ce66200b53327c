// Package constants provides centralized constant values used throughout FORGE.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// TimelineRecordState represents the lifecycle state of a timeline record.
// States advance strictly forward: Pending -> InProgress -> Completed.
type TimelineRecordState string

// Timeline record states.
const (
	// StatePending is the initial state of every timeline record.
	StatePending TimelineRecordState = "pending"

	// StateInProgress is set when the execution unit starts running.
	StateInProgress TimelineRecordState = "inProgress"

	// StateCompleted is the terminal state; finish time and result are set here.
	StateCompleted TimelineRecordState = "completed"
)

// RecordType distinguishes job-level records from task-level records.
type RecordType string

// Timeline record types.
const (
	// RecordTypeJob is the single root record of a job timeline.
	RecordTypeJob RecordType = "Job"

	// RecordTypeTask is used for task records, detail records, and the
	// debug shadow tree.
	RecordTypeTask RecordType = "Task"
)

// TaskResult is the outcome of a completed execution unit.
type TaskResult string

// Task results.
const (
	// ResultSucceeded is the default result when completion never set one.
	ResultSucceeded TaskResult = "succeeded"

	// ResultSucceededWithIssues indicates success with recorded warnings or errors.
	ResultSucceededWithIssues TaskResult = "succeededWithIssues"

	// ResultFailed indicates the unit failed; on the job record this
	// triggers debug timeline capture.
	ResultFailed TaskResult = "failed"

	// ResultCanceled indicates the unit was canceled before completion.
	ResultCanceled TaskResult = "canceled"

	// ResultSkipped indicates the unit was never run.
	ResultSkipped TaskResult = "skipped"
)

// IssueKind classifies a reported issue on a timeline record.
type IssueKind string

// Issue kinds.
const (
	// IssueError is a reported error; increments the record's error count.
	IssueError IssueKind = "error"

	// IssueWarning is a reported warning; increments the record's warning count.
	IssueWarning IssueKind = "warning"
)

// Limits applied to timeline records.
const (
	// MaxIssueCount caps the number of issue entries stored on a record.
	// Error and warning counts keep incrementing past the cap; only the
	// display list truncates.
	MaxIssueCount = 10

	// MaxPercentComplete is the upper bound of the percent-complete range.
	MaxPercentComplete = 100
)

// Well-known variable names consumed by the execution core.
// Variable names are case-insensitive; these are the canonical lowercase forms.
const (
	// DebugVariable enables verbose logging for the whole job when "true".
	DebugVariable = "system.debug"

	// ContainerVariable carries the job's container image descriptor.
	ContainerVariable = "agent.containerimage"

	// ProxyURLVariable, ProxyUsernameVariable, and ProxyPasswordVariable
	// carry outbound proxy settings copied into the variable scope at
	// job initialization.
	ProxyURLVariable      = "agent.proxyurl"
	ProxyUsernameVariable = "agent.proxyusername"
	ProxyPasswordVariable = "agent.proxypassword"
)

// Log line tags recognized by downstream log consumers.
const (
	// TagError marks an error line; also recorded as a record issue.
	TagError = "##[error]"

	// TagWarning marks a warning line; also recorded as a record issue.
	TagWarning = "##[warning]"

	// TagCommand marks an executed command line.
	TagCommand = "##[command]"

	// TagSection marks a section boundary in the log.
	TagSection = "##[section]"

	// TagDebug marks a verbose-only line; filtered unless debug is enabled.
	TagDebug = "##[debug]"
)

// Directory names and paths used by FORGE for organizing data.
const (
	// ForgeHome is the hidden directory name where FORGE stores all its data.
	// This directory is created in the user's home directory.
	ForgeHome = ".forge"

	// LogsDir is the directory name where agent diagnostic logs are stored.
	LogsDir = "logs"

	// PagesDir is the directory name where per-record log pages are staged
	// before upload.
	PagesDir = "pages"

	// CLILogFileName is the file name of the rotating agent diagnostic log.
	CLILogFileName = "forge.log"
)

// Log rotation settings for the agent diagnostic log.
const (
	// LogMaxSizeMB is the maximum size in megabytes before rotation.
	LogMaxSizeMB = 10

	// LogMaxBackups is the number of rotated files to retain.
	LogMaxBackups = 3

	// LogMaxAgeDays is the maximum age in days of a rotated file.
	LogMaxAgeDays = 30

	// LogCompress enables gzip compression of rotated files.
	LogCompress = true
)

// Upload queue tuning.
const (
	// QueueFlushInterval is how often the upload worker drains its buffers.
	QueueFlushInterval = 500 * time.Millisecond

	// ThrottlingWarningThreshold is the accumulated server-throttling delay
	// above which the job emits its one-time throttling warning.
	ThrottlingWarningThreshold = time.Second
)

// Variable expansion limits.
const (
	// MaxExpansionDepth bounds recursive macro expansion so that cyclic
	// definitions degrade to a warning instead of looping forever.
	MaxExpansionDepth = 50
)

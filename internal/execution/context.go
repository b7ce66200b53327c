// This file implements the ExecutionContext lifecycle and mutation API:
// job initialization, child creation, the Pending -> InProgress -> Completed
// state machine, progress, issues, variables, timeouts, and cancellation.
package execution

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/clock"
	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/masker"
	"github.com/mrz1836/forge/internal/vars"
)

// proxyEnvVars are the ambient process-environment variables cleared after
// their values are copied into the job's variable scope, so proxy secrets
// are not left sitting in the environment of spawned processes.
var proxyEnvVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "http_proxy", "https_proxy"} //nolint:gochecknoglobals // fixed name list

// ExecutionContext is one node of a job's execution tree: it owns one
// timeline record, a cancellation scope, a variable scope, and the child
// contexts it created.
//
// Lifecycle operations (Start, Progress, Complete, SetVariable, the log
// writers) are expected to be called from the unit's owning goroutine;
// they are not internally synchronized against each other. Log fan-out,
// throttling handling, and child bookkeeping are safe across goroutines.
type ExecutionContext struct {
	record     *domain.TimelineRecord
	timelineID uuid.UUID

	queue    UploadQueue
	pages    PageLogger
	masker   *masker.Masker
	settings *config.Settings
	logger   zerolog.Logger
	clock    clock.Clock

	vars *vars.Store

	cancelCtx context.Context //nolint:containedctx // intentional: the context IS the cancellation scope
	cancel    context.CancelFunc
	timeout   *time.Timer

	parent       *ExecutionContext
	childMu      sync.Mutex
	children     []*ExecutionContext
	childOrdinal int

	// Shared immutable-for-the-tree state, held by reference from the root.
	endpoints   []domain.Endpoint
	secureFiles []domain.SecureFile
	features    map[string]bool
	paths       *PathList
	container   *domain.ContainerInfo

	// Reserved debug id pair, allocated at creation in case a debug
	// timeline is later needed.
	debugTimelineID uuid.UUID
	debugRecordID   uuid.UUID

	detailMu      sync.Mutex
	detailRecords map[uuid.UUID]*domain.TimelineRecord
	detailOrder   []uuid.UUID

	verbose   bool
	completed bool

	// Root-only fields; zero on child contexts.
	isJob             bool
	descMu            sync.Mutex
	descendants       []*ExecutionContext
	outputMu          sync.Mutex
	outputNames       map[string]struct{}
	throttleTotal     atomic.Int64 // nanoseconds
	throttleWarned    atomic.Bool
	throttleWarnDue   atomic.Bool
	unsubscribe       func()
	expansionWarnings []string
	debugRootID       uuid.UUID
}

// InitializeJob turns this context into the job root from the inbound
// orchestrator message. It validates the message, derives the job's
// cancellation scope from parentCancellation, builds the expanded variable
// scope, seeds the container descriptor, applies (and scrubs) proxy
// settings, initializes the job's timeline record, starts logging, and
// subscribes to throttling notifications for the lifetime of the job.
func (c *ExecutionContext) InitializeJob(msg *domain.JobMessage, parentCancellation context.Context) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	c.cancelCtx, c.cancel = context.WithCancel(parentCancellation)

	// Endpoint authorization values and secure-file tickets are secrets
	// regardless of mask hints.
	for _, ep := range msg.Environment.Endpoints {
		for _, v := range ep.Authorization {
			c.masker.AddValue(v)
		}
	}
	for _, sf := range msg.Environment.SecureFiles {
		c.masker.AddValue(sf.Ticket)
	}

	scope, warnings := vars.NewScope(c.masker, msg.Environment.Variables, msg.Environment.MaskHints)
	c.vars = scope
	c.expansionWarnings = warnings

	c.verbose = c.settings.Verbose || scope.GetBool(constants.DebugVariable, false)

	if image, ok := scope.Get(constants.ContainerVariable); ok && image != "" {
		c.container = &domain.ContainerInfo{Image: image}
	}

	c.applyProxy()

	c.timelineID = msg.TimelineID
	c.record = &domain.TimelineRecord{
		ID:         msg.JobID,
		TimelineID: msg.TimelineID,
		Type:       constants.RecordTypeJob,
		Name:       msg.JobName,
		RefName:    msg.JobRefName,
		State:      constants.StatePending,
	}

	c.endpoints = msg.Environment.Endpoints
	c.secureFiles = msg.Environment.SecureFiles
	if msg.Plan.Features != nil {
		c.features = msg.Plan.Features
	} else {
		c.features = map[string]bool{}
	}
	c.paths = &PathList{}
	c.outputNames = make(map[string]struct{})

	c.isJob = true
	c.debugTimelineID = msg.TimelineID
	c.debugRootID = uuid.New()
	c.debugRecordID = c.debugRootID

	c.pages.Setup(c.timelineID, c.record.ID, c.verbose, c.debugTimelineID, c.debugRootID)
	c.unsubscribe = c.queue.SubscribeThrottling(c.onThrottling)

	c.logger.Info().
		Str("job_id", msg.JobID.String()).
		Str("job_ref_name", msg.JobRefName).
		Str("timeline_id", msg.TimelineID.String()).
		Msg("job context initialized")

	c.enqueueRecord()
	return nil
}

// applyProxy copies configured proxy settings into the variable scope and
// clears the ambient process-environment proxy variables, so secrets do
// not leak into child process environments.
func (c *ExecutionContext) applyProxy() {
	if !c.settings.Proxy.Configured() {
		return
	}
	c.vars.Set(constants.ProxyURLVariable, c.settings.Proxy.URL, false)
	if c.settings.Proxy.Username != "" {
		c.vars.Set(constants.ProxyUsernameVariable, c.settings.Proxy.Username, false)
	}
	if c.settings.Proxy.Password != "" {
		c.vars.Set(constants.ProxyPasswordVariable, c.settings.Proxy.Password, true)
	}
	for _, name := range proxyEnvVars {
		os.Unsetenv(name)
	}
}

// CreateChild allocates a task-level child context. Shared tree state
// (endpoints, secure files, features, prepend-path list, container) is
// passed down by reference; the child gets its own cancellation scope
// derived from this context's scope, its own timeline record, and a
// task-scoped variable override when taskVariables is non-nil.
//
// Must be called from the owning goroutine of this context; it never blocks.
func (c *ExecutionContext) CreateChild(recordID uuid.UUID, displayName, refName string, taskVariables map[string]string) *ExecutionContext {
	child := &ExecutionContext{
		queue:    c.queue,
		pages:    c.pages,
		masker:   c.masker,
		settings: c.settings,
		logger:   c.logger.With().Str("task_ref_name", refName).Logger(),
		clock:    c.clock,
		parent:   c,

		timelineID:  c.timelineID,
		endpoints:   c.endpoints,
		secureFiles: c.secureFiles,
		features:    c.features,
		paths:       c.paths,
		container:   c.container,
		verbose:     c.verbose,
	}

	child.cancelCtx, child.cancel = context.WithCancel(c.cancelCtx)

	if taskVariables != nil {
		child.vars = c.vars.Child(taskVariables)
	} else {
		child.vars = c.vars
	}

	c.childMu.Lock()
	c.childOrdinal++
	order := c.childOrdinal
	c.children = append(c.children, child)
	c.childMu.Unlock()

	child.record = &domain.TimelineRecord{
		ID:         recordID,
		ParentID:   &c.record.ID,
		TimelineID: c.timelineID,
		Order:      &order,
		Type:       constants.RecordTypeTask,
		Name:       displayName,
		RefName:    refName,
		State:      constants.StatePending,
	}

	// Reserve the debug id pair now so the debug builder can mirror this
	// node later without coordinating with a possibly finished task.
	root := c.root()
	child.debugTimelineID = root.debugTimelineID
	child.debugRecordID = uuid.New()
	root.registerDescendant(child)

	c.pages.Setup(child.timelineID, recordID, child.verbose, child.debugTimelineID, child.debugRecordID)

	child.logger.Debug().
		Str("record_id", recordID.String()).
		Int("order", order).
		Msg("child context created")

	child.enqueueRecord()
	return child
}

// root walks the parent chain to the job context.
func (c *ExecutionContext) root() *ExecutionContext {
	node := c
	for node.parent != nil {
		node = node.parent
	}
	return node
}

// registerDescendant records a context in the root's registry of every
// descendant ever created. Called from the creating goroutine, which may
// differ per subtree.
func (c *ExecutionContext) registerDescendant(child *ExecutionContext) {
	c.descMu.Lock()
	c.descendants = append(c.descendants, child)
	c.descMu.Unlock()
}

// Start moves the record to InProgress, stamps the start time, and reports
// the update. Calling it twice overwrites the start time; misuse is not
// guarded. The job root also emits any variable-expansion warnings
// collected during initialization, now that logging is up.
func (c *ExecutionContext) Start(currentOperation string) {
	c.flushThrottleWarning()
	c.record.State = constants.StateInProgress
	now := c.clock.Now()
	c.record.StartTime = &now
	if currentOperation != "" {
		c.record.CurrentOperation = currentOperation
	}
	c.enqueueRecord()

	if c.isJob && len(c.expansionWarnings) > 0 {
		for _, w := range c.expansionWarnings {
			c.Warning(w)
		}
		c.expansionWarnings = nil
	}
}

// Progress reports percent-complete. Fails with ErrPercentOutOfRange and
// leaves the record unchanged when percent is outside [0,100], and with
// ErrContextCompleted once the unit has finished; otherwise the stored
// value never regresses.
func (c *ExecutionContext) Progress(percent int, currentOperation string) error {
	if c.completed {
		return fmt.Errorf("%w: %s", forgeerrors.ErrContextCompleted, c.record.ID)
	}
	c.flushThrottleWarning()
	if percent < 0 || percent > constants.MaxPercentComplete {
		return fmt.Errorf("%w: %d", forgeerrors.ErrPercentOutOfRange, percent)
	}
	if percent > c.record.PercentComplete {
		c.record.PercentComplete = percent
	}
	if currentOperation != "" {
		c.record.CurrentOperation = currentOperation
	}
	c.enqueueRecord()
	return nil
}

// AddIssue records an error or warning on the timeline record. The message
// is redacted first. Errors and warnings keep incrementing their counts
// without bound; the stored issue list caps at constants.MaxIssueCount
// entries and silently drops the rest.
//
// NOT safe for unsynchronized concurrent invocation: callers invoking this
// from multiple goroutines on the same context must hold their own lock.
func (c *ExecutionContext) AddIssue(issue domain.Issue) {
	issue.Message = c.masker.Mask(issue.Message)

	switch issue.Kind {
	case constants.IssueError:
		c.record.ErrorCount++
	case constants.IssueWarning:
		c.record.WarningCount++
	}
	if len(c.record.Issues) < constants.MaxIssueCount {
		c.record.Issues = append(c.record.Issues, issue)
	}
	c.enqueueRecord()
}

// Complete finishes the unit: finish time set, percent forced to 100,
// result defaulting to Succeeded, state Completed. Pending detail records
// are flushed to completion, the cancellation scope is released, and the
// log page ends. On the job root, a Failed result (with verbose logging
// off) triggers debug timeline capture and switches the upload queue's
// file target to the debug path. Returns the final result.
//
// result may be nil to accept the default.
func (c *ExecutionContext) Complete(result *constants.TaskResult, currentOperation string) constants.TaskResult {
	if c.completed {
		return *c.record.Result
	}
	c.completed = true

	if c.timeout != nil {
		c.timeout.Stop()
	}

	if result != nil {
		res := *result
		c.record.Result = &res
	}

	if c.isJob {
		c.flushThrottleWarning()
		if total := time.Duration(c.throttleTotal.Load()); total > 0 {
			c.Warning(fmt.Sprintf("The job was delayed %s in total by server request throttling.", total.Round(time.Millisecond)))
		}
	}

	now := c.clock.Now()
	c.record.FinishTime = &now
	c.record.PercentComplete = constants.MaxPercentComplete
	if c.record.Result == nil {
		res := constants.ResultSucceeded
		c.record.Result = &res
	}
	if currentOperation != "" {
		c.record.CurrentOperation = currentOperation
	}
	c.record.State = constants.StateCompleted
	c.enqueueRecord()

	c.completeDetails(now)

	c.cancel()
	if err := c.pages.End(c.record.ID); err != nil {
		c.logger.Warn().Err(err).Str("record_id", c.record.ID.String()).Msg("failed to end log page")
	}

	final := *c.record.Result
	if c.isJob {
		if c.unsubscribe != nil {
			c.unsubscribe()
			c.unsubscribe = nil
		}
		if final == constants.ResultFailed && !c.verbose {
			// A failed build has no further use for primary upload
			// bandwidth; keep a secondary record for postmortem instead.
			c.queue.StopPrimaryUploads()
			c.queue.StartDebugUploads()
			c.buildDebugTimeline()
		}
	}

	c.logger.Info().
		Str("record_id", c.record.ID.String()).
		Str("result", string(final)).
		Msg("execution context completed")
	return final
}

// SetVariable writes a variable. Output variables (isOutput true, or a
// name previously registered as an output) land on the timeline record's
// output map and additionally publish a tree-global qualified variable
// "<task-ref-name>.<name>" so sibling and descendant tasks can read this
// task's output. Everything else goes to the ordinary variable scope.
func (c *ExecutionContext) SetVariable(name, value string, isSecret, isOutput bool) error {
	if name == "" {
		return fmt.Errorf("%w: variable name", forgeerrors.ErrEmptyValue)
	}

	root := c.root()
	root.outputMu.Lock()
	if isOutput {
		root.outputNames[nameKey(name)] = struct{}{}
	}
	_, registered := root.outputNames[nameKey(name)]
	root.outputMu.Unlock()

	if registered {
		if c.record.Outputs == nil {
			c.record.Outputs = make(map[string]domain.VariableValue)
		}
		if isSecret {
			c.masker.AddValue(value)
		}
		c.record.Outputs[name] = domain.VariableValue{Value: value, IsSecret: isSecret}
		c.enqueueRecord()
		c.vars.SetGlobal(c.record.RefName+"."+name, value, isSecret)
		return nil
	}

	c.vars.Set(name, value, isSecret)
	return nil
}

// SetTimeout schedules cancellation of this context's own scope after d.
// Zero or negative d is a no-op. Completion stops the timer, and a timer
// that fires after completion is harmless because the scope is already
// released.
func (c *ExecutionContext) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	if c.timeout != nil {
		c.timeout.Stop()
	}
	c.timeout = time.AfterFunc(d, c.cancel)
}

// CancelToken cancels this context's own cancellation scope, and
// transitively every scope derived from it by descendants.
func (c *ExecutionContext) CancelToken() {
	c.cancel()
}

// Context returns the cancellation scope. Work items cooperating on this
// context select on its Done channel.
func (c *ExecutionContext) Context() context.Context {
	return c.cancelCtx
}

// Variables returns the context's variable scope.
func (c *ExecutionContext) Variables() *vars.Store {
	return c.vars
}

// Endpoints returns the endpoint list shared across the tree.
func (c *ExecutionContext) Endpoints() []domain.Endpoint {
	return c.endpoints
}

// SecureFiles returns the secure-file list shared across the tree.
func (c *ExecutionContext) SecureFiles() []domain.SecureFile {
	return c.secureFiles
}

// FeatureEnabled reports whether the plan enabled the named feature flag.
func (c *ExecutionContext) FeatureEnabled(name string) bool {
	return c.features[name]
}

// Container returns the job's container descriptor, or nil.
func (c *ExecutionContext) Container() *domain.ContainerInfo {
	return c.container
}

// Paths returns the prepend-path list shared across the tree.
func (c *ExecutionContext) Paths() *PathList {
	return c.paths
}

// Record returns a snapshot of the current timeline record.
func (c *ExecutionContext) Record() *domain.TimelineRecord {
	return c.record.Clone()
}

// IsJob reports whether this is the job-level context.
func (c *ExecutionContext) IsJob() bool {
	return c.isJob
}

// onThrottling accumulates server-throttling delay on the job root. It
// runs on the upload worker's goroutine, so it must not touch the timeline
// record: it only updates atomics and marks the one-time warning as due.
// The warning itself is emitted by flushThrottleWarning on the goroutine
// that owns the record.
func (c *ExecutionContext) onThrottling(delay time.Duration) {
	total := time.Duration(c.throttleTotal.Add(int64(delay)))
	if total >= constants.ThrottlingWarningThreshold && c.throttleWarned.CompareAndSwap(false, true) {
		c.throttleWarnDue.Store(true)
	}
}

// flushThrottleWarning emits the pending throttling warning, if any. Called
// from the record owner's lifecycle operations so the issue lands on the
// record without racing them.
func (c *ExecutionContext) flushThrottleWarning() {
	if c.isJob && c.throttleWarnDue.CompareAndSwap(true, false) {
		c.Warning("The server is throttling requests from this job; updates may be delayed.")
	}
}

// enqueueRecord reports the current record state to the upload queue.
// The queue snapshots the record, so later mutation cannot race delivery.
func (c *ExecutionContext) enqueueRecord() {
	c.queue.EnqueueRecordUpdate(c.timelineID, c.record)
}

// nameKey normalizes a variable name for output-name registration.
func nameKey(name string) string {
	return strings.ToLower(name)
}

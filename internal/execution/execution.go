// Package execution implements the execution-state core of the FORGE
// pipeline agent: the tree of execution contexts for one job, the timeline
// records they report, cancellation and timeout propagation, secret-safe
// logging with parent fan-out, and the failure-triggered debug timeline.
//
// Import rules:
//   - CAN import: internal/clock, internal/config, internal/constants,
//     internal/domain, internal/errors, internal/masker, internal/vars, std lib
//   - MUST NOT import: internal/queue, internal/joblog, internal/cli
//     (those collaborators are consumed through the interfaces below)
package execution

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/clock"
	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/masker"
)

// UploadQueue is the asynchronous sink for record updates, console lines,
// and file attachments. Enqueue methods never block on delivery; updates
// for one record id are delivered in enqueue order. Satisfied by
// internal/queue.Queue.
type UploadQueue interface {
	// EnqueueRecordUpdate queues a snapshot of record. Fire-and-forget.
	EnqueueRecordUpdate(timelineID uuid.UUID, record *domain.TimelineRecord)

	// EnqueueConsoleLine queues one console line. Fire-and-forget.
	EnqueueConsoleLine(line string)

	// EnqueueFileUpload queues a file attachment; fails synchronously if
	// path does not exist.
	EnqueueFileUpload(timelineID, recordID uuid.UUID, kind, name, path string, deleteAfter bool) error

	// StopPrimaryUploads stops primary-target file uploads. Used exactly
	// once, on job failure.
	StopPrimaryUploads()

	// StartDebugUploads switches file uploads to the debug target. Used
	// exactly once, on job failure.
	StartDebugUploads()

	// SubscribeThrottling registers a handler for server-throttling
	// delays; the returned function deregisters it. The handler may run
	// on a different goroutine than the job's driver.
	SubscribeThrottling(fn func(delay time.Duration)) func()
}

// PageLogger is the per-record log writer collaborator. Satisfied by
// internal/joblog.Service.
type PageLogger interface {
	// Setup registers a log page for recordID, with the reserved debug id
	// pair for postmortem flushing.
	Setup(timelineID, recordID uuid.UUID, courtesyDebug bool, debugTimelineID, debugRecordID uuid.UUID)

	// Write appends one line to recordID's page.
	Write(recordID uuid.UUID, line string, isDebug bool)

	// End closes recordID's page and hands it to the upload queue.
	End(recordID uuid.UUID) error

	// FlushDebug re-attaches recordID's page to its reserved debug record.
	FlushDebug(recordID uuid.UUID) error
}

// PathList is the prepend-path list shared by reference across one job's
// execution tree. Tasks prepend tool directories; the process launcher
// reads the accumulated list.
type PathList struct {
	mu      sync.Mutex
	entries []string
}

// Prepend adds dir to the front of the list.
func (p *PathList) Prepend(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append([]string{dir}, p.entries...)
}

// List returns a copy of the current entries, front first.
func (p *PathList) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// Option configures a job execution context.
type Option func(*ExecutionContext)

// WithClock overrides the clock used for record timestamps. Tests use
// this to make start/finish times deterministic.
func WithClock(c clock.Clock) Option {
	return func(ec *ExecutionContext) {
		ec.clock = c
	}
}

// New creates an uninitialized job-level execution context.
// Call InitializeJob with the orchestrator's job message before any other
// operation; child contexts are created through CreateChild only.
func New(q UploadQueue, pages PageLogger, m *masker.Masker, settings *config.Settings, logger zerolog.Logger, opts ...Option) *ExecutionContext {
	ec := &ExecutionContext{
		queue:    q,
		pages:    pages,
		masker:   m,
		settings: settings,
		logger:   logger.With().Str("component", "execution").Logger(),
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// recordUpdate pairs a record snapshot with its timeline.
type recordUpdate struct {
	timelineID uuid.UUID
	record     *domain.TimelineRecord
}

// Queue buffers record updates, console lines, and file uploads, and
// delivers them through a Client on a background worker. Enqueue methods
// never block on delivery. Updates for one record id are delivered in
// enqueue order; ordering across different record ids is not guaranteed.
type Queue struct {
	client Client
	logger zerolog.Logger
	flush  time.Duration

	mu      sync.Mutex
	records []recordUpdate
	lines   []string
	files   []FileUpload

	stopped        atomic.Bool
	primaryStopped atomic.Bool
	debugActive    atomic.Bool

	subMu   sync.Mutex
	subs    map[int]func(time.Duration)
	nextSub int

	workerDone chan struct{}
	stopWorker chan struct{}
	startOnce  sync.Once
	drainOnce  sync.Once
}

// Option configures a Queue.
type Option func(*Queue)

// WithFlushInterval overrides how often the worker drains its buffers.
// Tests use short intervals to keep runs fast.
func WithFlushInterval(d time.Duration) Option {
	return func(q *Queue) {
		q.flush = d
	}
}

// New creates an upload queue delivering through client.
// Call Start before enqueueing and Drain when the job completes.
func New(client Client, logger zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		client:     client,
		logger:     logger.With().Str("component", "upload_queue").Logger(),
		flush:      constants.QueueFlushInterval,
		subs:       make(map[int]func(time.Duration)),
		workerDone: make(chan struct{}),
		stopWorker: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the background delivery worker. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		go q.run(ctx)
	})
}

// run is the worker loop: drain buffers on a ticker until stopped, then
// perform one final drain so Drain leaves nothing behind.
func (q *Queue) run(ctx context.Context) {
	defer close(q.workerDone)

	ticker := time.NewTicker(q.flush)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.deliver(context.WithoutCancel(ctx))
			return
		case <-q.stopWorker:
			q.deliver(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			q.deliver(ctx)
		}
	}
}

// Drain stops accepting new work, flushes everything pending, and waits
// for the worker to exit or ctx to expire.
func (q *Queue) Drain(ctx context.Context) error {
	q.stopped.Store(true)
	q.drainOnce.Do(func() {
		close(q.stopWorker)
	})
	select {
	case <-q.workerDone:
		return nil
	case <-ctx.Done():
		return forgeerrors.Wrap(ctx.Err(), "upload queue drain interrupted")
	}
}

// EnqueueRecordUpdate queues a snapshot of record for delivery.
// Fire-and-forget: after the queue has stopped the update is dropped with
// a log entry rather than surfacing an error to the lifecycle path.
func (q *Queue) EnqueueRecordUpdate(timelineID uuid.UUID, record *domain.TimelineRecord) {
	if q.stopped.Load() {
		q.logger.Debug().Str("record_id", record.ID.String()).Msg("record update dropped after queue stop")
		return
	}
	snapshot := record.Clone()
	q.mu.Lock()
	q.records = append(q.records, recordUpdate{timelineID: timelineID, record: snapshot})
	q.mu.Unlock()
}

// EnqueueConsoleLine queues one console line. Fire-and-forget.
func (q *Queue) EnqueueConsoleLine(line string) {
	if q.stopped.Load() {
		return
	}
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()
}

// EnqueueFileUpload queues a file attachment. Fails synchronously when the
// path does not exist; the caller decides whether that is fatal.
func (q *Queue) EnqueueFileUpload(timelineID, recordID uuid.UUID, kind, name, path string, deleteAfter bool) error {
	if q.stopped.Load() {
		return fmt.Errorf("%w: file upload %q", forgeerrors.ErrQueueStopped, name)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", forgeerrors.ErrAttachmentNotFound, path)
	}

	target := TargetPrimary
	if q.debugActive.Load() {
		target = TargetDebug
	}
	up := FileUpload{
		TimelineID:  timelineID,
		RecordID:    recordID,
		Kind:        kind,
		Name:        name,
		Path:        path,
		DeleteAfter: deleteAfter,
		Target:      target,
	}

	q.mu.Lock()
	q.files = append(q.files, up)
	q.mu.Unlock()
	return nil
}

// StopPrimaryUploads stops delivery of primary-target file uploads.
// Called exactly once, on job failure, before StartDebugUploads.
func (q *Queue) StopPrimaryUploads() {
	q.primaryStopped.Store(true)
}

// StartDebugUploads switches newly enqueued file uploads to the debug
// target. Called exactly once, on job failure.
func (q *Queue) StartDebugUploads() {
	q.debugActive.Store(true)
}

// SubscribeThrottling registers fn to receive server-throttling delays
// observed during delivery. The returned function deregisters it; the job
// context calls it at completion so no subscription outlives the job.
func (q *Queue) SubscribeThrottling(fn func(delay time.Duration)) func() {
	q.subMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.subMu.Unlock()

	return func() {
		q.subMu.Lock()
		delete(q.subs, id)
		q.subMu.Unlock()
	}
}

// notifyThrottling fans a throttling delay out to current subscribers.
// Runs on the worker goroutine, not the job's driver thread.
func (q *Queue) notifyThrottling(delay time.Duration) {
	q.subMu.Lock()
	fns := make([]func(time.Duration), 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	q.subMu.Unlock()

	for _, fn := range fns {
		fn(delay)
	}
}

// deliver swaps out the buffers and pushes their contents through the client.
func (q *Queue) deliver(ctx context.Context) {
	q.mu.Lock()
	records := q.records
	lines := q.lines
	files := q.files
	q.records = nil
	q.lines = nil
	q.files = nil
	q.mu.Unlock()

	q.deliverRecords(ctx, records)
	q.deliverLines(ctx, lines)
	q.deliverFiles(ctx, files)
}

// deliverRecords groups updates by timeline, preserving enqueue order
// within each group so per-record ordering holds.
func (q *Queue) deliverRecords(ctx context.Context, updates []recordUpdate) {
	if len(updates) == 0 {
		return
	}

	grouped := make(map[uuid.UUID][]*domain.TimelineRecord)
	order := make([]uuid.UUID, 0, 1)
	for _, u := range updates {
		if _, seen := grouped[u.timelineID]; !seen {
			order = append(order, u.timelineID)
		}
		grouped[u.timelineID] = append(grouped[u.timelineID], u.record)
	}

	for _, timelineID := range order {
		err := q.client.UpdateRecords(ctx, timelineID, grouped[timelineID])
		if q.observeThrottling(err) {
			continue
		}
		if err != nil {
			q.logger.Warn().Err(err).
				Str("timeline_id", timelineID.String()).
				Int("records", len(grouped[timelineID])).
				Msg("record update delivery failed")
		}
	}
}

func (q *Queue) deliverLines(ctx context.Context, lines []string) {
	if len(lines) == 0 {
		return
	}
	err := q.client.AppendConsoleLines(ctx, lines)
	if q.observeThrottling(err) {
		return
	}
	if err != nil {
		q.logger.Warn().Err(err).Int("lines", len(lines)).Msg("console line delivery failed")
	}
}

func (q *Queue) deliverFiles(ctx context.Context, files []FileUpload) {
	for _, up := range files {
		if up.Target == TargetPrimary && q.primaryStopped.Load() {
			q.logger.Debug().Str("name", up.Name).Msg("primary file upload skipped after job failure")
			continue
		}
		err := q.client.UploadFile(ctx, up)
		throttled := q.observeThrottling(err)
		if err != nil && !throttled {
			q.logger.Warn().Err(err).Str("name", up.Name).Str("path", up.Path).Msg("file upload failed")
			continue
		}
		if up.DeleteAfter {
			if rmErr := os.Remove(up.Path); rmErr != nil {
				q.logger.Debug().Err(rmErr).Str("path", up.Path).Msg("failed to delete uploaded file")
			}
		}
	}
}

// observeThrottling extracts a ThrottledError from err, notifies
// subscribers, and reports whether the delivery should count as done.
func (q *Queue) observeThrottling(err error) bool {
	var throttled *ThrottledError
	if stderrors.As(err, &throttled) {
		q.notifyThrottling(throttled.Delay)
		return true
	}
	return false
}

package execution

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/forge/internal/domain"
)

// fakeQueue records everything enqueued on it. Like the real queue, it
// snapshots records at enqueue time.
type fakeQueue struct {
	mu          sync.Mutex
	updates     []fakeUpdate
	lines       []string
	files       []fakeFile
	stopPrimary int
	startDebug  int
	calls       []string

	throttleFn   func(time.Duration)
	unsubscribed bool

	fileErr error
}

type fakeUpdate struct {
	timelineID uuid.UUID
	record     *domain.TimelineRecord
}

type fakeFile struct {
	timelineID  uuid.UUID
	recordID    uuid.UUID
	kind        string
	name        string
	path        string
	deleteAfter bool
}

func (q *fakeQueue) EnqueueRecordUpdate(timelineID uuid.UUID, record *domain.TimelineRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates = append(q.updates, fakeUpdate{timelineID: timelineID, record: record.Clone()})
}

func (q *fakeQueue) EnqueueConsoleLine(line string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lines = append(q.lines, line)
}

func (q *fakeQueue) EnqueueFileUpload(timelineID, recordID uuid.UUID, kind, name, path string, deleteAfter bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fileErr != nil {
		return q.fileErr
	}
	q.files = append(q.files, fakeFile{timelineID, recordID, kind, name, path, deleteAfter})
	return nil
}

func (q *fakeQueue) StopPrimaryUploads() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopPrimary++
	q.calls = append(q.calls, "stop-primary")
}

func (q *fakeQueue) StartDebugUploads() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.startDebug++
	q.calls = append(q.calls, "start-debug")
}

func (q *fakeQueue) SubscribeThrottling(fn func(delay time.Duration)) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.throttleFn = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.unsubscribed = true
	}
}

// updatesFor returns every enqueued snapshot of one record id, in order.
func (q *fakeQueue) updatesFor(recordID uuid.UUID) []*domain.TimelineRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.TimelineRecord
	for _, u := range q.updates {
		if u.record.ID == recordID {
			out = append(out, u.record)
		}
	}
	return out
}

// lastUpdate returns the most recent snapshot of one record id, or nil.
func (q *fakeQueue) lastUpdate(recordID uuid.UUID) *domain.TimelineRecord {
	updates := q.updatesFor(recordID)
	if len(updates) == 0 {
		return nil
	}
	return updates[len(updates)-1]
}

// updatesOn returns every snapshot enqueued on one timeline id, in order.
func (q *fakeQueue) updatesOn(timelineID uuid.UUID) []*domain.TimelineRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.TimelineRecord
	for _, u := range q.updates {
		if u.timelineID == timelineID {
			out = append(out, u.record)
		}
	}
	return out
}

// fakePages records page-logger calls.
type fakePages struct {
	mu      sync.Mutex
	setups  []fakeSetup
	writes  []fakeWrite
	ends    []uuid.UUID
	flushes []uuid.UUID

	endErr   error
	flushErr error
}

type fakeSetup struct {
	timelineID      uuid.UUID
	recordID        uuid.UUID
	courtesyDebug   bool
	debugTimelineID uuid.UUID
	debugRecordID   uuid.UUID
}

type fakeWrite struct {
	recordID uuid.UUID
	line     string
	isDebug  bool
}

func (p *fakePages) Setup(timelineID, recordID uuid.UUID, courtesyDebug bool, debugTimelineID, debugRecordID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setups = append(p.setups, fakeSetup{timelineID, recordID, courtesyDebug, debugTimelineID, debugRecordID})
}

func (p *fakePages) Write(recordID uuid.UUID, line string, isDebug bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, fakeWrite{recordID, line, isDebug})
}

func (p *fakePages) End(recordID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endErr != nil {
		return p.endErr
	}
	p.ends = append(p.ends, recordID)
	return nil
}

func (p *fakePages) FlushDebug(recordID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flushErr != nil {
		return p.flushErr
	}
	p.flushes = append(p.flushes, recordID)
	return nil
}

// writesFor returns the lines written to one record's page.
func (p *fakePages) writesFor(recordID uuid.UUID) []fakeWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []fakeWrite
	for _, w := range p.writes {
		if w.recordID == recordID {
			out = append(out, w)
		}
	}
	return out
}

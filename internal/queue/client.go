// Package queue provides the asynchronous upload path between the
// execution core and the orchestrator. Record updates, console lines, and
// file attachments are buffered in memory and delivered by a background
// worker, so lifecycle operations on execution contexts never block on
// network latency.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/forge/internal/domain"
)

// Target selects which upload surface a file attachment lands on.
type Target string

// Upload targets.
const (
	// TargetPrimary is the normal attachment path for a running job.
	TargetPrimary Target = "primary"

	// TargetDebug is the diagnostic-only path used after a job has failed.
	TargetDebug Target = "debug"
)

// FileUpload describes one file attachment delivery.
type FileUpload struct {
	// TimelineID and RecordID locate the record the file attaches to.
	TimelineID uuid.UUID
	RecordID   uuid.UUID

	// Kind classifies the attachment (e.g. "log", "summary").
	Kind string

	// Name is the attachment's display name.
	Name string

	// Path is the local file to upload. Verified to exist at enqueue time.
	Path string

	// DeleteAfter removes the local file once the upload succeeds.
	DeleteAfter bool

	// Target is assigned by the queue from its current upload mode.
	Target Target
}

// Client is the transport the queue delivers through. Implementations talk
// to the orchestrator; MemoryClient records deliveries for tests and local
// runs. Retry/backoff inside the client is its own concern.
type Client interface {
	// UpdateRecords delivers a batch of record snapshots for one timeline,
	// in enqueue order.
	UpdateRecords(ctx context.Context, timelineID uuid.UUID, records []*domain.TimelineRecord) error

	// AppendConsoleLines delivers a batch of console lines.
	AppendConsoleLines(ctx context.Context, lines []string) error

	// UploadFile delivers one file attachment.
	UploadFile(ctx context.Context, up FileUpload) error
}

// ThrottledError reports that a delivery succeeded but the server imposed
// a delay. The queue unwraps it, counts the delivery as done, and notifies
// throttling subscribers with the delay.
type ThrottledError struct {
	// Delay is the server-imposed wait the client absorbed.
	Delay time.Duration
}

// Error implements the error interface.
func (e *ThrottledError) Error() string {
	return fmt.Sprintf("request throttled for %s", e.Delay)
}

package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mrz1836/forge/internal/domain"
)

// MemoryClient is a Client that records every delivery in memory.
// Used by tests and by local `forge run` invocations that have no
// orchestrator to talk to. Safe for concurrent use.
type MemoryClient struct {
	mu      sync.Mutex
	records map[uuid.UUID][]*domain.TimelineRecord
	lines   []string
	files   []FileUpload

	// Err, when set, is returned from every delivery. Tests use this to
	// exercise the queue's failure and throttling paths.
	Err error
}

// NewMemoryClient creates an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		records: make(map[uuid.UUID][]*domain.TimelineRecord),
	}
}

// UpdateRecords implements Client.
func (c *MemoryClient) UpdateRecords(_ context.Context, timelineID uuid.UUID, records []*domain.TimelineRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.records[timelineID] = append(c.records[timelineID], records...)
	return nil
}

// AppendConsoleLines implements Client.
func (c *MemoryClient) AppendConsoleLines(_ context.Context, lines []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.lines = append(c.lines, lines...)
	return nil
}

// UploadFile implements Client.
func (c *MemoryClient) UploadFile(_ context.Context, up FileUpload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.files = append(c.files, up)
	return nil
}

// Records returns the delivered record snapshots for one timeline, in
// delivery order.
func (c *MemoryClient) Records(timelineID uuid.UUID) []*domain.TimelineRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.TimelineRecord, len(c.records[timelineID]))
	copy(out, c.records[timelineID])
	return out
}

// Lines returns the delivered console lines in delivery order.
func (c *MemoryClient) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Files returns the delivered file uploads in delivery order.
func (c *MemoryClient) Files() []FileUpload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FileUpload, len(c.files))
	copy(out, c.files)
	return out
}

// Ensure MemoryClient implements Client.
var _ Client = (*MemoryClient)(nil)

// This file implements the detail record table: a secondary, denser
// timeline attached to one execution context for sub-step reporting below
// task granularity (per-file progress, per-step detail).
package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// UpdateDetailTimelineRecord upserts a detail record. The detail timeline
// id is allocated lazily on the first call and attached to the context's
// own timeline record. Repeated updates for the same record id merge as
// sparse patches: each field overwrites only when the incoming value is
// present. Job-typed records are rejected; detail records describe
// sub-task granularity only.
func (c *ExecutionContext) UpdateDetailTimelineRecord(record *domain.TimelineRecord) error {
	if record.Type == constants.RecordTypeJob {
		return fmt.Errorf("%w: record %s", forgeerrors.ErrDetailRecordType, record.ID)
	}

	if c.record.DetailTimelineID == nil {
		id := uuid.New()
		c.record.DetailTimelineID = &id
		c.enqueueRecord()
	}
	detailTimelineID := *c.record.DetailTimelineID

	c.detailMu.Lock()
	if c.detailRecords == nil {
		c.detailRecords = make(map[uuid.UUID]*domain.TimelineRecord)
	}
	existing, ok := c.detailRecords[record.ID]
	if !ok {
		existing = record.Clone()
		existing.TimelineID = detailTimelineID
		if existing.State == "" {
			existing.State = constants.StatePending
		}
		c.detailRecords[record.ID] = existing
		c.detailOrder = append(c.detailOrder, record.ID)
	} else {
		existing.Merge(record)
	}
	snapshot := existing.Clone()
	c.detailMu.Unlock()

	c.queue.EnqueueRecordUpdate(detailTimelineID, snapshot)
	return nil
}

// completeDetails flushes every pending detail record the same way the
// owning record completes: finish time, percent, result, and state are
// defaulted if absent, and each record is reported once more.
func (c *ExecutionContext) completeDetails(now time.Time) {
	c.detailMu.Lock()
	defer c.detailMu.Unlock()

	for _, id := range c.detailOrder {
		rec := c.detailRecords[id]
		if rec.State == constants.StateCompleted {
			continue
		}
		rec.State = constants.StateCompleted
		t := now
		rec.FinishTime = &t
		rec.PercentComplete = constants.MaxPercentComplete
		if rec.Result == nil {
			res := constants.ResultSucceeded
			rec.Result = &res
		}
		c.queue.EnqueueRecordUpdate(rec.TimelineID, rec)
	}
}

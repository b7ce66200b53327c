// This file implements the debug timeline builder, triggered only from
// Complete on job failure: it mirrors the already-created context tree
// into a shadow timeline so diagnostic log flushing can target it without
// disturbing the primary records.
package execution

import (
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

// buildDebugTimeline creates the debug root record as a Task-typed child
// of the job's own record, then mirrors every descendant context ever
// created under this job into a record under that root, using the id pair
// reserved at CreateChild time. Sibling order is assigned by a fresh
// counter scoped to the debug tree. For each descendant the page logger is
// invoked once to re-attach its log content to the mirrored record.
func (c *ExecutionContext) buildDebugTimeline() {
	rootOrder := func() int {
		c.childMu.Lock()
		defer c.childMu.Unlock()
		c.childOrdinal++
		return c.childOrdinal
	}()

	debugRoot := &domain.TimelineRecord{
		ID:         c.debugRootID,
		ParentID:   &c.record.ID,
		TimelineID: c.debugTimelineID,
		Order:      &rootOrder,
		Type:       constants.RecordTypeTask,
		Name:       c.record.Name + " (debug)",
		RefName:    c.record.RefName,
		State:      constants.StatePending,
	}
	c.queue.EnqueueRecordUpdate(c.debugTimelineID, debugRoot)

	c.descMu.Lock()
	descendants := make([]*ExecutionContext, len(c.descendants))
	copy(descendants, c.descendants)
	c.descMu.Unlock()

	for i, desc := range descendants {
		order := i + 1
		mirror := &domain.TimelineRecord{
			ID:         desc.debugRecordID,
			ParentID:   &c.debugRootID,
			TimelineID: c.debugTimelineID,
			Order:      &order,
			Type:       constants.RecordTypeTask,
			Name:       desc.record.Name + " (debug)",
			RefName:    desc.record.RefName,
			State:      constants.StatePending,
		}
		c.queue.EnqueueRecordUpdate(c.debugTimelineID, mirror)

		if err := c.pages.FlushDebug(desc.record.ID); err != nil {
			c.logger.Warn().Err(err).
				Str("record_id", desc.record.ID.String()).
				Msg("debug log flush failed")
		}
	}

	c.logger.Info().
		Int("mirrored", len(descendants)).
		Str("debug_root_id", c.debugRootID.String()).
		Msg("debug timeline built")
}

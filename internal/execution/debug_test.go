package execution

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/testutil"
)

// debugRecords extracts the debug mirror records from everything the
// queue saw, identified by the display-name suffix.
func debugRecords(records []*domain.TimelineRecord) []*domain.TimelineRecord {
	var out []*domain.TimelineRecord
	for _, rec := range records {
		if strings.HasSuffix(rec.Name, " (debug)") {
			out = append(out, rec)
		}
	}
	return out
}

func TestComplete_JobFailureBuildsDebugTimeline(t *testing.T) {
	h := newHarness(t)
	msg := testMessage()
	job := h.newJob(t, msg)
	job.Start("")

	checkoutID, compileID := uuid.New(), uuid.New()
	checkout := job.CreateChild(checkoutID, "Checkout", "checkout", nil)
	compile := job.CreateChild(compileID, "Compile", "compile", nil)

	checkout.Start("")
	require.NoError(t, checkout.Progress(50, ""))
	succeeded := constants.ResultSucceeded
	checkout.Complete(&succeeded, "")

	compile.Start("")
	compile.Error("compile failed")
	failed := constants.ResultFailed
	compile.Complete(&failed, "")

	final := job.Complete(&failed, "")
	assert.Equal(t, constants.ResultFailed, final)

	assert.Equal(t, 1, h.queue.stopPrimary)
	assert.Equal(t, 1, h.queue.startDebug)
	assert.Equal(t, []string{"stop-primary", "start-debug"}, h.queue.calls)

	mirrors := debugRecords(h.queue.updatesOn(msg.TimelineID))
	require.Len(t, mirrors, 3, "debug root plus one mirror per task")

	root := mirrors[0]
	assert.Equal(t, msg.JobName+" (debug)", root.Name)
	assert.Equal(t, constants.RecordTypeTask, root.Type)
	require.NotNil(t, root.ParentID)
	assert.Equal(t, msg.JobID, *root.ParentID, "debug root hangs off the job record")

	for i, mirror := range mirrors[1:] {
		require.NotNil(t, mirror.ParentID)
		assert.Equal(t, root.ID, *mirror.ParentID)
		require.NotNil(t, mirror.Order)
		assert.Equal(t, i+1, *mirror.Order)
		assert.Equal(t, constants.RecordTypeTask, mirror.Type)
	}
	assert.Equal(t, "Checkout (debug)", mirrors[1].Name)
	assert.Equal(t, "Compile (debug)", mirrors[2].Name)

	// Mirror ids are fresh; they never collide with the primary records.
	for _, mirror := range mirrors {
		assert.NotEqual(t, msg.JobID, mirror.ID)
		assert.NotEqual(t, checkoutID, mirror.ID)
		assert.NotEqual(t, compileID, mirror.ID)
	}

	assert.Equal(t, []uuid.UUID{checkoutID, compileID}, h.pages.flushes)
}

func TestComplete_JobSuccessSkipsDebugTimeline(t *testing.T) {
	h := newHarness(t)
	msg := testMessage()
	job := h.newJob(t, msg)
	job.Start("")
	task := job.CreateChild(uuid.New(), "Compile", "compile", nil)
	task.Start("")
	task.Complete(nil, "")

	job.Complete(nil, "")

	assert.Zero(t, h.queue.stopPrimary)
	assert.Zero(t, h.queue.startDebug)
	assert.Empty(t, debugRecords(h.queue.updatesOn(msg.TimelineID)))
	assert.Empty(t, h.pages.flushes)
}

func TestComplete_VerboseJobFailureSkipsDebugTimeline(t *testing.T) {
	h := newHarness(t)
	h.settings.Verbose = true
	msg := testMessage()
	job := h.newJob(t, msg)
	job.Start("")

	failed := constants.ResultFailed
	job.Complete(&failed, "")

	assert.Zero(t, h.queue.stopPrimary)
	assert.Zero(t, h.queue.startDebug)
	assert.Empty(t, debugRecords(h.queue.updatesOn(msg.TimelineID)))
}

func TestComplete_TaskFailureDoesNotTriggerDebug(t *testing.T) {
	h := newHarness(t)
	msg := testMessage()
	job := h.newJob(t, msg)
	task := job.CreateChild(uuid.New(), "Compile", "compile", nil)
	task.Start("")

	failed := constants.ResultFailed
	task.Complete(&failed, "")

	assert.Zero(t, h.queue.stopPrimary)
	assert.Zero(t, h.queue.startDebug)
}

func TestComplete_DebugFlushFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.pages.flushErr = testutil.ErrMockUpload
	msg := testMessage()
	job := h.newJob(t, msg)
	job.CreateChild(uuid.New(), "Compile", "compile", nil)

	failed := constants.ResultFailed
	final := job.Complete(&failed, "")

	assert.Equal(t, constants.ResultFailed, final)
	mirrors := debugRecords(h.queue.updatesOn(msg.TimelineID))
	assert.Len(t, mirrors, 2, "mirrors are still reported when a flush fails")
}

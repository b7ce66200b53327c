package joblog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/masker"
	"github.com/mrz1836/forge/internal/testutil"
)

// fakeUploader records enqueued file uploads.
type fakeUploader struct {
	uploads []fakeUpload
	err     error
}

type fakeUpload struct {
	timelineID  uuid.UUID
	recordID    uuid.UUID
	kind        string
	name        string
	path        string
	deleteAfter bool
}

func (u *fakeUploader) EnqueueFileUpload(timelineID, recordID uuid.UUID, kind, name, path string, deleteAfter bool) error {
	if u.err != nil {
		return u.err
	}
	u.uploads = append(u.uploads, fakeUpload{timelineID, recordID, kind, name, path, deleteAfter})
	return nil
}

type pageIDs struct {
	timelineID      uuid.UUID
	recordID        uuid.UUID
	debugTimelineID uuid.UUID
	debugRecordID   uuid.UUID
}

func newPageIDs() pageIDs {
	return pageIDs{
		timelineID:      uuid.New(),
		recordID:        uuid.New(),
		debugTimelineID: uuid.New(),
		debugRecordID:   uuid.New(),
	}
}

func newTestService(t *testing.T, verbose bool) (*Service, *fakeUploader, string) {
	t.Helper()
	dir := t.TempDir()
	uploads := &fakeUploader{}
	svc := NewService(dir, masker.New(), uploads, zerolog.Nop(), verbose)
	return svc, uploads, dir
}

func pageContent(t *testing.T, dir string, recordID uuid.UUID) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "pages", recordID.String()+".log")) //nolint:gosec // test path
	require.NoError(t, err)
	return string(data)
}

func TestService_WriteAndEnd(t *testing.T) {
	svc, uploads, dir := newTestService(t, false)
	ids := newPageIDs()
	svc.Setup(ids.timelineID, ids.recordID, false, ids.debugTimelineID, ids.debugRecordID)

	svc.Write(ids.recordID, "checking out sources", false)
	svc.Write(ids.recordID, "##[command]git fetch", false)

	require.NoError(t, svc.End(ids.recordID))

	content := pageContent(t, dir, ids.recordID)
	assert.Contains(t, content, "checking out sources")
	assert.Contains(t, content, "##[command]git fetch")

	require.Len(t, uploads.uploads, 1)
	up := uploads.uploads[0]
	assert.Equal(t, ids.timelineID, up.timelineID)
	assert.Equal(t, ids.recordID, up.recordID)
	assert.Equal(t, "log", up.kind)
	assert.Equal(t, ids.recordID.String()+".log", up.name)
	assert.False(t, up.deleteAfter, "pages stay on disk for a later debug flush")
	assert.FileExists(t, up.path)
}

func TestService_WriteMasksSecrets(t *testing.T) {
	dir := t.TempDir()
	m := masker.New()
	m.AddValue("page-secret-99")
	svc := NewService(dir, m, &fakeUploader{}, zerolog.Nop(), false)

	ids := newPageIDs()
	svc.Setup(ids.timelineID, ids.recordID, false, ids.debugTimelineID, ids.debugRecordID)
	svc.Write(ids.recordID, "token is page-secret-99", false)
	require.NoError(t, svc.End(ids.recordID))

	content := pageContent(t, dir, ids.recordID)
	assert.NotContains(t, content, "page-secret-99")
	assert.Contains(t, content, masker.RedactedValue)
}

func TestService_DebugLineFiltering(t *testing.T) {
	tests := []struct {
		name          string
		verbose       bool
		courtesyDebug bool
		wantWritten   bool
	}{
		{"dropped by default", false, false, false},
		{"kept when verbose", true, false, true},
		{"kept with courtesy debug", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, dir := newTestService(t, tt.verbose)
			ids := newPageIDs()
			svc.Setup(ids.timelineID, ids.recordID, tt.courtesyDebug, ids.debugTimelineID, ids.debugRecordID)

			svc.Write(ids.recordID, "##[debug]cache lookup", true)
			svc.Write(ids.recordID, "regular line", false)
			require.NoError(t, svc.End(ids.recordID))

			content := pageContent(t, dir, ids.recordID)
			assert.Contains(t, content, "regular line")
			if tt.wantWritten {
				assert.Contains(t, content, "cache lookup")
			} else {
				assert.NotContains(t, content, "cache lookup")
			}
		})
	}
}

func TestService_WriteUnknownPageIsDiscarded(t *testing.T) {
	svc, _, _ := newTestService(t, false)
	svc.Write(uuid.New(), "orphan line", false)
}

func TestService_WriteAfterEndIsDiscarded(t *testing.T) {
	svc, uploads, dir := newTestService(t, false)
	ids := newPageIDs()
	svc.Setup(ids.timelineID, ids.recordID, false, ids.debugTimelineID, ids.debugRecordID)
	svc.Write(ids.recordID, "before end", false)
	require.NoError(t, svc.End(ids.recordID))

	svc.Write(ids.recordID, "after end", false)

	content := pageContent(t, dir, ids.recordID)
	assert.Contains(t, content, "before end")
	assert.NotContains(t, content, "after end")
	assert.Len(t, uploads.uploads, 1)
}

func TestService_EndUnknownPage(t *testing.T) {
	svc, _, _ := newTestService(t, false)
	err := svc.End(uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrPageNotSetup)
}

func TestService_EndTwiceUploadsOnce(t *testing.T) {
	svc, uploads, _ := newTestService(t, false)
	ids := newPageIDs()
	svc.Setup(ids.timelineID, ids.recordID, false, ids.debugTimelineID, ids.debugRecordID)
	svc.Write(ids.recordID, "line", false)

	require.NoError(t, svc.End(ids.recordID))
	require.NoError(t, svc.End(ids.recordID))
	assert.Len(t, uploads.uploads, 1)
}

func TestService_FlushDebugTargetsReservedIDs(t *testing.T) {
	svc, uploads, _ := newTestService(t, false)
	ids := newPageIDs()
	svc.Setup(ids.timelineID, ids.recordID, false, ids.debugTimelineID, ids.debugRecordID)
	svc.Write(ids.recordID, "line", false)
	require.NoError(t, svc.End(ids.recordID))

	require.NoError(t, svc.FlushDebug(ids.recordID))

	require.Len(t, uploads.uploads, 2)
	debug := uploads.uploads[1]
	assert.Equal(t, ids.debugTimelineID, debug.timelineID)
	assert.Equal(t, ids.debugRecordID, debug.recordID)
	assert.Equal(t, "debug-log", debug.kind)
	assert.Equal(t, uploads.uploads[0].path, debug.path, "the same page file is re-attached")
}

func TestService_FlushDebugUnknownPage(t *testing.T) {
	svc, _, _ := newTestService(t, false)
	err := svc.FlushDebug(uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrPageNotSetup)
}

func TestService_FlushDebugPropagatesUploaderError(t *testing.T) {
	svc, uploads, _ := newTestService(t, false)
	ids := newPageIDs()
	svc.Setup(ids.timelineID, ids.recordID, false, ids.debugTimelineID, ids.debugRecordID)

	uploads.err = testutil.ErrMockUpload
	err := svc.FlushDebug(ids.recordID)
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrMockUpload)
}

// Package joblog implements the per-record log writer for FORGE jobs.
// Each execution unit gets its own log page on disk; lines pass through the
// secret masker before they are persisted, and a finished page is handed to
// the upload queue as a file attachment. After a job failure the same pages
// can be re-attached to the debug timeline for postmortem capture.
package joblog

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mrz1836/forge/internal/clock"
	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/masker"
)

// Uploader is the slice of the upload queue the log service needs.
type Uploader interface {
	EnqueueFileUpload(timelineID, recordID uuid.UUID, kind, name, path string, deleteAfter bool) error
}

// recordRef locates one timeline record.
type recordRef struct {
	timelineID uuid.UUID
	recordID   uuid.UUID
}

// page is the log stream of one execution unit.
type page struct {
	mu            sync.Mutex
	writer        io.Writer
	closer        io.Closer
	path          string
	primary       recordRef
	debug         recordRef
	courtesyDebug bool
	ended         bool
}

// Service manages log pages for every record of one job.
// Write serialization is per page, not global: descendant contexts fanning
// out into their parent's stream contend only on that page's lock.
type Service struct {
	mu      sync.Mutex
	pages   map[uuid.UUID]*page
	dir     string
	masker  *masker.Masker
	uploads Uploader
	logger  zerolog.Logger
	clock   clock.Clock
	verbose bool
}

// NewService creates a log service staging pages under dir.
// verbose makes debug-tagged lines visible regardless of per-page
// courtesy-debug settings.
func NewService(dir string, m *masker.Masker, uploads Uploader, logger zerolog.Logger, verbose bool) *Service {
	return &Service{
		pages:   make(map[uuid.UUID]*page),
		dir:     dir,
		masker:  m,
		uploads: uploads,
		logger:  logger.With().Str("component", "joblog").Logger(),
		clock:   clock.RealClock{},
		verbose: verbose,
	}
}

// Setup registers a log page for recordID. The debug ids are the pair
// reserved at context creation; they are only used if the job later fails
// and the page is flushed into the debug timeline.
func (s *Service) Setup(timelineID, recordID uuid.UUID, courtesyDebug bool, debugTimelineID, debugRecordID uuid.UUID) {
	path := filepath.Join(s.dir, constants.PagesDir, recordID.String()+".log")
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    constants.LogMaxSizeMB,
		MaxBackups: constants.LogMaxBackups,
		MaxAge:     constants.LogMaxAgeDays,
	}

	p := &page{
		writer:        masker.NewFilteringWriter(s.masker, lj),
		closer:        lj,
		path:          path,
		primary:       recordRef{timelineID: timelineID, recordID: recordID},
		debug:         recordRef{timelineID: debugTimelineID, recordID: debugRecordID},
		courtesyDebug: courtesyDebug,
	}

	s.mu.Lock()
	s.pages[recordID] = p
	s.mu.Unlock()
}

// Write appends one line to recordID's page. Debug-tagged lines are
// dropped unless verbose mode or the page's courtesy-debug flag is on.
// Writes on a missing or ended page are silently discarded so late log
// fan-out cannot fail a task.
func (s *Service) Write(recordID uuid.UUID, line string, isDebug bool) {
	if isDebug && !s.verbose {
		s.mu.Lock()
		p := s.pages[recordID]
		s.mu.Unlock()
		if p == nil || !p.courtesyDebug {
			return
		}
	}

	s.mu.Lock()
	p := s.pages[recordID]
	s.mu.Unlock()
	if p == nil {
		return
	}

	stamp := s.clock.Now().Format("2006-01-02T15:04:05.0000000Z")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return
	}
	fmt.Fprintf(p.writer, "%s %s\n", stamp, line)
}

// End closes recordID's page and enqueues it for upload against the
// primary record. Ending an unknown page returns ErrPageNotSetup.
func (s *Service) End(recordID uuid.UUID) error {
	s.mu.Lock()
	p := s.pages[recordID]
	s.mu.Unlock()
	if p == nil {
		return fmt.Errorf("%w: %s", forgeerrors.ErrPageNotSetup, recordID)
	}

	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return nil
	}
	p.ended = true
	_ = p.closer.Close()
	p.mu.Unlock()

	// Pages stay on disk after upload so a later debug flush can
	// re-attach them.
	if err := s.uploads.EnqueueFileUpload(p.primary.timelineID, p.primary.recordID, "log", recordID.String()+".log", p.path, false); err != nil {
		s.logger.Warn().Err(err).Str("record_id", recordID.String()).Msg("log page upload enqueue failed")
		return err
	}
	return nil
}

// FlushDebug re-attaches recordID's page to its reserved debug record.
// Invoked once per descendant when the debug timeline is built.
func (s *Service) FlushDebug(recordID uuid.UUID) error {
	s.mu.Lock()
	p := s.pages[recordID]
	s.mu.Unlock()
	if p == nil {
		return fmt.Errorf("%w: %s", forgeerrors.ErrPageNotSetup, recordID)
	}

	if err := s.uploads.EnqueueFileUpload(p.debug.timelineID, p.debug.recordID, "debug-log", recordID.String()+".log", p.path, false); err != nil {
		s.logger.Warn().Err(err).Str("record_id", recordID.String()).Msg("debug log flush enqueue failed")
		return err
	}
	return nil
}

// Package attendance drives the attendance-session workflow of a teacher:
// listing sessions, composing a new one, loading the roster, recording
// attendance in a ledger, saving it and finalizing the session.
package attendance

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/model"
)

// Backend is the REST contract the workflow needs.
type Backend interface {
	ListSessions(ctx context.Context, courseID int64, scheduleID *int64) ([]model.Session, error)
	CreateSession(ctx context.Context, in model.NewSession) (model.Session, error)
	FinalizeSession(ctx context.Context, s model.Session) (model.Session, error)
	ListAttendance(ctx context.Context, sessionID int64) ([]model.Record, error)
	UpsertAttendance(ctx context.Context, in model.RecordInput) (model.Record, error)
	ListRoster(ctx context.Context, courseID int64) ([]model.RosterEntry, error)
}

var (
	// ErrNoActiveSession is returned when an operation needs a selected session.
	ErrNoActiveSession error = apierr.NewWorkflowError("no session selected")
	// ErrConfirmationRequired is returned when finalizing without confirmation.
	ErrConfirmationRequired error = apierr.NewWorkflowError("finalizing is irreversible and must be confirmed")
)

// DefaultSaveConcurrency bounds in-flight upserts during a bulk save.
const DefaultSaveConcurrency = 8

// Service coordinates one teacher's view of a course's sessions.
type Service struct {
	backend     Backend
	log         *zap.Logger
	concurrency int

	mu     sync.Mutex
	active *model.Session
}

// NewService creates a workflow backed by the REST contract.
func NewService(backend Backend, concurrency int, logger *zap.Logger) *Service {
	if concurrency <= 0 {
		concurrency = DefaultSaveConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, concurrency: concurrency, log: logger}
}

// Directory lists a course's sessions, most recent first.
func (s *Service) Directory(ctx context.Context, courseID int64, scheduleID *int64) ([]model.Session, error) {
	sessions, err := s.backend.ListSessions(ctx, courseID, scheduleID)
	if err != nil {
		return nil, err
	}
	return SortSessions(sessions), nil
}

// Compose validates the draft, creates the session and selects it. On any
// failure nothing is selected and the draft is unchanged.
func (s *Service) Compose(ctx context.Context, d Draft) (model.Session, error) {
	req, err := d.Request()
	if err != nil {
		return model.Session{}, err
	}
	created, err := s.backend.CreateSession(ctx, req)
	if err != nil {
		return model.Session{}, err
	}
	if created.Finalized {
		return model.Session{}, &apierr.APIError{StatusCode: 502, Message: "server created the session already finalized"}
	}
	s.log.Info("session created", zap.Int64("session_id", created.ID), zap.Int64("course_id", created.CourseID),
		zap.String("date", created.Date))
	s.Select(created)
	return created, nil
}

// Select makes a session the active one.
func (s *Service) Select(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &sess
}

// Active returns the selected session.
func (s *Service) Active() (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return model.Session{}, false
	}
	return *s.active, true
}

// LoadRoster fetches the students enrolled in a course.
func (s *Service) LoadRoster(ctx context.Context, courseID int64) (Roster, error) {
	entries, err := s.backend.ListRoster(ctx, courseID)
	if err != nil {
		return Roster{}, err
	}
	return newRoster(courseID, entries), nil
}

// Open builds the ledger of the active session from its course roster and
// already stored records. An empty roster yields a ledger with no rows; it
// can still be finalized.
func (s *Service) Open(ctx context.Context) (*Ledger, Roster, error) {
	sess, ok := s.Active()
	if !ok {
		return nil, Roster{}, ErrNoActiveSession
	}
	roster, err := s.LoadRoster(ctx, sess.CourseID)
	if err != nil {
		return nil, Roster{}, err
	}
	if roster.State == RosterEmpty {
		return NewLedger(sess, nil, nil), roster, nil
	}
	records, err := s.backend.ListAttendance(ctx, sess.ID)
	if err != nil {
		return nil, Roster{}, err
	}
	return NewLedger(sess, roster.Entries, records), roster, nil
}

// SaveResult describes a bulk save.
type SaveResult struct {
	Attempted int
	Succeeded int
	Failed    map[int64]error
}

// Err returns a PartialSaveError when any upsert failed.
func (r SaveResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &apierr.PartialSaveError{Attempted: r.Attempted, Failed: r.Failed}
}

// Save writes one record per student with a status, concurrently. Upserts
// are independent: a failure leaves the others written. Afterwards the
// ledger is reconciled with the server's records.
func (s *Service) Save(ctx context.Context, l *Ledger) (SaveResult, error) {
	if l == nil {
		return SaveResult{}, ErrNoActiveSession
	}
	if !l.Editable() {
		return SaveResult{}, ErrSessionFinalized
	}

	pending := l.Pending()
	res := SaveResult{Attempted: len(pending), Failed: map[int64]error{}}
	if len(pending) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, in := range pending {
		g.Go(func() error {
			_, err := s.backend.UpsertAttendance(ctx, in)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[in.StudentID] = err
				return nil
			}
			res.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	sess := l.Session()
	if len(res.Failed) > 0 {
		s.log.Warn("attendance partially saved", zap.Int64("session_id", sess.ID),
			zap.Int("attempted", res.Attempted), zap.Int("failed", len(res.Failed)))
	}

	records, err := s.backend.ListAttendance(ctx, sess.ID)
	if err != nil {
		return res, fmt.Errorf("reload attendance: %w", err)
	}
	l.reconcile(records)
	return res, res.Err()
}

// RefreshError is returned by Finalize when the session was finalized but
// the directory could not be reloaded afterwards.
type RefreshError struct {
	Session model.Session
	Err     error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("session %d finalized, but reloading sessions failed: %v", e.Session.ID, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Finalize locks the ledger's session. It requires explicit confirmation and
// an open session. The ledger turns read-only as soon as the backend accepts;
// the refreshed directory is returned. A failed refresh comes back as a
// *RefreshError and leaves the session finalized.
func (s *Service) Finalize(ctx context.Context, l *Ledger, confirmed bool) ([]model.Session, error) {
	if l == nil {
		return nil, ErrNoActiveSession
	}
	if !l.Editable() {
		return nil, ErrSessionFinalized
	}
	if !confirmed {
		return nil, ErrConfirmationRequired
	}

	sess := l.Session()
	updated, err := s.backend.FinalizeSession(ctx, sess)
	if err != nil {
		return nil, err
	}
	l.finalize(updated)
	s.Select(l.Session())
	s.log.Info("session finalized", zap.Int64("session_id", sess.ID))

	dir, err := s.Directory(ctx, sess.CourseID, sess.ScheduleID)
	if err != nil {
		s.log.Warn("session list refresh failed", zap.Int64("session_id", sess.ID), zap.Error(err))
		return nil, &RefreshError{Session: l.Session(), Err: err}
	}
	return dir, nil
}

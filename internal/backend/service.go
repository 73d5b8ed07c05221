package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/classroll/attendance/internal/auth"
	"github.com/classroll/attendance/internal/model"
	"github.com/classroll/attendance/internal/queue"
	"github.com/classroll/attendance/internal/report"
)

var (
	// ErrBadCredentials is returned by Login for unknown users or wrong passwords.
	ErrBadCredentials = errors.New("invalid username or password")
	// ErrNotEnrolled is returned when recording attendance for a student outside the roster.
	ErrNotEnrolled = errors.New("student is not enrolled in the course")
	// ErrReopen is returned when an update tries to clear the finalized flag.
	ErrReopen = errors.New("a finalized session cannot be reopened")
)

// InvalidError wraps input the backend rejects.
type InvalidError struct{ Err error }

func (e *InvalidError) Error() string { return e.Err.Error() }
func (e *InvalidError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &InvalidError{Err: fmt.Errorf(format, args...)}
}

// TokenConfig configures issued access tokens.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
}

// Service implements the REST contract on top of a Repository.
type Service struct {
	repo   Repository
	events queue.Queue
	tokens TokenConfig
	log    *zap.Logger
}

// NewService creates a service. events may be nil when no worker runs.
func NewService(repo Repository, events queue.Queue, tokens TokenConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens.TTL <= 0 {
		tokens.TTL = 8 * time.Hour
	}
	return &Service{repo: repo, events: events, tokens: tokens, log: logger}
}

// Repo exposes the underlying repository for read-through handlers.
func (s *Service) Repo() Repository { return s.repo }

// Login verifies a password and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (auth.Token, error) {
	u, err := s.repo.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Token{}, ErrBadCredentials
		}
		return auth.Token{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return auth.Token{}, ErrBadCredentials
	}
	return auth.Issue(u.ID, u.Role, s.tokens.Issuer, s.tokens.SigningKey, s.tokens.TTL)
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// CreateSession validates and stores a new open session.
func (s *Service) CreateSession(ctx context.Context, in model.NewSession) (model.Session, error) {
	st, err := model.ParseSessionType(string(in.SessionType))
	if err != nil {
		return model.Session{}, invalid("%v", err)
	}
	in.SessionType = st
	if _, err := model.ParseDate(in.Date); err != nil {
		return model.Session{}, invalid("%v", err)
	}
	start, err := model.ParseClock(in.StartTime)
	if err != nil {
		return model.Session{}, invalid("start time: %v", err)
	}
	end, err := model.ParseClock(in.EndTime)
	if err != nil {
		return model.Session{}, invalid("end time: %v", err)
	}
	if !end.After(start) {
		return model.Session{}, invalid("end time must be after start time")
	}
	if _, err := s.repo.GetCourse(ctx, in.CourseID); err != nil {
		return model.Session{}, err
	}
	if in.ScheduleID != nil {
		if err := s.checkSchedule(ctx, in.CourseID, *in.ScheduleID); err != nil {
			return model.Session{}, err
		}
	}
	created, err := s.repo.InsertSession(ctx, in)
	if err != nil {
		return model.Session{}, err
	}
	s.log.Info("session created", zap.Int64("session_id", created.ID), zap.Int64("course_id", created.CourseID))
	return created, nil
}

func (s *Service) checkSchedule(ctx context.Context, courseID, scheduleID int64) error {
	schedules, err := s.repo.ListSchedules(ctx, courseID)
	if err != nil {
		return err
	}
	for _, sc := range schedules {
		if sc.ID == scheduleID {
			return nil
		}
	}
	return invalid("schedule %d does not belong to course %d", scheduleID, courseID)
}

// UpdateSession applies an update. Setting finalized is one-way; once a
// session is finalized every update is rejected except a repeated finalize,
// which returns the stored session.
func (s *Service) UpdateSession(ctx context.Context, in model.Session) (model.Session, error) {
	cur, err := s.repo.GetSession(ctx, in.ID)
	if err != nil {
		return model.Session{}, err
	}
	if cur.Finalized {
		if in.Finalized {
			return cur, nil
		}
		return cur, ErrReopen
	}

	// Course binding never changes.
	in.CourseID = cur.CourseID
	if in.Date == "" {
		in.Date = cur.Date
	}
	if in.StartTime == "" {
		in.StartTime = cur.StartTime
	}
	if in.EndTime == "" {
		in.EndTime = cur.EndTime
	}
	if in.SessionType == "" {
		in.SessionType = cur.SessionType
	}
	if err := in.Validate(); err != nil {
		return model.Session{}, &InvalidError{Err: err}
	}

	updated, err := s.repo.UpdateSession(ctx, in)
	if errors.Is(err, ErrFinalized) {
		// Lost a race with another finalize.
		if in.Finalized {
			return updated, nil
		}
		return updated, ErrReopen
	}
	if err != nil {
		return model.Session{}, err
	}
	if updated.Finalized {
		s.log.Info("session finalized", zap.Int64("session_id", updated.ID))
		s.publish(ctx, queue.NewEvent(queue.TypeSessionFinalized, updated.ID))
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, evt queue.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("queue publish failed", zap.String("type", evt.Type), zap.Int64("session_id", evt.SessionID), zap.Error(err))
	}
}

// UpsertRecord writes one student's attendance while the session is open.
func (s *Service) UpsertRecord(ctx context.Context, in model.RecordInput) (model.Record, error) {
	if !in.Status.Valid() {
		return model.Record{}, invalid("unknown attendance status %q", in.Status)
	}
	if in.TimeIn != "" {
		if _, err := model.ParseClock(in.TimeIn); err != nil {
			return model.Record{}, invalid("time in: %v", err)
		}
	}
	sess, err := s.repo.GetSession(ctx, in.SessionID)
	if err != nil {
		return model.Record{}, err
	}
	if sess.Finalized {
		return model.Record{}, ErrFinalized
	}
	if in.CourseID != 0 && in.CourseID != sess.CourseID {
		return model.Record{}, invalid("session %d does not belong to course %d", sess.ID, in.CourseID)
	}
	roster, err := s.repo.ListRoster(ctx, sess.CourseID)
	if err != nil {
		return model.Record{}, err
	}
	enrolled := false
	for _, e := range roster {
		if e.StudentID == in.StudentID {
			enrolled = true
			break
		}
	}
	if !enrolled {
		return model.Record{}, ErrNotEnrolled
	}
	return s.repo.UpsertRecord(ctx, in)
}

// Summarize computes and stores the report of a finalized session.
func (s *Service) Summarize(ctx context.Context, sessionID int64) (report.Summary, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return report.Summary{}, err
	}
	if !sess.Finalized {
		return report.Summary{}, invalid("session %d is not finalized", sessionID)
	}
	roster, err := s.repo.ListRoster(ctx, sess.CourseID)
	if err != nil {
		return report.Summary{}, err
	}
	records, err := s.repo.ListRecords(ctx, sessionID)
	if err != nil {
		return report.Summary{}, err
	}
	sum := report.Summarize(sess, len(roster), records, time.Now())
	if err := s.repo.SaveSummary(ctx, sum); err != nil {
		return report.Summary{}, err
	}
	return sum, nil
}

// Package backend is a reference implementation of the attendance REST
// backend used for local development and end-to-end tests.
package backend

import (
	"context"
	"errors"

	"github.com/classroll/attendance/internal/model"
	"github.com/classroll/attendance/internal/report"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrFinalized is returned when writing to a finalized session.
	ErrFinalized = errors.New("session is finalized")
)

// User is an account that can log in.
type User struct {
	ID           int64
	Username     string
	Name         string
	Role         string
	PasswordHash string
}

// Repository persists the backend's entities.
type Repository interface {
	UserByUsername(ctx context.Context, username string) (User, error)

	ListCourses(ctx context.Context) ([]model.Course, error)
	GetCourse(ctx context.Context, id int64) (model.Course, error)
	ListSchedules(ctx context.Context, courseID int64) ([]model.ClassSchedule, error)
	ListRoster(ctx context.Context, courseID int64) ([]model.RosterEntry, error)

	ListSessions(ctx context.Context, courseID int64, scheduleID *int64) ([]model.Session, error)
	GetSession(ctx context.Context, id int64) (model.Session, error)
	InsertSession(ctx context.Context, in model.NewSession) (model.Session, error)
	// UpdateSession writes s only while the stored session is open; it
	// returns ErrFinalized otherwise.
	UpdateSession(ctx context.Context, s model.Session) (model.Session, error)

	ListRecords(ctx context.Context, sessionID int64) ([]model.Record, error)
	// UpsertRecord writes one record keyed by (session, student) only while
	// the session is open.
	UpsertRecord(ctx context.Context, in model.RecordInput) (model.Record, error)

	SaveSummary(ctx context.Context, s report.Summary) error
	GetSummary(ctx context.Context, sessionID int64) (report.Summary, error)
}

// Seeder adds reference data. Both repositories implement it.
type Seeder interface {
	AddUser(ctx context.Context, u User) (User, error)
	AddCourse(ctx context.Context, c model.Course) (model.Course, error)
	AddSchedule(ctx context.Context, courseID int64, s model.ClassSchedule) (model.ClassSchedule, error)
	AddStudent(ctx context.Context, courseID int64, e model.RosterEntry) (model.RosterEntry, error)
}

package attendance

import (
	"context"
	"fmt"
	"sync"

	"github.com/classroll/attendance/internal/model"
)

// fakeBackend records calls and keeps state in memory.
type fakeBackend struct {
	mu       sync.Mutex
	nextID   int64
	sessions []model.Session
	roster   map[int64][]model.RosterEntry
	records  map[int64]map[int64]model.Record

	creates   int
	upserts   []model.RecordInput
	finalizes int
	failFor   map[int64]bool // student ids whose upsert fails
	listErr   error
	// listErrAfterFinalize becomes listErr once a finalize succeeds.
	listErrAfterFinalize error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID:  100,
		roster:  map[int64][]model.RosterEntry{},
		records: map[int64]map[int64]model.Record{},
		failFor: map[int64]bool{},
	}
}

func (f *fakeBackend) ListSessions(_ context.Context, courseID int64, scheduleID *int64) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Session
	for _, s := range f.sessions {
		if s.CourseID != courseID {
			continue
		}
		if scheduleID != nil && (s.ScheduleID == nil || *s.ScheduleID != *scheduleID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeBackend) CreateSession(_ context.Context, in model.NewSession) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.nextID++
	s := model.Session{
		ID: f.nextID, CourseID: in.CourseID, ScheduleID: in.ScheduleID, Date: in.Date,
		StartTime: in.StartTime, EndTime: in.EndTime, SessionType: in.SessionType, Remarks: in.Remarks,
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeBackend) FinalizeSession(_ context.Context, s model.Session) (model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizes++
	for i := range f.sessions {
		if f.sessions[i].ID == s.ID {
			f.sessions[i].Finalized = true
			if f.listErrAfterFinalize != nil {
				f.listErr = f.listErrAfterFinalize
			}
			return f.sessions[i], nil
		}
	}
	return model.Session{}, fmt.Errorf("session %d not found", s.ID)
}

func (f *fakeBackend) ListAttendance(_ context.Context, sessionID int64) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, r := range f.records[sessionID] {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeBackend) UpsertAttendance(_ context.Context, in model.RecordInput) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, in)
	if f.failFor[in.StudentID] {
		return model.Record{}, fmt.Errorf("write failed for %d", in.StudentID)
	}
	if f.records[in.SessionID] == nil {
		f.records[in.SessionID] = map[int64]model.Record{}
	}
	r := model.Record{
		StudentID: in.StudentID, SessionID: in.SessionID, CourseID: in.CourseID, Date: in.Date,
		Status: in.Status, Remarks: in.Remarks, TimeIn: in.TimeIn,
	}
	f.records[in.SessionID][in.StudentID] = r
	return r, nil
}

func (f *fakeBackend) ListRoster(_ context.Context, courseID int64) ([]model.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster[courseID], nil
}

package backend

import (
	"context"
	"sort"
	"sync"

	"github.com/classroll/attendance/internal/model"
	"github.com/classroll/attendance/internal/report"
)

type recordKey struct {
	session int64
	student int64
}

// MemoryRepository keeps everything in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	seq       int64
	users     map[string]User
	courses   map[int64]model.Course
	schedules map[int64][]model.ClassSchedule
	roster    map[int64][]model.RosterEntry
	sessions  map[int64]model.Session
	records   map[recordKey]model.Record
	summaries map[int64]report.Summary
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     map[string]User{},
		courses:   map[int64]model.Course{},
		schedules: map[int64][]model.ClassSchedule{},
		roster:    map[int64][]model.RosterEntry{},
		sessions:  map[int64]model.Session{},
		records:   map[recordKey]model.Record{},
		summaries: map[int64]report.Summary{},
	}
}

func (m *MemoryRepository) next() int64 {
	m.seq++
	return m.seq
}

func (m *MemoryRepository) AddUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.next()
	}
	m.users[u.Username] = u
	return u, nil
}

func (m *MemoryRepository) AddCourse(_ context.Context, c model.Course) (model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.next()
	}
	m.courses[c.ID] = c
	return c, nil
}

func (m *MemoryRepository) AddSchedule(_ context.Context, courseID int64, s model.ClassSchedule) (model.ClassSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[courseID]; !ok {
		return model.ClassSchedule{}, ErrNotFound
	}
	if s.ID == 0 {
		s.ID = m.next()
	}
	m.schedules[courseID] = append(m.schedules[courseID], s)
	return s, nil
}

func (m *MemoryRepository) AddStudent(_ context.Context, courseID int64, e model.RosterEntry) (model.RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[courseID]; !ok {
		return model.RosterEntry{}, ErrNotFound
	}
	if e.StudentID == 0 {
		e.StudentID = m.next()
	}
	m.roster[courseID] = append(m.roster[courseID], e)
	return e, nil
}

func (m *MemoryRepository) UserByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryRepository) ListCourses(context.Context) ([]model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryRepository) GetCourse(_ context.Context, id int64) (model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return model.Course{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryRepository) ListSchedules(_ context.Context, courseID int64) ([]model.ClassSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ClassSchedule(nil), m.schedules[courseID]...), nil
}

func (m *MemoryRepository) ListRoster(_ context.Context, courseID int64) ([]model.RosterEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]model.RosterEntry(nil), m.roster[courseID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) ListSessions(_ context.Context, courseID int64, scheduleID *int64) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.CourseID != courseID {
			continue
		}
		if scheduleID != nil && (s.ScheduleID == nil || *s.ScheduleID != *scheduleID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryRepository) GetSession(_ context.Context, id int64) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRepository) InsertSession(_ context.Context, in model.NewSession) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Session{
		ID:          m.next(),
		CourseID:    in.CourseID,
		ScheduleID:  in.ScheduleID,
		Date:        in.Date,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		SessionType: in.SessionType,
		Remarks:     in.Remarks,
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemoryRepository) UpdateSession(_ context.Context, s model.Session) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	if cur.Finalized {
		return cur, ErrFinalized
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemoryRepository) ListRecords(_ context.Context, sessionID int64) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Record
	for k, r := range m.records {
		if k.session == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *MemoryRepository) UpsertRecord(_ context.Context, in model.RecordInput) (model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[in.SessionID]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	if s.Finalized {
		return model.Record{}, ErrFinalized
	}
	k := recordKey{session: in.SessionID, student: in.StudentID}
	r, exists := m.records[k]
	if !exists {
		r.ID = m.next()
	}
	r.StudentID = in.StudentID
	r.SessionID = in.SessionID
	r.CourseID = s.CourseID
	r.Date = s.Date
	r.Status = in.Status
	r.Remarks = in.Remarks
	r.TimeIn = in.TimeIn
	m.records[k] = r
	return r, nil
}

func (m *MemoryRepository) SaveSummary(_ context.Context, s report.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.SessionID] = s
	return nil
}

func (m *MemoryRepository) GetSummary(_ context.Context, sessionID int64) (report.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[sessionID]
	if !ok {
		return report.Summary{}, ErrNotFound
	}
	return s, nil
}

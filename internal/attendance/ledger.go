package attendance

import (
	"fmt"
	"sync"
	"time"

	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/model"
)

// State is the lifecycle state of a session as the ledger sees it.
type State int

const (
	StateOpen State = iota
	StateFinalized
)

func (s State) String() string {
	if s == StateFinalized {
		return "FINALIZED"
	}
	return "OPEN"
}

var (
	// ErrSessionFinalized is returned by every edit or save on a finalized session.
	ErrSessionFinalized error = apierr.NewWorkflowError("session is finalized; attendance can no longer be edited")
	// ErrUnknownStudent is returned when editing a student not on the roster.
	ErrUnknownStudent error = apierr.NewWorkflowError("student is not on the roster")
)

// Entry is one student's editable attendance triple.
type Entry struct {
	Student model.RosterEntry
	Status  model.Status
	Remarks string
	TimeIn  string
	// Saved is true when the values came from a stored record.
	Saved bool
}

// Row is the view model of one ledger line. Disabled applies to every
// control on the line.
type Row struct {
	Entry
	Disabled bool
}

// Ledger holds the attendance being recorded for one session. It is safe
// for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	session model.Session
	order   []int64
	entries map[int64]*Entry
	now     func() time.Time
}

// NewLedger builds a ledger for the roster, prefilled from existing records.
// Records of students no longer on the roster are ignored.
func NewLedger(session model.Session, roster []model.RosterEntry, existing []model.Record) *Ledger {
	l := &Ledger{
		session: session,
		entries: make(map[int64]*Entry, len(roster)),
		now:     time.Now,
	}
	for _, st := range roster {
		if _, dup := l.entries[st.StudentID]; dup {
			continue
		}
		l.order = append(l.order, st.StudentID)
		l.entries[st.StudentID] = &Entry{Student: st}
	}
	l.seed(existing)
	return l
}

func (l *Ledger) seed(records []model.Record) {
	for _, r := range records {
		e, ok := l.entries[r.StudentID]
		if !ok {
			continue
		}
		e.Status = r.Status
		e.Remarks = r.Remarks
		e.TimeIn = r.TimeIn
		e.Saved = true
	}
}

// Session returns the session the ledger belongs to.
func (l *Ledger) Session() model.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.session
}

// State reports OPEN or FINALIZED.
func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.session.Finalized {
		return StateFinalized
	}
	return StateOpen
}

// Editable reports whether edits are accepted.
func (l *Ledger) Editable() bool {
	return l.State() == StateOpen
}

// SetStatus changes a student's status. PRESENT and LATE fill an empty
// time-in with the current wall-clock time; ABSENT and EXCUSED clear it.
// StatusUnset clears the whole entry so nothing is submitted for the student.
func (l *Ledger) SetStatus(studentID int64, status model.Status) error {
	if status != model.StatusUnset && !status.Valid() {
		return apierr.NewWorkflowError(fmt.Sprintf("unknown attendance status %q", status))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.editable(studentID)
	if err != nil {
		return err
	}
	e.Status = status
	switch status {
	case model.StatusPresent, model.StatusLate:
		if e.TimeIn == "" {
			e.TimeIn = model.FormatClock(l.now())
		}
	case model.StatusAbsent, model.StatusExcused:
		e.TimeIn = ""
	case model.StatusUnset:
		e.TimeIn = ""
		e.Remarks = ""
	}
	return nil
}

// SetTimeIn overrides a student's time-in. An empty value clears it.
func (l *Ledger) SetTimeIn(studentID int64, timeIn string) error {
	if timeIn != "" {
		if _, err := model.ParseClock(timeIn); err != nil {
			return apierr.NewWorkflowError(err.Error())
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.editable(studentID)
	if err != nil {
		return err
	}
	e.TimeIn = timeIn
	return nil
}

// SetRemarks edits a student's remarks.
func (l *Ledger) SetRemarks(studentID int64, remarks string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.editable(studentID)
	if err != nil {
		return err
	}
	e.Remarks = remarks
	return nil
}

func (l *Ledger) editable(studentID int64) (*Entry, error) {
	if l.session.Finalized {
		return nil, ErrSessionFinalized
	}
	e, ok := l.entries[studentID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStudent, studentID)
	}
	return e, nil
}

// Entry returns a copy of one student's entry.
func (l *Ledger) Entry(studentID int64) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[studentID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Rows renders the ledger in roster order.
func (l *Ledger) Rows() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rows := make([]Row, 0, len(l.order))
	for _, id := range l.order {
		rows = append(rows, Row{Entry: *l.entries[id], Disabled: l.session.Finalized})
	}
	return rows
}

// Pending returns one upsert per student with a status set, in roster order.
func (l *Ledger) Pending() []model.RecordInput {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.RecordInput
	for _, id := range l.order {
		e := l.entries[id]
		if e.Status == model.StatusUnset {
			continue
		}
		out = append(out, model.RecordInput{
			StudentID: id,
			CourseID:  l.session.CourseID,
			SessionID: l.session.ID,
			Date:      l.session.Date,
			Status:    e.Status,
			Remarks:   e.Remarks,
			TimeIn:    e.TimeIn,
		})
	}
	return out
}

// reconcile replaces entry values with the server's records. Entries the
// server has no record for keep their local edits.
func (l *Ledger) reconcile(records []model.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seed(records)
}

// finalize moves the ledger to FINALIZED. There is no way back.
func (l *Ledger) finalize(s model.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.Finalized = true
	l.session = s
}

package attendance

import (
	"fmt"

	"github.com/classroll/attendance/internal/model"
)

// RosterState distinguishes a usable roster from a course nobody is enrolled in.
type RosterState int

const (
	RosterReady RosterState = iota
	RosterEmpty
)

func (s RosterState) String() string {
	if s == RosterEmpty {
		return "empty"
	}
	return "ready"
}

// Roster is the enrolled-student snapshot for a course.
type Roster struct {
	CourseID int64
	State    RosterState
	Entries  []model.RosterEntry
	// EnrollHint is where the caller should send the user when State is
	// RosterEmpty.
	EnrollHint string
}

func newRoster(courseID int64, entries []model.RosterEntry) Roster {
	r := Roster{CourseID: courseID, Entries: entries}
	if len(entries) == 0 {
		r.State = RosterEmpty
		r.EnrollHint = fmt.Sprintf("/courses/%d/enrollments/new", courseID)
	}
	return r
}

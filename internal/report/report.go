// Package report tallies the attendance of finalized sessions.
package report

import (
	"time"

	"github.com/classroll/attendance/internal/model"
)

// Summary is the tally of one session.
type Summary struct {
	SessionID      int64                `json:"sessionId"`
	CourseID       int64                `json:"courseId"`
	Date           string               `json:"date"`
	Counts         map[model.Status]int `json:"counts"`
	Enrolled       int                  `json:"enrolled"`
	Recorded       int                  `json:"recorded"`
	AttendanceRate float64              `json:"attendanceRate"`
	GeneratedAt    time.Time            `json:"generatedAt"`
}

// Summarize counts records per status. Students on the roster without a
// record count as enrolled but not recorded. The rate is attended
// (present or late) over enrolled.
func Summarize(s model.Session, enrolled int, records []model.Record, now time.Time) Summary {
	out := Summary{
		SessionID:   s.ID,
		CourseID:    s.CourseID,
		Date:        s.Date,
		Counts:      make(map[model.Status]int, len(model.Statuses)),
		Enrolled:    enrolled,
		GeneratedAt: now.UTC(),
	}
	for _, st := range model.Statuses {
		out.Counts[st] = 0
	}
	attended := 0
	for _, r := range records {
		if !r.Status.Valid() {
			continue
		}
		out.Counts[r.Status]++
		out.Recorded++
		if r.Status.Attended() {
			attended++
		}
	}
	if out.Enrolled < out.Recorded {
		out.Enrolled = out.Recorded
	}
	if out.Enrolled > 0 {
		out.AttendanceRate = float64(attended) / float64(out.Enrolled)
	}
	return out
}

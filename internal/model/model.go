// Package model defines the entities exchanged with the attendance backend
// and the checks applied to them at the client boundary.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// SessionType classifies an attendance session.
type SessionType string

const (
	SessionLecture    SessionType = "LECTURE"
	SessionLaboratory SessionType = "LABORATORY"
	SessionQuiz       SessionType = "QUIZ"
	SessionExam       SessionType = "EXAM"
	SessionOther      SessionType = "OTHER"
)

// SessionTypes lists the accepted session types in display order.
var SessionTypes = []SessionType{SessionLecture, SessionLaboratory, SessionQuiz, SessionExam, SessionOther}

// ParseSessionType normalises user or wire input. "LAB" is accepted as an
// alias for LABORATORY.
func ParseSessionType(s string) (SessionType, error) {
	v := SessionType(strings.ToUpper(strings.TrimSpace(s)))
	if v == "LAB" {
		v = SessionLaboratory
	}
	if !v.Valid() {
		return "", fmt.Errorf("unknown session type %q", s)
	}
	return v, nil
}

// Valid reports whether t is one of the supported session types.
func (t SessionType) Valid() bool {
	switch t {
	case SessionLecture, SessionLaboratory, SessionQuiz, SessionExam, SessionOther:
		return true
	}
	return false
}

// Status is a student's attendance status within one session.
type Status string

const (
	StatusUnset   Status = ""
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
	StatusExcused Status = "EXCUSED"
)

// Statuses lists the selectable statuses in display order.
var Statuses = []Status{StatusPresent, StatusLate, StatusAbsent, StatusExcused}

// ParseStatus normalises input; the empty string yields StatusUnset.
func ParseStatus(s string) (Status, error) {
	v := Status(strings.ToUpper(strings.TrimSpace(s)))
	if v == StatusUnset || v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// Valid reports whether s is a concrete (non-empty) status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusExcused:
		return true
	}
	return false
}

// Attended reports whether the status records the student in the room.
func (s Status) Attended() bool {
	return s == StatusPresent || s == StatusLate
}

// Course is a catalog entry. It is read-only to the session workflow.
type Course struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Units int    `json:"units"`
	Type  string `json:"type"`
}

// Validate checks a decoded course.
func (c Course) Validate() error {
	if c.ID <= 0 {
		return errors.New("course: id required")
	}
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("course %d: code required", c.ID)
	}
	return nil
}

// ClassSchedule is a weekly meeting slot of an offered course.
type ClassSchedule struct {
	ID              int64  `json:"id"`
	DayOfWeek       string `json:"dayOfWeek"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	ClassroomID     int64  `json:"classroomId"`
	OfferedCourseID int64  `json:"offeredCourseId"`
}

// Validate checks a decoded schedule.
func (s ClassSchedule) Validate() error {
	if s.ID <= 0 {
		return errors.New("schedule: id required")
	}
	if err := checkWindow(s.StartTime, s.EndTime); err != nil {
		return fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	return nil
}

// Session is one meeting of a course on a specific date.
type Session struct {
	ID          int64       `json:"id"`
	CourseID    int64       `json:"courseId"`
	ScheduleID  *int64      `json:"scheduleId,omitempty"`
	Date        string      `json:"date"`
	StartTime   string      `json:"startTime"`
	EndTime     string      `json:"endTime"`
	SessionType SessionType `json:"sessionType"`
	Finalized   bool        `json:"finalized"`
	Remarks     string      `json:"remarks,omitempty"`
}

// Validate checks a decoded session.
func (s Session) Validate() error {
	if s.ID <= 0 {
		return errors.New("session: id required")
	}
	if s.CourseID <= 0 {
		return fmt.Errorf("session %d: course id required", s.ID)
	}
	if _, err := ParseDate(s.Date); err != nil {
		return fmt.Errorf("session %d: %w", s.ID, err)
	}
	if err := checkWindow(s.StartTime, s.EndTime); err != nil {
		return fmt.Errorf("session %d: %w", s.ID, err)
	}
	if !s.SessionType.Valid() {
		return fmt.Errorf("session %d: unknown session type %q", s.ID, s.SessionType)
	}
	return nil
}

// NewSession is the body of a create-session request.
type NewSession struct {
	CourseID    int64       `json:"courseId"`
	ScheduleID  *int64      `json:"scheduleId,omitempty"`
	Date        string      `json:"date"`
	StartTime   string      `json:"startTime"`
	EndTime     string      `json:"endTime"`
	SessionType SessionType `json:"sessionType"`
	Remarks     string      `json:"remarks,omitempty"`
}

// Record is one student's attendance in one session.
type Record struct {
	ID        int64  `json:"id,omitempty"`
	StudentID int64  `json:"studentId"`
	SessionID int64  `json:"sessionId"`
	CourseID  int64  `json:"courseId"`
	Date      string `json:"date"`
	Status    Status `json:"status"`
	Remarks   string `json:"remarks,omitempty"`
	TimeIn    string `json:"timeIn,omitempty"`
}

// Validate checks a decoded record.
func (r Record) Validate() error {
	if r.StudentID <= 0 || r.SessionID <= 0 {
		return errors.New("attendance record: student and session ids required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("attendance record for student %d: unknown status %q", r.StudentID, r.Status)
	}
	if r.TimeIn != "" {
		if _, err := ParseClock(r.TimeIn); err != nil {
			return fmt.Errorf("attendance record for student %d: %w", r.StudentID, err)
		}
	}
	return nil
}

// RecordInput is the body of an attendance upsert.
type RecordInput struct {
	StudentID int64  `json:"studentId"`
	CourseID  int64  `json:"courseId"`
	SessionID int64  `json:"sessionId"`
	Date      string `json:"date"`
	Status    Status `json:"status"`
	Remarks   string `json:"remarks,omitempty"`
	TimeIn    string `json:"timeIn,omitempty"`
}

// RosterEntry is the enrolled-student projection used to build a ledger.
type RosterEntry struct {
	StudentID int64  `json:"studentId"`
	Name      string `json:"name"`
	Program   string `json:"program,omitempty"`
	YearLevel int    `json:"yearLevel,omitempty"`
	Section   string `json:"section,omitempty"`
}

// Validate checks a decoded roster entry.
func (e RosterEntry) Validate() error {
	if e.StudentID <= 0 {
		return errors.New("roster entry: student id required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("roster entry %d: name required", e.StudentID)
	}
	return nil
}

func checkWindow(start, end string) error {
	s, err := ParseClock(start)
	if err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}
	if !e.After(s) {
		return errors.New("end time must be after start time")
	}
	return nil
}

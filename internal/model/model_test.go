package model

import "testing"

func TestParseSessionType(t *testing.T) {
	tests := []struct {
		in      string
		want    SessionType
		wantErr bool
	}{
		{in: "LECTURE", want: SessionLecture},
		{in: " quiz ", want: SessionQuiz},
		{in: "lab", want: SessionLaboratory},
		{in: "LABORATORY", want: SessionLaboratory},
		{in: "", wantErr: true},
		{in: "SEMINAR", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSessionType(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseSessionType(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{in: "", want: StatusUnset},
		{in: "present", want: StatusPresent},
		{in: "EXCUSED", want: StatusExcused},
		{in: "TARDY", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, %v", tt.in, got, err)
		}
	}
	if StatusUnset.Valid() {
		t.Error("unset status reported valid")
	}
	if !StatusLate.Attended() || StatusExcused.Attended() {
		t.Error("Attended() mismatch")
	}
}

func TestSessionValidate(t *testing.T) {
	base := Session{ID: 1, CourseID: 2, Date: "2024-03-01", StartTime: "08:00", EndTime: "10:00", SessionType: SessionLecture}
	tests := []struct {
		name    string
		mutate  func(s *Session)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Session) {}},
		{name: "seconds accepted", mutate: func(s *Session) { s.StartTime, s.EndTime = "08:00:00", "10:00:00" }},
		{name: "missing id", mutate: func(s *Session) { s.ID = 0 }, wantErr: true},
		{name: "missing course", mutate: func(s *Session) { s.CourseID = 0 }, wantErr: true},
		{name: "bad date", mutate: func(s *Session) { s.Date = "03/01/2024" }, wantErr: true},
		{name: "end equals start", mutate: func(s *Session) { s.EndTime = "08:00" }, wantErr: true},
		{name: "bad type", mutate: func(s *Session) { s.SessionType = "NAP" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{name: "valid", rec: Record{StudentID: 1, SessionID: 2, Status: StatusPresent, TimeIn: "08:05"}},
		{name: "no time in", rec: Record{StudentID: 1, SessionID: 2, Status: StatusAbsent}},
		{name: "unset status", rec: Record{StudentID: 1, SessionID: 2}, wantErr: true},
		{name: "bad time", rec: Record{StudentID: 1, SessionID: 2, Status: StatusLate, TimeIn: "8am"}, wantErr: true},
		{name: "missing ids", rec: Record{Status: StatusPresent}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rec.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

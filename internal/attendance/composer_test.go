package attendance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/model"
)

func validDraft() Draft {
	return Draft{CourseID: 1, Date: "2024-03-01", StartTime: "08:00", EndTime: "10:00", SessionType: "LECTURE"}
}

func TestDraftValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(d *Draft)
		wantField string
	}{
		{name: "valid", mutate: func(d *Draft) {}},
		{name: "lab alias", mutate: func(d *Draft) { d.SessionType = "lab" }},
		{name: "seconds allowed", mutate: func(d *Draft) { d.StartTime = "08:00:00"; d.EndTime = "08:00:01" }},
		{name: "missing course", mutate: func(d *Draft) { d.CourseID = 0 }, wantField: "courseId"},
		{name: "missing date", mutate: func(d *Draft) { d.Date = "" }, wantField: "date"},
		{name: "bad date", mutate: func(d *Draft) { d.Date = "03/01/2024" }, wantField: "date"},
		{name: "missing start", mutate: func(d *Draft) { d.StartTime = "" }, wantField: "startTime"},
		{name: "missing end", mutate: func(d *Draft) { d.EndTime = "" }, wantField: "endTime"},
		{name: "missing type", mutate: func(d *Draft) { d.SessionType = "" }, wantField: "sessionType"},
		{name: "unknown type", mutate: func(d *Draft) { d.SessionType = "SEMINAR" }, wantField: "sessionType"},
		{name: "end equals start", mutate: func(d *Draft) { d.EndTime = "08:00" }, wantField: "endTime"},
		{name: "end before start", mutate: func(d *Draft) { d.EndTime = "07:59" }, wantField: "endTime"},
		{name: "long remarks", mutate: func(d *Draft) { d.Remarks = strings.Repeat("x", MaxRemarks+1) }, wantField: "remarks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var verr *apierr.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if _, ok := verr.Field(tt.wantField); !ok {
				t.Errorf("Validate() fields = %+v, want %s", verr.Fields, tt.wantField)
			}
		})
	}
}

func TestComposeRejectsWithoutRequest(t *testing.T) {
	fb := newFakeBackend()
	svc := NewService(fb, 0, nil)

	bad := []Draft{
		{CourseID: 1, StartTime: "08:00", EndTime: "10:00", SessionType: "LECTURE"},
		{CourseID: 1, Date: "2024-03-01", EndTime: "10:00", SessionType: "LECTURE"},
		{CourseID: 1, Date: "2024-03-01", StartTime: "08:00", SessionType: "LECTURE"},
		{CourseID: 1, Date: "2024-03-01", StartTime: "08:00", EndTime: "10:00"},
		{CourseID: 1, Date: "2024-03-01", StartTime: "10:00", EndTime: "08:00", SessionType: "LECTURE"},
	}
	for _, d := range bad {
		before := d
		if _, err := svc.Compose(context.Background(), d); err == nil {
			t.Errorf("Compose(%+v) succeeded", d)
		}
		if d != before {
			t.Errorf("Compose mutated draft: %+v", d)
		}
	}
	if fb.creates != 0 {
		t.Errorf("CreateSession called %d times, want 0", fb.creates)
	}
	if _, ok := svc.Active(); ok {
		t.Error("a session was selected after failed compose")
	}
}

func TestComposeSelectsCreatedSession(t *testing.T) {
	fb := newFakeBackend()
	svc := NewService(fb, 0, nil)

	d := validDraft()
	d.SessionType = "lab"
	d.Remarks = "  bring goggles "
	s, err := svc.Compose(context.Background(), d)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if s.Finalized {
		t.Error("new session is finalized")
	}
	if s.SessionType != model.SessionLaboratory || s.Remarks != "bring goggles" {
		t.Errorf("Compose() = %+v", s)
	}
	active, ok := svc.Active()
	if !ok || active.ID != s.ID {
		t.Errorf("Active() = %+v, %v; want %d", active, ok, s.ID)
	}
}

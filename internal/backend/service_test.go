package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classroll/attendance/internal/model"
	"github.com/classroll/attendance/internal/queue"
)

func setup(t *testing.T) (*Service, *MemoryRepository, *queue.InMemory, Demo) {
	t.Helper()
	repo := NewMemoryRepository()
	demo, err := SeedDemo(context.Background(), repo)
	if err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}
	q := queue.NewInMemory(8)
	svc := NewService(repo, q, TokenConfig{Issuer: "classroll", SigningKey: "secret", TTL: time.Hour}, nil)
	return svc, repo, q, demo
}

func newSession(courseID int64) model.NewSession {
	return model.NewSession{CourseID: courseID, Date: "2024-03-01", StartTime: "08:00", EndTime: "10:00", SessionType: model.SessionLecture}
}

func TestLogin(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "teacher", DemoPassword); err != nil {
		t.Errorf("Login() error = %v", err)
	}
	if _, err := svc.Login(ctx, "teacher", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Login(wrong password) error = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", DemoPassword); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Login(unknown) error = %v", err)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	svc, _, _, demo := setup(t)
	ctx := context.Background()
	other := int64(9999)

	tests := []struct {
		name    string
		mutate  func(in *model.NewSession)
		wantErr bool
	}{
		{name: "valid", mutate: func(in *model.NewSession) {}},
		{name: "with schedule", mutate: func(in *model.NewSession) { in.ScheduleID = &demo.Schedule.ID }},
		{name: "foreign schedule", mutate: func(in *model.NewSession) { in.ScheduleID = &other }, wantErr: true},
		{name: "end before start", mutate: func(in *model.NewSession) { in.EndTime = "07:00" }, wantErr: true},
		{name: "bad type", mutate: func(in *model.NewSession) { in.SessionType = "NAP" }, wantErr: true},
		{name: "bad date", mutate: func(in *model.NewSession) { in.Date = "tomorrow" }, wantErr: true},
		{name: "unknown course", mutate: func(in *model.NewSession) { in.CourseID = other }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newSession(demo.Course.ID)
			tt.mutate(&in)
			s, err := svc.CreateSession(ctx, in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateSession() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Finalized {
				t.Error("new session finalized")
			}
		})
	}
}

func TestFinalizeIsOneWay(t *testing.T) {
	svc, repo, q, demo := setup(t)
	ctx := context.Background()

	s, err := svc.CreateSession(ctx, newSession(demo.Course.ID))
	if err != nil {
		t.Fatal(err)
	}
	in := model.RecordInput{StudentID: demo.Students[0].StudentID, SessionID: s.ID, Status: model.StatusPresent, TimeIn: "08:03"}
	if _, err := svc.UpsertRecord(ctx, in); err != nil {
		t.Fatalf("UpsertRecord() error = %v", err)
	}

	s.Finalized = true
	fin, err := svc.UpdateSession(ctx, s)
	if err != nil || !fin.Finalized {
		t.Fatalf("UpdateSession(finalize) = %+v, %v", fin, err)
	}

	ctxT, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	events, _ := q.Consume(ctxT)
	select {
	case evt := <-events:
		if evt.Type != queue.TypeSessionFinalized || evt.SessionID != s.ID {
			t.Errorf("event = %+v", evt)
		}
	case <-ctxT.Done():
		t.Fatal("no finalized event published")
	}

	if _, err := svc.UpsertRecord(ctx, in); !errors.Is(err, ErrFinalized) {
		t.Errorf("UpsertRecord() after finalize error = %v", err)
	}
	s.Finalized = false
	if _, err := svc.UpdateSession(ctx, s); !errors.Is(err, ErrReopen) {
		t.Errorf("UpdateSession(reopen) error = %v", err)
	}
	s.Finalized = true
	if again, err := svc.UpdateSession(ctx, s); err != nil || !again.Finalized {
		t.Errorf("repeated finalize = %+v, %v", again, err)
	}

	stored, _ := repo.GetSession(ctx, s.ID)
	if !stored.Finalized {
		t.Error("stored session reopened")
	}
}

func TestUpsertRecordChecks(t *testing.T) {
	svc, repo, _, demo := setup(t)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, newSession(demo.Course.ID))

	tests := []struct {
		name    string
		in      model.RecordInput
		wantErr bool
	}{
		{name: "present", in: model.RecordInput{StudentID: demo.Students[0].StudentID, SessionID: s.ID, Status: model.StatusPresent}},
		{name: "overwrite", in: model.RecordInput{StudentID: demo.Students[0].StudentID, SessionID: s.ID, Status: model.StatusLate, TimeIn: "08:40"}},
		{name: "unset status", in: model.RecordInput{StudentID: demo.Students[1].StudentID, SessionID: s.ID}, wantErr: true},
		{name: "bad time", in: model.RecordInput{StudentID: demo.Students[1].StudentID, SessionID: s.ID, Status: model.StatusLate, TimeIn: "late"}, wantErr: true},
		{name: "not enrolled", in: model.RecordInput{StudentID: 424242, SessionID: s.ID, Status: model.StatusAbsent}, wantErr: true},
		{name: "unknown session", in: model.RecordInput{StudentID: demo.Students[1].StudentID, SessionID: 424242, Status: model.StatusAbsent}, wantErr: true},
		{name: "wrong course", in: model.RecordInput{StudentID: demo.Students[1].StudentID, SessionID: s.ID, CourseID: demo.EmptyCourse.ID, Status: model.StatusAbsent}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertRecord(ctx, tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("UpsertRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	records, _ := repo.ListRecords(ctx, s.ID)
	if len(records) != 1 || records[0].Status != model.StatusLate || records[0].Date != "2024-03-01" {
		t.Errorf("records = %+v", records)
	}
}

func TestSummarize(t *testing.T) {
	svc, _, _, demo := setup(t)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, newSession(demo.Course.ID))
	_, _ = svc.UpsertRecord(ctx, model.RecordInput{StudentID: demo.Students[0].StudentID, SessionID: s.ID, Status: model.StatusPresent})
	_, _ = svc.UpsertRecord(ctx, model.RecordInput{StudentID: demo.Students[1].StudentID, SessionID: s.ID, Status: model.StatusAbsent})

	if _, err := svc.Summarize(ctx, s.ID); err == nil {
		t.Error("Summarize() of open session succeeded")
	}
	s.Finalized = true
	_, _ = svc.UpdateSession(ctx, s)

	sum, err := svc.Summarize(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Enrolled != 3 || sum.Recorded != 2 || sum.Counts[model.StatusPresent] != 1 {
		t.Errorf("Summarize() = %+v", sum)
	}
}

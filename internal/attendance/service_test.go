package attendance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/model"
)

func TestDirectoryFiltersAndSorts(t *testing.T) {
	fb := newFakeBackend()
	sched := int64(5)
	fb.sessions = []model.Session{
		{ID: 1, CourseID: 1, Date: "2024-02-01"},
		{ID: 2, CourseID: 1, Date: "2024-03-01", ScheduleID: &sched},
		{ID: 3, CourseID: 2, Date: "2024-04-01"},
		{ID: 4, CourseID: 1, Date: "2024-03-01"},
	}
	svc := NewService(fb, 0, nil)

	got, err := svc.Directory(context.Background(), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{4, 2, 1}; !equalIDs(ids(got), want) {
		t.Errorf("Directory() = %v, want %v", ids(got), want)
	}

	got, _ = svc.Directory(context.Background(), 1, &sched)
	if want := []int64{2}; !equalIDs(ids(got), want) {
		t.Errorf("Directory(schedule) = %v, want %v", ids(got), want)
	}

	fb.listErr = &apierr.APIError{StatusCode: 500}
	if _, err := svc.Directory(context.Background(), 1, nil); err == nil {
		t.Error("Directory() swallowed backend error")
	}
}

func TestOpenEmptyRoster(t *testing.T) {
	fb := newFakeBackend()
	svc := NewService(fb, 0, nil)

	if _, _, err := svc.Open(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Open() without session error = %v", err)
	}

	s, err := svc.Compose(context.Background(), validDraft())
	if err != nil {
		t.Fatal(err)
	}
	l, roster, err := svc.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if roster.State != RosterEmpty || roster.CourseID != s.CourseID || roster.EnrollHint == "" {
		t.Errorf("Open() roster = %+v", roster)
	}
	if l == nil || len(l.Rows()) != 0 || l.State() != StateOpen {
		t.Fatalf("Open() ledger = %+v", l)
	}
	if pending := l.Pending(); len(pending) != 0 {
		t.Errorf("Pending() = %+v", pending)
	}
}

func TestFinalizeEmptyRoster(t *testing.T) {
	fb := newFakeBackend()
	svc := NewService(fb, 0, nil)
	s, err := svc.Compose(context.Background(), validDraft())
	if err != nil {
		t.Fatal(err)
	}
	l, _, err := svc.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	dir, err := svc.Finalize(context.Background(), l, true)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if fb.finalizes != 1 {
		t.Errorf("backend finalized %d times, want 1", fb.finalizes)
	}
	if len(dir) != 1 || dir[0].ID != s.ID || !dir[0].Finalized {
		t.Errorf("refreshed directory = %+v", dir)
	}
	if l.State() != StateFinalized {
		t.Errorf("State() = %v", l.State())
	}
}

func TestFinalizeRefreshFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.roster[1] = testRoster()
	fb.listErrAfterFinalize = &apierr.APIError{StatusCode: 503, Message: "try later"}
	svc := NewService(fb, 0, nil)
	_, _ = svc.Compose(context.Background(), validDraft())
	l, _, _ := svc.Open(context.Background())

	_, err := svc.Finalize(context.Background(), l, true)
	var rerr *RefreshError
	if !errors.As(err, &rerr) {
		t.Fatalf("Finalize() error = %v, want *RefreshError", err)
	}
	if !rerr.Session.Finalized || l.State() != StateFinalized {
		t.Errorf("session not finalized after refresh failure: %+v", rerr.Session)
	}
	var aerr *apierr.APIError
	if !errors.As(err, &aerr) || aerr.StatusCode != 503 {
		t.Errorf("refresh cause lost: %v", err)
	}
	if fb.finalizes != 1 {
		t.Errorf("backend finalized %d times", fb.finalizes)
	}
}

func TestGuardErrorsDescribe(t *testing.T) {
	for _, err := range []error{ErrSessionFinalized, ErrConfirmationRequired, ErrNoActiveSession, ErrUnknownStudent} {
		msg := apierr.Describe(fmt.Errorf("edit: %w", err))
		if msg.Kind != apierr.KindWorkflow || msg.Text == apierr.GenericMessage {
			t.Errorf("Describe(%v) = %+v", err, msg)
		}
	}

	l := NewLedger(testSession(), testRoster(), nil)
	err := l.SetStatus(99, model.StatusPresent)
	if msg := apierr.Describe(err); msg.Kind != apierr.KindWorkflow || msg.Text != "student is not on the roster: 99" {
		t.Errorf("Describe(unknown student) = %+v", msg)
	}
}

func TestSaveIssuesOneUpsertPerStatus(t *testing.T) {
	for _, subset := range [][]int64{{}, {1}, {1, 3}, {1, 2, 3}} {
		fb := newFakeBackend()
		fb.roster[1] = testRoster()
		svc := NewService(fb, 2, nil)
		if _, err := svc.Compose(context.Background(), validDraft()); err != nil {
			t.Fatal(err)
		}
		l, _, err := svc.Open(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range subset {
			_ = l.SetStatus(id, model.StatusPresent)
		}

		res, err := svc.Save(context.Background(), l)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if len(fb.upserts) != len(subset) || res.Attempted != len(subset) || res.Succeeded != len(subset) {
			t.Errorf("subset %v: %d upserts, result %+v", subset, len(fb.upserts), res)
		}
		seen := map[int64]bool{}
		for _, u := range fb.upserts {
			seen[u.StudentID] = true
		}
		for _, id := range subset {
			if !seen[id] {
				t.Errorf("subset %v: no upsert for student %d", subset, id)
			}
		}
	}
}

func TestSavePartialFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.roster[1] = testRoster()
	fb.failFor[2] = true
	svc := NewService(fb, 0, nil)
	_, _ = svc.Compose(context.Background(), validDraft())
	l, _, _ := svc.Open(context.Background())
	for _, id := range []int64{1, 2, 3} {
		_ = l.SetStatus(id, model.StatusAbsent)
	}

	res, err := svc.Save(context.Background(), l)
	var perr *apierr.PartialSaveError
	if !errors.As(err, &perr) {
		t.Fatalf("Save() error = %v, want PartialSaveError", err)
	}
	if res.Attempted != 3 || res.Succeeded != 2 || len(res.Failed) != 1 || res.Failed[2] == nil {
		t.Errorf("Save() = %+v", res)
	}
	if msg := apierr.Describe(err); msg.Kind != apierr.KindPartialSave {
		t.Errorf("Describe() = %+v", msg)
	}

	// Reconciled: saved students are marked saved, the failed one keeps its edit.
	e1, _ := l.Entry(1)
	e2, _ := l.Entry(2)
	if !e1.Saved || e2.Saved || e2.Status != model.StatusAbsent {
		t.Errorf("after reconcile: %+v / %+v", e1, e2)
	}
}

func TestFinalize(t *testing.T) {
	fb := newFakeBackend()
	fb.roster[1] = testRoster()
	svc := NewService(fb, 0, nil)
	_, _ = svc.Compose(context.Background(), validDraft())
	l, _, _ := svc.Open(context.Background())

	if _, err := svc.Finalize(context.Background(), nil, true); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Finalize(nil) error = %v", err)
	}
	if _, err := svc.Finalize(context.Background(), l, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("Finalize(unconfirmed) error = %v", err)
	}
	if fb.finalizes != 0 {
		t.Fatalf("unconfirmed finalize reached backend")
	}

	dir, err := svc.Finalize(context.Background(), l, true)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(dir) != 1 || !dir[0].Finalized {
		t.Errorf("refreshed directory = %+v", dir)
	}
	if active, _ := svc.Active(); !active.Finalized {
		t.Error("active session not finalized")
	}

	if _, err := svc.Finalize(context.Background(), l, true); !errors.Is(err, ErrSessionFinalized) {
		t.Errorf("second Finalize() error = %v", err)
	}
	if _, err := svc.Save(context.Background(), l); !errors.Is(err, ErrSessionFinalized) {
		t.Errorf("Save() after finalize error = %v", err)
	}
	if fb.finalizes != 1 {
		t.Errorf("backend finalized %d times", fb.finalizes)
	}
}

// The end-to-end teacher scenario: three students, two statuses, finalize.
func TestScenarioMarkAndFinalize(t *testing.T) {
	fb := newFakeBackend()
	fb.roster[1] = testRoster()
	svc := NewService(fb, 0, nil)

	s, err := svc.Compose(context.Background(), Draft{
		CourseID: 1, Date: "2024-03-01", StartTime: "08:00", EndTime: "10:00", SessionType: "LECTURE",
	})
	if err != nil {
		t.Fatal(err)
	}
	l, roster, err := svc.Open(context.Background())
	if err != nil || roster.State != RosterReady {
		t.Fatalf("Open() = %v, %v", roster.State, err)
	}
	_ = l.SetStatus(1, model.StatusPresent)
	_ = l.SetStatus(2, model.StatusAbsent)

	if _, err := svc.Save(context.Background(), l); err != nil {
		t.Fatal(err)
	}
	if len(fb.upserts) != 2 {
		t.Fatalf("%d upserts, want 2", len(fb.upserts))
	}
	for _, u := range fb.upserts {
		if u.StudentID == 3 || u.SessionID != s.ID {
			t.Errorf("unexpected upsert %+v", u)
		}
	}

	if _, err := svc.Finalize(context.Background(), l, true); err != nil {
		t.Fatal(err)
	}
	rows := l.Rows()
	if len(rows) != 3 {
		t.Fatalf("%d rows", len(rows))
	}
	for _, r := range rows {
		if !r.Disabled {
			t.Errorf("status selector for student %d still enabled", r.Student.StudentID)
		}
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

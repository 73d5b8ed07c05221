package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/classroll/attendance/internal/queue"
	"github.com/classroll/attendance/internal/report"
)

type fakeSummarizer struct {
	mu   sync.Mutex
	seen []int64
	fail map[int64]bool
	done chan struct{}
}

func (f *fakeSummarizer) Summarize(_ context.Context, id int64) (report.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, id)
	f.done <- struct{}{}
	if f.fail[id] {
		return report.Summary{}, errors.New("boom")
	}
	return report.Summary{SessionID: id}, nil
}

func TestRunSummarizesFinalizedSessions(t *testing.T) {
	q := queue.NewInMemory(8)
	fs := &fakeSummarizer{fail: map[int64]bool{2: true}, done: make(chan struct{}, 8)}
	w := New(q, fs, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	bg := context.Background()
	_ = q.Publish(bg, queue.NewEvent("session.created", 9))
	_ = q.Publish(bg, queue.NewEvent(queue.TypeSessionFinalized, 2))
	_ = q.Publish(bg, queue.NewEvent(queue.TypeSessionFinalized, 3))

	for i := 0; i < 2; i++ {
		select {
		case <-fs.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.seen) != 2 || fs.seen[0] != 2 || fs.seen[1] != 3 {
		t.Errorf("summarized %v, want [2 3]", fs.seen)
	}
}

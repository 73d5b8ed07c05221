// Package worker turns backend events into stored session reports.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/classroll/attendance/internal/queue"
	"github.com/classroll/attendance/internal/report"
)

// Summarizer computes and stores the report of a finalized session.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID int64) (report.Summary, error)
}

// Worker consumes queue events.
type Worker struct {
	events  queue.Queue
	reports Summarizer
	log     *zap.Logger
	// Timeout bounds the handling of one event.
	Timeout time.Duration
}

// New creates a worker.
func New(events queue.Queue, reports Summarizer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{events: events, reports: reports, log: logger, Timeout: 30 * time.Second}
}

// Run processes events until ctx is cancelled. A failed event is logged and
// skipped; the summary endpoint recomputes on demand.
func (w *Worker) Run(ctx context.Context) error {
	events, err := w.events.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info("worker started")
	for evt := range events {
		w.handle(ctx, evt)
	}
	w.log.Info("worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, evt queue.Event) {
	if evt.Type != queue.TypeSessionFinalized {
		w.log.Debug("ignoring event", zap.String("type", evt.Type), zap.String("event_id", evt.ID))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	sum, err := w.reports.Summarize(ctx, evt.SessionID)
	if err != nil {
		w.log.Error("summarize failed", zap.Int64("session_id", evt.SessionID), zap.String("event_id", evt.ID), zap.Error(err))
		return
	}
	w.log.Info("session summarized", zap.Int64("session_id", sum.SessionID),
		zap.Int("recorded", sum.Recorded), zap.Int("enrolled", sum.Enrolled),
		zap.Float64("attendance_rate", sum.AttendanceRate))
}

// Package worker implements the seat-session execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/metrics"
	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// Config controls Worker behavior.
type Config struct {
	// Topic is the Pub/Sub topic for terminal seat events; empty disables
	// publishing.
	Topic string
}

// Seater runs one seating session against the client window. *pilot.Navigator
// satisfies this.
type Seater interface {
	Run(ctx context.Context, filter pilot.TableFilter, timeout time.Duration) pilot.SeatResult
}

// Worker consumes seat requests and executes seating sessions.
type Worker struct {
	queue     pilot.SeatQueue
	sessions  pilot.SessionStore
	seater    Seater
	publisher pilot.Publisher
	clock     pilot.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue pilot.SeatQueue,
	sessions pilot.SessionStore,
	seater Seater,
	publisher pilot.Publisher,
	clock pilot.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		sessions:  sessions,
		seater:    seater,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming seat requests until the context finishes or the
// queue shuts down.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, pilot.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued seat request", zap.String("job_id", req.JobID))
		w.processSeat(ctx, req)
	}
}

func (w *Worker) processSeat(ctx context.Context, req pilot.SeatRequest) {
	if w.seater == nil {
		w.logger.Error("no seater configured", zap.String("job_id", req.JobID))
		w.updateJob(ctx, req.JobID, pilot.JobStatusFailed, "no seater configured", nil)
		return
	}
	if job, err := w.sessions.GetSeatJob(ctx, req.JobID); err == nil && job.Status == pilot.JobStatusCanceled {
		w.logger.Info("skipping canceled seat job", zap.String("job_id", req.JobID))
		return
	}
	if err := w.sessions.UpdateSeatJob(ctx, req.JobID, pilot.JobStatusRunning, "", nil); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", req.JobID), zap.Error(err))
		return
	}

	metrics.IncActiveSessions()
	result := w.seater.Run(ctx, req.Filter, req.Timeout)
	metrics.DecActiveSessions()
	metrics.ObserveSession(string(result.State), result.Elapsed)

	status, errText := w.deriveFinalStatus(ctx, result)
	w.updateJob(ctx, req.JobID, status, errText, &result)

	if err := w.publishResult(ctx, req.JobID, result); err != nil {
		// The session already ran to completion; a lost event is not a
		// failed seat.
		w.logger.Warn("seat event publish failed", zap.String("job_id", req.JobID), zap.Error(err))
	}

	w.logger.Info("seat session finished",
		zap.String("job_id", req.JobID),
		zap.String("state", string(result.State)),
		zap.Int("attempts", result.Attempts),
		zap.Duration("elapsed", result.Elapsed),
	)
}

func (w *Worker) updateJob(ctx context.Context, jobID string, status pilot.JobStatus, errText string, result *pilot.SeatResult) {
	if err := w.sessions.UpdateSeatJob(ctx, jobID, status, errText, result); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) publishResult(ctx context.Context, jobID string, result pilot.SeatResult) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"job_id":     jobID,
		"state":      string(result.State),
		"message":    result.Message,
		"attempts":   result.Attempts,
		"elapsed_ms": result.Elapsed.Milliseconds(),
		"timestamp":  w.now().Format(time.RFC3339),
	}
	if result.Table != nil {
		payload["table_id"] = result.Table.ID
		payload["table_name"] = result.Table.Name
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish seat event: %w", err)
	}
	return nil
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock.Now()
	}
	return time.Now().UTC()
}

// deriveFinalStatus maps the session outcome to a job status. Only a seated
// session succeeds; everything else carries its message as the error text.
func (w *Worker) deriveFinalStatus(ctx context.Context, result pilot.SeatResult) (pilot.JobStatus, string) {
	switch {
	case ctx.Err() != nil && result.State != pilot.SessionSeated:
		return pilot.JobStatusCanceled, result.Message
	case result.State == pilot.SessionSeated:
		return pilot.JobStatusSucceeded, ""
	default:
		return pilot.JobStatusFailed, result.Message
	}
}

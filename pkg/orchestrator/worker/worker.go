// Package worker composes the orchestrator: it pulls jobs, takes the
// per-meeting lock, drives the pipeline, and hands failures back to the
// queue's delivery retry.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/observability/metrics"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/lock"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/processor"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/queue"
)

type Worker struct {
	queue       *queue.Queue
	locks       *lock.Manager
	pipeline    *processor.Pipeline
	store       meeting.Store
	sm          *meeting.StateMachine
	retrier     processor.Retrier
	concurrency int
	pollDelay   time.Duration
}

func New(
	q *queue.Queue,
	locks *lock.Manager,
	pipeline *processor.Pipeline,
	store meeting.Store,
	sm *meeting.StateMachine,
	retrier processor.Retrier,
	concurrency int,
	pollDelay time.Duration,
) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	if pollDelay <= 0 {
		pollDelay = time.Second
	}
	return &Worker{
		queue:       q,
		locks:       locks,
		pipeline:    pipeline,
		store:       store,
		sm:          sm,
		retrier:     retrier,
		concurrency: concurrency,
		pollDelay:   pollDelay,
	}
}

// Run blocks until ctx is cancelled, running the fixed worker pool.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	log := logger.Log.WithField("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			log.WithError(err).Error("dequeue failed")
			w.sleep(ctx, w.pollDelay)
			continue
		}
		if job == nil {
			w.sleep(ctx, w.pollDelay)
			continue
		}

		if err := w.process(ctx, job); err != nil {
			w.handleJobFailure(ctx, job, err)
			continue
		}
		if err := w.queue.Complete(ctx, job); err != nil {
			log.WithError(err).WithField("job_id", job.ID).Error("failed to complete job")
		}
		metrics.IncJobsProcessed()
	}
}

// process runs one job attempt under the meeting lock. Errors it returns are
// infrastructure or race conditions (lock contention, meeting vanished) and
// go back to the queue's delivery retry; pipeline stage failures never
// surface here.
func (w *Worker) process(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nil
			w.catchAll(ctx, job.MeetingID, fmt.Errorf("panic processing meeting %s: %v", job.MeetingID, r))
		}
	}()

	lease, err := w.locks.AcquireWait(ctx, job.MeetingID)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if releaseErr := lease.Release(releaseCtx); releaseErr != nil {
			logger.Log.WithError(releaseErr).WithField("meeting_id", job.MeetingID).
				Warn("failed to release meeting lock")
		}
	}()

	stop := lease.Keep(ctx)
	defer stop()

	return w.pipeline.Run(ctx, job.MeetingID)
}

// catchAll is the worker's last-resort handler for failures that escaped the
// processors' own boundaries.
func (w *Worker) catchAll(ctx context.Context, meetingID string, cause error) {
	logger.Log.WithError(cause).WithField("meeting_id", meetingID).
		Error("uncaught failure while processing meeting")

	if err := w.store.RecordError(ctx, &meeting.ProcessingErrorModel{
		MeetingID:    meetingID,
		Stage:        meeting.StageSystem,
		ErrorCode:    "worker_panic",
		ErrorMessage: cause.Error(),
	}); err != nil {
		logger.Log.WithError(err).Error("failed to record system error")
	}

	if err := w.sm.Transition(ctx, meetingID, meeting.StatusFailedSystem); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to move meeting to failed_system")
	}

	if _, err := w.retrier.Schedule(ctx, meetingID); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to schedule auto-retry after uncaught failure")
	}
	metrics.IncJobsFailed()
}

// handleJobFailure routes a failed delivery back through the queue; when the
// queue gives up, the drop is recorded so the retry sweep can still find the
// meeting later.
func (w *Worker) handleJobFailure(ctx context.Context, job *queue.Job, cause error) {
	requeued, err := w.queue.Fail(ctx, job, cause)
	if err != nil {
		logger.Log.WithError(err).WithField("job_id", job.ID).
			Error("failed to requeue job")
		return
	}
	if requeued {
		return
	}

	metrics.IncJobsFailed()
	if err := w.store.RecordError(ctx, &meeting.ProcessingErrorModel{
		MeetingID:    job.MeetingID,
		Stage:        meeting.StageSystem,
		ErrorCode:    "delivery_exhausted",
		ErrorMessage: cause.Error(),
	}); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", job.MeetingID).
			Error("failed to record delivery exhaustion")
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Package retry implements the bounded auto-retry cycle that re-enqueues
// failed meetings with exponential backoff, distinct from the queue's own
// delivery retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/observability/metrics"
)

const (
	// Ceiling is the maximum number of automatic retry cycles per meeting.
	Ceiling = 3

	baseDelay = 5 * time.Minute
	maxDelay  = 60 * time.Minute
)

// Backoff returns the delay before the next automatic retry given how many
// retries have already been scheduled: 5m, 10m, 20m, then capped at 60m.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= 3 {
		return maxDelay
	}
	d := baseDelay << retryCount
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Enqueuer is the queue surface the scheduler needs. Requeue rather than
// Enqueue: a retry is booked from inside the failing job, while that job's
// identity still occupies the queue's dedup slot.
type Enqueuer interface {
	Requeue(ctx context.Context, meetingID string, delay time.Duration) error
}

type Scheduler struct {
	store meeting.Store
	queue Enqueuer
	now   func() time.Time
}

func NewScheduler(store meeting.Store, queue Enqueuer) *Scheduler {
	return &Scheduler{store: store, queue: queue, now: time.Now}
}

// Schedule books the next automatic retry for a failed meeting. It returns
// false without error when no retry will happen: the ceiling was reached or
// the source media is no longer usable.
func (s *Scheduler) Schedule(ctx context.Context, meetingID string) (bool, error) {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return false, err
	}

	if m.AutoRetryCount >= Ceiling {
		metrics.IncAutoRetriesExhausted()
		logger.Log.WithFields(map[string]interface{}{
			"meeting_id":  meetingID,
			"retry_count": m.AutoRetryCount,
		}).Warn("auto-retry ceiling reached, manual intervention required")
		return false, nil
	}

	blob, err := s.store.GetUploadBlob(ctx, meetingID)
	if err != nil {
		if errors.Is(err, meeting.ErrBlobNotFound) {
			return false, nil
		}
		return false, err
	}
	now := s.now().UTC()
	if !blob.Usable(now) {
		logger.Log.WithField("meeting_id", meetingID).
			Warn("source media gone, auto-retry abandoned")
		return false, nil
	}

	delay := Backoff(m.AutoRetryCount)
	next := now.Add(delay)
	if err := s.store.IncrementAutoRetry(ctx, meetingID, now, next); err != nil {
		return false, fmt.Errorf("recording auto-retry for meeting %s: %w", meetingID, err)
	}

	if err := s.queue.Requeue(ctx, meetingID, delay); err != nil {
		// The counters are already stamped; the periodic sweep will pick the
		// meeting up once nextAutoRetryAt elapses.
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to enqueue delayed retry job")
		return true, nil
	}

	metrics.IncAutoRetriesScheduled()
	logger.Log.WithFields(map[string]interface{}{
		"meeting_id":  meetingID,
		"retry_count": m.AutoRetryCount + 1,
		"delay":       delay.String(),
	}).Info("auto-retry scheduled")
	return true, nil
}

// Sweep re-enqueues every failed meeting whose scheduled retry time has
// elapsed and whose count is under the ceiling. It is the recovery path for
// retries whose delayed job was lost.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.ListRetryDue(ctx, s.now().UTC(), Ceiling)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, m := range due {
		if err := s.queue.Requeue(ctx, m.ID, 0); err != nil {
			logger.Log.WithError(err).WithField("meeting_id", m.ID).
				Error("sweep failed to re-enqueue meeting")
			continue
		}
		requeued++
	}
	if requeued > 0 {
		logger.Log.WithField("count", requeued).Info("auto-retry sweep re-enqueued meetings")
	}
	return requeued, nil
}

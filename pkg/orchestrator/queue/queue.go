// Package queue is the durable at-least-once job queue carrying "process this
// meeting" messages. Job identity is derived from the meeting id and lives
// from enqueue until the job completes or is dropped, so a second enqueue
// collapses into the existing job whether it is still pending or already
// claimed by a worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
)

const (
	dueKey        = "jobs:meetings:due"
	dataKeyPrefix = "jobs:meetings:data:"

	// Delivery-layer retry, nested inside the higher-level auto-retry cycle.
	maxDeliveryAttempts = 3
	deliveryBackoffBase = 2 * time.Second

	// A claimed job keeps its member in the due set, rescheduled this far
	// out. If the worker dies without completing, the job surfaces again
	// once the lease elapses.
	activeLease = 30 * time.Minute
)

// ErrMeetingMissing is returned when an enqueue is attempted for a meeting
// that does not exist. This is a contract violation and must fail loudly.
var ErrMeetingMissing = errors.New("cannot enqueue job for missing meeting")

// Backend is the sorted-set/hash surface the queue runs on. ZClaim and
// ZRemIfScore compare the member's current score before mutating, so a claim
// or removal cannot clobber a job that was rescheduled in the meantime.
type Backend interface {
	ZAddNX(ctx context.Context, key, member string, score float64) (bool, error)
	ZAdd(ctx context.Context, key, member string, score float64) error
	// ZFirstDue returns the lowest-scored member with score <= max.
	ZFirstDue(ctx context.Context, key string, max float64) (member string, score float64, ok bool, err error)
	// ZClaim moves member from oldScore to newScore only if its score is
	// still oldScore.
	ZClaim(ctx context.Context, key, member string, oldScore, newScore float64) (bool, error)
	// ZRemIfScore removes member only if its score is still score.
	ZRemIfScore(ctx context.Context, key, member string, score float64) (bool, error)
	HSet(ctx context.Context, key string, fields map[string]interface{}) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
}

// MeetingStore is the slice of the persistence layer the queue needs to
// validate enqueues.
type MeetingStore interface {
	GetMeeting(ctx context.Context, id string) (*meeting.MeetingModel, error)
}

// Job is one dequeued delivery.
type Job struct {
	ID        string
	MeetingID string
	Attempt   int

	// lease is the claim score this delivery holds in the due set; Complete
	// and Fail use it to detect a reschedule that happened mid-flight.
	lease float64
}

type Queue struct {
	backend  Backend
	meetings MeetingStore
	now      func() time.Time
}

func New(backend Backend, meetings MeetingStore) *Queue {
	return &Queue{backend: backend, meetings: meetings, now: time.Now}
}

func jobID(meetingID string) string {
	return "meeting:" + meetingID
}

func dataKey(jobID string) string {
	return dataKeyPrefix + jobID
}

// Enqueue schedules a processing job for the meeting, visible after delay.
// Enqueueing a meeting whose job is pending or actively being processed is an
// absorbed no-op.
func (q *Queue) Enqueue(ctx context.Context, meetingID string, delay time.Duration) error {
	if err := q.verifyMeeting(ctx, meetingID); err != nil {
		return err
	}

	id := jobID(meetingID)
	readyAt := q.now().Add(delay)
	added, err := q.backend.ZAddNX(ctx, dueKey, id, float64(readyAt.UnixMilli()))
	if err != nil {
		return fmt.Errorf("enqueueing job %s: %w", id, err)
	}
	if !added {
		logger.Log.WithFields(map[string]interface{}{
			"job_id":     id,
			"meeting_id": meetingID,
		}).Debug("job already pending or active, enqueue absorbed")
		return nil
	}
	return q.writePayload(ctx, id, meetingID)
}

// Requeue schedules the meeting's job even while a claimed delivery for it is
// still active, overwriting the pending due time. The auto-retry scheduler
// uses it from inside the failure path of a running job, where Enqueue's
// absorption would swallow the retry.
func (q *Queue) Requeue(ctx context.Context, meetingID string, delay time.Duration) error {
	if err := q.verifyMeeting(ctx, meetingID); err != nil {
		return err
	}

	id := jobID(meetingID)
	readyAt := q.now().Add(delay)
	if err := q.backend.ZAdd(ctx, dueKey, id, float64(readyAt.UnixMilli())); err != nil {
		return fmt.Errorf("requeueing job %s: %w", id, err)
	}
	return q.writePayload(ctx, id, meetingID)
}

// ForceEnqueue bypasses deduplication with a unique job id suffix. It exists
// for manual operational recovery, not the steady-state path.
func (q *Queue) ForceEnqueue(ctx context.Context, meetingID string) error {
	if err := q.verifyMeeting(ctx, meetingID); err != nil {
		return err
	}

	id := fmt.Sprintf("%s:retry:%s", jobID(meetingID), uuid.New().String())
	if err := q.backend.ZAdd(ctx, dueKey, id, float64(q.now().UnixMilli())); err != nil {
		return fmt.Errorf("enqueueing job %s: %w", id, err)
	}
	return q.writePayload(ctx, id, meetingID)
}

func (q *Queue) verifyMeeting(ctx context.Context, meetingID string) error {
	if _, err := q.meetings.GetMeeting(ctx, meetingID); err != nil {
		if errors.Is(err, meeting.ErrMeetingNotFound) {
			return fmt.Errorf("%w: %s", ErrMeetingMissing, meetingID)
		}
		return fmt.Errorf("verifying meeting %s before enqueue: %w", meetingID, err)
	}
	return nil
}

func (q *Queue) writePayload(ctx context.Context, id, meetingID string) error {
	err := q.backend.HSet(ctx, dataKey(id), map[string]interface{}{
		"meeting_id":  meetingID,
		"attempts":    0,
		"enqueued_at": q.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("writing job payload %s: %w", id, err)
	}
	return nil
}

// Dequeue claims the next due job, or returns nil when nothing is ready.
// Claiming keeps the member in the due set under a far-future lease score, so
// the job's identity stays visible to Enqueue's dedup until Complete or the
// final Fail. Claiming races between workers are settled by ZClaim: the one
// compare-and-update that succeeds owns the job.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	now := float64(q.now().UnixMilli())
	for {
		member, score, ok, err := q.backend.ZFirstDue(ctx, dueKey, now)
		if err != nil {
			return nil, fmt.Errorf("polling job queue: %w", err)
		}
		if !ok {
			return nil, nil
		}

		lease := float64(q.now().Add(activeLease).UnixMilli())
		claimed, err := q.backend.ZClaim(ctx, dueKey, member, score, lease)
		if err != nil {
			return nil, fmt.Errorf("claiming job %s: %w", member, err)
		}
		if !claimed {
			// Lost the race, try the next due member.
			continue
		}

		data, err := q.backend.HGetAll(ctx, dataKey(member))
		if err != nil {
			return nil, fmt.Errorf("loading job payload %s: %w", member, err)
		}
		attempts, _ := strconv.Atoi(data["attempts"])
		return &Job{
			ID:        member,
			MeetingID: data["meeting_id"],
			Attempt:   attempts + 1,
			lease:     lease,
		}, nil
	}
}

// Complete releases a finished job. If the job was rescheduled mid-flight
// (the auto-retry path requeued it), its member and payload are left in place
// for the coming delivery.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	removed, err := q.backend.ZRemIfScore(ctx, dueKey, job.ID, job.lease)
	if err != nil {
		return err
	}
	if !removed {
		logger.Log.WithFields(map[string]interface{}{
			"job_id":     job.ID,
			"meeting_id": job.MeetingID,
		}).Debug("job rescheduled while active, keeping it queued")
		return nil
	}
	return q.backend.Del(ctx, dataKey(job.ID))
}

// Fail records a failed delivery. Under the attempt ceiling the job is
// re-enqueued with exponential backoff and requeued=true; past it the job is
// dropped and the caller decides what to persist about the failure.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (requeued bool, err error) {
	if job.Attempt >= maxDeliveryAttempts {
		logger.Log.WithError(cause).WithFields(map[string]interface{}{
			"job_id":     job.ID,
			"meeting_id": job.MeetingID,
			"attempts":   job.Attempt,
		}).Error("job failed after final delivery attempt")
		removed, err := q.backend.ZRemIfScore(ctx, dueKey, job.ID, job.lease)
		if err != nil {
			return false, err
		}
		if !removed {
			// Rescheduled mid-flight; the coming delivery owns the payload.
			return false, nil
		}
		if err := q.backend.Del(ctx, dataKey(job.ID)); err != nil {
			return false, err
		}
		return false, nil
	}

	delay := deliveryBackoffBase * time.Duration(1<<(job.Attempt-1))
	readyAt := q.now().Add(delay)
	if err := q.backend.HSet(ctx, dataKey(job.ID), map[string]interface{}{
		"meeting_id": job.MeetingID,
		"attempts":   job.Attempt,
	}); err != nil {
		return false, err
	}
	if err := q.backend.ZAdd(ctx, dueKey, job.ID, float64(readyAt.UnixMilli())); err != nil {
		return false, err
	}

	logger.Log.WithError(cause).WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"meeting_id": job.MeetingID,
		"attempt":    job.Attempt,
		"retry_in":   delay.String(),
	}).Warn("job delivery failed, requeued")
	return true, nil
}

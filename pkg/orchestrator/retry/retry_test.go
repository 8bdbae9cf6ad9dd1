package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
)

func init() {
	logger.Init()
}

type enqueueCall struct {
	meetingID string
	delay     time.Duration
}

type fakeQueue struct {
	calls []enqueueCall
	err   error
}

func (q *fakeQueue) Requeue(_ context.Context, meetingID string, delay time.Duration) error {
	if q.err != nil {
		return q.err
	}
	q.calls = append(q.calls, enqueueCall{meetingID: meetingID, delay: delay})
	return nil
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 60 * time.Minute},
		{4, 60 * time.Minute},
		{10, 60 * time.Minute},
		{-1, 5 * time.Minute},
	}
	for _, tc := range cases {
		if got := Backoff(tc.retryCount); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.retryCount, got, tc.want)
		}
	}
}

func seedFailedMeeting(store *meeting.MemoryStore, retryCount int) {
	store.PutMeeting(&meeting.MeetingModel{
		ID:             "met1",
		Status:         meeting.StatusFailedTranscription,
		AutoRetryCount: retryCount,
	})
	store.PutBlob(&meeting.UploadBlobModel{
		MeetingID:   "met1",
		StoragePath: "uploads/met1/audio.ogg",
		MimeType:    "audio/ogg",
	})
}

func TestScheduleBooksDelayedRetry(t *testing.T) {
	ctx := context.Background()
	store := meeting.NewMemoryStore()
	seedFailedMeeting(store, 1)
	queue := &fakeQueue{}
	sched := NewScheduler(store, queue)
	base := time.Now().UTC()
	sched.now = func() time.Time { return base }

	scheduled, err := sched.Schedule(ctx, "met1")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !scheduled {
		t.Fatal("expected retry to be scheduled")
	}

	if len(queue.calls) != 1 {
		t.Fatalf("expected 1 enqueue, got %d", len(queue.calls))
	}
	if queue.calls[0].delay != 10*time.Minute {
		t.Errorf("delay = %v, want 10m for second retry", queue.calls[0].delay)
	}

	m, _ := store.GetMeeting(ctx, "met1")
	if m.AutoRetryCount != 2 {
		t.Errorf("autoRetryCount = %d, want 2", m.AutoRetryCount)
	}
	if m.NextAutoRetryAt == nil || !m.NextAutoRetryAt.Equal(base.Add(10*time.Minute)) {
		t.Errorf("nextAutoRetryAt = %v, want %v", m.NextAutoRetryAt, base.Add(10*time.Minute))
	}
	if m.LastAutoRetryAt == nil || !m.LastAutoRetryAt.Equal(base) {
		t.Errorf("lastAutoRetryAt = %v, want %v", m.LastAutoRetryAt, base)
	}
}

func TestScheduleStopsAtCeiling(t *testing.T) {
	ctx := context.Background()
	store := meeting.NewMemoryStore()
	seedFailedMeeting(store, Ceiling)
	queue := &fakeQueue{}
	sched := NewScheduler(store, queue)

	scheduled, err := sched.Schedule(ctx, "met1")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if scheduled {
		t.Fatal("must not schedule past the ceiling")
	}
	if len(queue.calls) != 0 {
		t.Fatal("no job should be enqueued at the ceiling")
	}

	m, _ := store.GetMeeting(ctx, "met1")
	if m.AutoRetryCount != Ceiling {
		t.Errorf("autoRetryCount changed to %d", m.AutoRetryCount)
	}
}

func TestScheduleRefusesWhenBlobGone(t *testing.T) {
	ctx := context.Background()

	deleted := time.Now().UTC().Add(-time.Hour)
	expired := time.Now().UTC().Add(-time.Minute)

	cases := []struct {
		name string
		blob *meeting.UploadBlobModel
	}{
		{"deleted", &meeting.UploadBlobModel{MeetingID: "met1", DeletedAt: &deleted}},
		{"expired", &meeting.UploadBlobModel{MeetingID: "met1", ExpiresAt: &expired}},
		{"missing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := meeting.NewMemoryStore()
			store.PutMeeting(&meeting.MeetingModel{
				ID:     "met1",
				Status: meeting.StatusFailedTranscription,
			})
			if tc.blob != nil {
				store.PutBlob(tc.blob)
			}
			queue := &fakeQueue{}
			sched := NewScheduler(store, queue)

			scheduled, err := sched.Schedule(ctx, "met1")
			if err != nil {
				t.Fatalf("schedule: %v", err)
			}
			if scheduled {
				t.Fatal("must not schedule without usable source media")
			}
			if len(queue.calls) != 0 {
				t.Fatal("no job should be enqueued")
			}
		})
	}
}

func TestScheduleSurvivesEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	store := meeting.NewMemoryStore()
	seedFailedMeeting(store, 0)
	queue := &fakeQueue{err: errors.New("redis down")}
	sched := NewScheduler(store, queue)

	scheduled, err := sched.Schedule(ctx, "met1")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !scheduled {
		t.Fatal("retry is still booked when the enqueue fails, the sweep recovers it")
	}

	// Counters stamped so the sweep can find the meeting later.
	m, _ := store.GetMeeting(ctx, "met1")
	if m.AutoRetryCount != 1 {
		t.Errorf("autoRetryCount = %d, want 1", m.AutoRetryCount)
	}
	if m.NextAutoRetryAt == nil {
		t.Error("nextAutoRetryAt must be stamped")
	}
}

func TestSweepRequeuesDueMeetings(t *testing.T) {
	ctx := context.Background()
	store := meeting.NewMemoryStore()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	store.PutMeeting(&meeting.MeetingModel{
		ID: "met-due", Status: meeting.StatusFailedTranscription,
		AutoRetryCount: 1, NextAutoRetryAt: &past,
	})
	store.PutMeeting(&meeting.MeetingModel{
		ID: "met-later", Status: meeting.StatusFailedLLM,
		AutoRetryCount: 1, NextAutoRetryAt: &future,
	})
	store.PutMeeting(&meeting.MeetingModel{
		ID: "met-exhausted", Status: meeting.StatusFailedSystem,
		AutoRetryCount: Ceiling, NextAutoRetryAt: &past,
	})
	store.PutMeeting(&meeting.MeetingModel{
		ID: "met-healthy", Status: meeting.StatusReady,
	})

	queue := &fakeQueue{}
	sched := NewScheduler(store, queue)

	requeued, err := sched.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}
	if len(queue.calls) != 1 || queue.calls[0].meetingID != "met-due" {
		t.Fatalf("unexpected enqueues: %+v", queue.calls)
	}
	if queue.calls[0].delay != 0 {
		t.Errorf("sweep enqueues must be immediate, got delay %v", queue.calls[0].delay)
	}
}

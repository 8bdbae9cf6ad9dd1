package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
)

func init() {
	logger.Init()
}

type recordingQueue struct {
	enqueued []string
	forced   []string
}

func (q *recordingQueue) Enqueue(_ context.Context, meetingID string, _ time.Duration) error {
	q.enqueued = append(q.enqueued, meetingID)
	return nil
}

func (q *recordingQueue) ForceEnqueue(_ context.Context, meetingID string) error {
	q.forced = append(q.forced, meetingID)
	return nil
}

func newTestService() (*Service, *meeting.MemoryStore, *recordingQueue) {
	store := meeting.NewMemoryStore()
	queue := &recordingQueue{}
	sm := meeting.NewStateMachine(store, meeting.NopNotifier{})
	return NewService(store, queue, sm), store, queue
}

func TestStartProcessing(t *testing.T) {
	ctx := context.Background()
	svc, store, queue := newTestService()
	store.PutMeeting(&meeting.MeetingModel{ID: "met1", Status: meeting.StatusUploaded})

	require.NoError(t, svc.StartProcessing(ctx, "met1"))
	assert.Equal(t, []string{"met1"}, queue.enqueued)
}

func TestForceRetryRequiresFailedStatus(t *testing.T) {
	ctx := context.Background()
	svc, store, queue := newTestService()

	store.PutMeeting(&meeting.MeetingModel{ID: "met-failed", Status: meeting.StatusFailedLLM})
	store.PutMeeting(&meeting.MeetingModel{ID: "met-ready", Status: meeting.StatusReady})

	require.NoError(t, svc.ForceRetry(ctx, "met-failed"))
	assert.Equal(t, []string{"met-failed"}, queue.forced)

	err := svc.ForceRetry(ctx, "met-ready")
	assert.ErrorIs(t, err, ErrNotRetryable)

	err = svc.ForceRetry(ctx, "met-ghost")
	assert.ErrorIs(t, err, meeting.ErrMeetingNotFound)
	assert.Len(t, queue.forced, 1)
}

func TestValidateDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts ready meeting", func(t *testing.T) {
		svc, store, _ := newTestService()
		store.PutMeeting(&meeting.MeetingModel{ID: "met1", Status: meeting.StatusReady})

		require.NoError(t, svc.Validate(ctx, "met1", meeting.StatusValidated, "reviewer@acme.test", "looks good"))

		m, err := store.GetMeeting(ctx, "met1")
		require.NoError(t, err)
		assert.Equal(t, meeting.StatusValidated, m.Status)
	})

	t.Run("rejects ready meeting", func(t *testing.T) {
		svc, store, _ := newTestService()
		store.PutMeeting(&meeting.MeetingModel{ID: "met1", Status: meeting.StatusReady})

		require.NoError(t, svc.Validate(ctx, "met1", meeting.StatusRejected, "reviewer@acme.test", "wrong scenario"))

		m, err := store.GetMeeting(ctx, "met1")
		require.NoError(t, err)
		assert.Equal(t, meeting.StatusRejected, m.Status)
	})

	t.Run("rejects bad decision value", func(t *testing.T) {
		svc, store, _ := newTestService()
		store.PutMeeting(&meeting.MeetingModel{ID: "met1", Status: meeting.StatusReady})

		err := svc.Validate(ctx, "met1", meeting.StatusReady, "reviewer@acme.test", "")
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})

	t.Run("requires ready status", func(t *testing.T) {
		svc, store, _ := newTestService()
		store.PutMeeting(&meeting.MeetingModel{ID: "met1", Status: meeting.StatusTranscribing})

		err := svc.Validate(ctx, "met1", meeting.StatusValidated, "reviewer@acme.test", "")
		assert.ErrorIs(t, err, ErrNotAwaitingCheck)

		m, _ := store.GetMeeting(ctx, "met1")
		assert.Equal(t, meeting.StatusTranscribing, m.Status)
	})
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()

	next := time.Now().UTC().Add(10 * time.Minute)
	store.PutMeeting(&meeting.MeetingModel{
		ID:              "met1",
		Status:          meeting.StatusFailedTranscription,
		AutoRetryCount:  2,
		NextAutoRetryAt: &next,
	})
	require.NoError(t, store.RecordError(ctx, &meeting.ProcessingErrorModel{
		MeetingID: "met1", Stage: meeting.StageTranscription,
		ErrorCode: "provider_error", ErrorMessage: "stt 503",
	}))
	require.NoError(t, store.RecordError(ctx, &meeting.ProcessingErrorModel{
		MeetingID: "met1", Stage: meeting.StageTranscription,
		ErrorCode: "provider_error", ErrorMessage: "stt timeout",
	}))

	overview, err := svc.Overview(ctx, "met1")
	require.NoError(t, err)

	assert.Equal(t, meeting.StatusFailedTranscription, overview.Status)
	assert.Equal(t, 2, overview.AutoRetryCount)
	assert.True(t, overview.WillAutoRetry)
	assert.False(t, overview.HasTranscript)
	assert.False(t, overview.HasArtifacts)
	require.NotNil(t, overview.LastError)
	assert.Equal(t, "stt timeout", overview.LastError.ErrorMessage)
	assert.Len(t, overview.ErrorHistory, 2)
}

func TestOverviewExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()

	next := time.Now().UTC().Add(-time.Minute)
	store.PutMeeting(&meeting.MeetingModel{
		ID:              "met1",
		Status:          meeting.StatusFailedLLM,
		AutoRetryCount:  3,
		NextAutoRetryAt: &next,
	})

	overview, err := svc.Overview(ctx, "met1")
	require.NoError(t, err)
	assert.False(t, overview.WillAutoRetry, "ceiling reached, no more automatic retries")
}

func TestOverviewReadyMeeting(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()

	store.PutMeeting(&meeting.MeetingModel{ID: "met1", Status: meeting.StatusReady})
	require.NoError(t, store.CreateTranscript(ctx, &meeting.TranscriptModel{MeetingID: "met1", Text: "hi"}))
	require.NoError(t, store.CreateArtifacts(ctx, &meeting.ArtifactsModel{MeetingID: "met1", Payload: []byte(`{}`)}))

	overview, err := svc.Overview(ctx, "met1")
	require.NoError(t, err)
	assert.True(t, overview.HasTranscript)
	assert.True(t, overview.HasArtifacts)
	assert.False(t, overview.WillAutoRetry)
	assert.Nil(t, overview.LastError)
}

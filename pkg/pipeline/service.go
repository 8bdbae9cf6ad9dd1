// Package pipeline is the collaborator boundary in front of the orchestrator:
// the upload-complete enqueue hook, manual retry tooling, the processing
// overview surfaced to users, and the validation decision entry point.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/retry"
)

var (
	ErrNotRetryable     = errors.New("meeting is not in a failed state")
	ErrInvalidDecision  = errors.New("validation decision must be validated or rejected")
	ErrNotAwaitingCheck = errors.New("meeting is not awaiting validation")
)

// Enqueuer is the queue surface the service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, meetingID string, delay time.Duration) error
	ForceEnqueue(ctx context.Context, meetingID string) error
}

type Service struct {
	store meeting.Store
	queue Enqueuer
	sm    *meeting.StateMachine
}

func NewService(store meeting.Store, queue Enqueuer, sm *meeting.StateMachine) *Service {
	return &Service{store: store, queue: queue, sm: sm}
}

// StartProcessing enqueues the meeting for processing. Called by the upload
// collaborator once the source media landed in blob storage. Double calls
// collapse into the pending job.
func (s *Service) StartProcessing(ctx context.Context, meetingID string) error {
	return s.queue.Enqueue(ctx, meetingID, 0)
}

// ForceRetry creates a fresh job bypassing deduplication. Operational escape
// hatch for meetings stuck in a failure state.
func (s *Service) ForceRetry(ctx context.Context, meetingID string) error {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if !m.Status.Failed() {
		return fmt.Errorf("%w: meeting %s is %s", ErrNotRetryable, meetingID, m.Status)
	}
	return s.queue.ForceEnqueue(ctx, meetingID)
}

// ProcessingOverview is what a user sees about a meeting's progress: current
// status, the most recent error, a bounded history, and whether the system
// will self-heal.
type ProcessingOverview struct {
	MeetingID       string                         `json:"meeting_id"`
	Status          meeting.Status                 `json:"status"`
	HasTranscript   bool                           `json:"has_transcript"`
	HasArtifacts    bool                           `json:"has_artifacts"`
	AutoRetryCount  int                            `json:"auto_retry_count"`
	LastAutoRetryAt *time.Time                     `json:"last_auto_retry_at,omitempty"`
	NextAutoRetryAt *time.Time                     `json:"next_auto_retry_at,omitempty"`
	WillAutoRetry   bool                           `json:"will_auto_retry"`
	LastError       *meeting.ProcessingErrorModel  `json:"last_error,omitempty"`
	ErrorHistory    []meeting.ProcessingErrorModel `json:"error_history,omitempty"`
}

func (s *Service) Overview(ctx context.Context, meetingID string) (*ProcessingOverview, error) {
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	overview := &ProcessingOverview{
		MeetingID:       m.ID,
		Status:          m.Status,
		AutoRetryCount:  m.AutoRetryCount,
		LastAutoRetryAt: m.LastAutoRetryAt,
		NextAutoRetryAt: m.NextAutoRetryAt,
	}

	if _, err := s.store.GetTranscript(ctx, meetingID); err == nil {
		overview.HasTranscript = true
	}
	if _, err := s.store.GetArtifacts(ctx, meetingID); err == nil {
		overview.HasArtifacts = true
	}

	history, err := s.store.ListErrors(ctx, meetingID, 20)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		overview.LastError = &history[0]
		overview.ErrorHistory = history
	}

	overview.WillAutoRetry = m.Status.Failed() &&
		m.AutoRetryCount < retry.Ceiling &&
		m.NextAutoRetryAt != nil
	return overview, nil
}

// Validate records the human decision on a ready meeting and finalizes it.
func (s *Service) Validate(ctx context.Context, meetingID string, decision meeting.Status, decidedBy, comment string) error {
	if decision != meeting.StatusValidated && decision != meeting.StatusRejected {
		return ErrInvalidDecision
	}

	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if m.Status != meeting.StatusReady {
		return fmt.Errorf("%w: meeting %s is %s", ErrNotAwaitingCheck, meetingID, m.Status)
	}

	if err := s.sm.Transition(ctx, meetingID, decision); err != nil {
		return err
	}
	return s.store.CreateValidation(ctx, &meeting.ValidationModel{
		ID:        uuid.New(),
		MeetingID: meetingID,
		Decision:  decision,
		DecidedBy: decidedBy,
		Comment:   comment,
	})
}

package meeting

import (
	"context"
	"errors"
	"time"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
)

// StateMachine validates and applies lifecycle transitions. A successful
// transition persists the new status and publishes a change notification
// without awaiting it; publication failure is logged, never rolled back.
type StateMachine struct {
	store    Store
	notifier Notifier

	// notifySync forces synchronous publication; tests use it to observe
	// notifications deterministically.
	notifySync bool
}

func NewStateMachine(store Store, notifier Notifier) *StateMachine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &StateMachine{store: store, notifier: notifier}
}

func (sm *StateMachine) Transition(ctx context.Context, meetingID string, next Status) error {
	m, err := sm.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}

	if !CanTransition(m.Status, next) {
		return &InvalidTransitionError{MeetingID: meetingID, From: m.Status, To: next}
	}

	// failed_llm may resume at llm_processing only when the transcript from
	// the earlier successful transcription run is still there.
	if m.Status == StatusFailedLLM && next == StatusLLMProcessing {
		if _, err := sm.store.GetTranscript(ctx, meetingID); err != nil {
			if errors.Is(err, ErrTranscriptNotFound) {
				return &InvalidTransitionError{
					MeetingID: meetingID,
					From:      m.Status,
					To:        next,
					Reason:    "no transcript to resume from",
				}
			}
			return err
		}
	}

	if err := sm.store.UpdateStatus(ctx, meetingID, next); err != nil {
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"meeting_id": meetingID,
		"from":       string(m.Status),
		"to":         string(next),
	}).Info("meeting status transition")

	change := StatusChange{MeetingID: meetingID, Status: next}
	if _, err := sm.store.GetTranscript(ctx, meetingID); err == nil {
		change.HasTranscript = true
	}
	if _, err := sm.store.GetArtifacts(ctx, meetingID); err == nil {
		change.HasArtifacts = true
	}

	if sm.notifySync {
		sm.publish(ctx, change)
	} else {
		go func() {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sm.publish(notifyCtx, change)
		}()
	}

	return nil
}

func (sm *StateMachine) publish(ctx context.Context, change StatusChange) {
	if err := sm.notifier.NotifyStatusChange(ctx, change); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", change.MeetingID).
			Error("failed to publish status change")
	}
}

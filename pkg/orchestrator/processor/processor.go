// Package processor holds the two pipeline stages. Both follow the same
// shape: idempotency guard, precondition checks, external call, persist,
// advance the state machine, and a failure path that records the error before
// any status mutation. Neither stage lets an error escape its boundary.
package processor

import (
	"context"
	"encoding/json"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
)

// Error codes persisted with ProcessingError rows.
const (
	CodeBlobMissing       = "blob_missing"
	CodeBlobFetchFailed   = "blob_fetch_failed"
	CodeProviderError     = "provider_error"
	CodeTranscriptMissing = "transcript_missing"
	CodeScenarioMissing   = "scenario_missing"
	CodePersistFailed     = "persist_failed"
	CodeInternal          = "internal"
)

// Retrier schedules the bounded auto-retry cycle.
type Retrier interface {
	Schedule(ctx context.Context, meetingID string) (bool, error)
}

// Cleaner manages the upload blob's lifecycle on success and failure paths.
type Cleaner interface {
	DeleteUploadBlob(ctx context.Context, meetingID string, immediate bool) error
}

// failStage is the universal failure path: append the error row first so the
// diagnostic survives even if the status update is lost, then move to the
// failure sink, stamp the blob's expiry, and optionally schedule a retry.
func failStage(
	ctx context.Context,
	store meeting.Store,
	sm *meeting.StateMachine,
	cleaner Cleaner,
	retrier Retrier,
	meetingID, stage, code string,
	cause error,
	details map[string]interface{},
	scheduleRetry bool,
	target meeting.Status,
) {
	entry := &meeting.ProcessingErrorModel{
		MeetingID:    meetingID,
		Stage:        stage,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.ErrorDetails = raw
		}
	}
	if err := store.RecordError(ctx, entry); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to record processing error")
	}

	if err := sm.Transition(ctx, meetingID, target); err != nil {
		// The table may forbid the stage sink from the current status (e.g.
		// a precondition failure while still uploaded); fall back to the
		// system sink before giving up.
		if fallbackErr := sm.Transition(ctx, meetingID, meeting.StatusFailedSystem); fallbackErr != nil {
			logger.Log.WithError(err).WithField("meeting_id", meetingID).
				Error("failed to move meeting to a failure state")
		}
	}

	if err := cleaner.DeleteUploadBlob(ctx, meetingID, false); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to set blob expiry on failure path")
	}

	if scheduleRetry {
		if _, err := retrier.Schedule(ctx, meetingID); err != nil {
			logger.Log.WithError(err).WithField("meeting_id", meetingID).
				Error("failed to schedule auto-retry")
		}
	}

	logger.Log.WithError(cause).WithFields(map[string]interface{}{
		"meeting_id": meetingID,
		"stage":      stage,
		"error_code": code,
	}).Error("stage processing failed")
}

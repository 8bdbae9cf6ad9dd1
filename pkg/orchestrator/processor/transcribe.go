package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/observability/metrics"
	"github.com/meetscribe-ai/platform/pkg/providers/transcription"
	"github.com/meetscribe-ai/platform/pkg/storage/blob"
)

type TranscriptionProcessor struct {
	store    meeting.Store
	sm       *meeting.StateMachine
	blobs    blob.Store
	provider transcription.Provider
	cleaner  Cleaner
	retrier  Retrier
}

func NewTranscriptionProcessor(
	store meeting.Store,
	sm *meeting.StateMachine,
	blobs blob.Store,
	provider transcription.Provider,
	cleaner Cleaner,
	retrier Retrier,
) *TranscriptionProcessor {
	return &TranscriptionProcessor{
		store:    store,
		sm:       sm,
		blobs:    blobs,
		provider: provider,
		cleaner:  cleaner,
		retrier:  retrier,
	}
}

// Run transcribes the meeting's source media. Replays are safe: an existing
// transcript short-circuits before any provider call. All failures are
// handled inside; Run never returns an error to its caller.
func (p *TranscriptionProcessor) Run(ctx context.Context, meetingID string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncTranscriptionErrors()
			p.fail(ctx, meetingID, CodeInternal, fmt.Errorf("panic in transcription stage: %v", r), nil, true)
		}
	}()

	if _, err := p.store.GetTranscript(ctx, meetingID); err == nil {
		logger.Log.WithField("meeting_id", meetingID).Debug("transcript already exists, stage skipped")
		return
	} else if !errors.Is(err, meeting.ErrTranscriptNotFound) {
		p.fail(ctx, meetingID, CodeInternal, err, nil, true)
		return
	}

	b, err := p.store.GetUploadBlob(ctx, meetingID)
	if err != nil {
		if errors.Is(err, meeting.ErrBlobNotFound) {
			// Configuration error, nothing to retry against.
			p.fail(ctx, meetingID, CodeBlobMissing, err, nil, false)
			return
		}
		p.fail(ctx, meetingID, CodeInternal, err, nil, true)
		return
	}

	m, err := p.store.GetMeeting(ctx, meetingID)
	if err != nil {
		p.fail(ctx, meetingID, CodeInternal, err, nil, true)
		return
	}
	if m.Status == meeting.StatusUploaded {
		if err := p.sm.Transition(ctx, meetingID, meeting.StatusTranscribing); err != nil {
			p.fail(ctx, meetingID, CodeInternal, err, nil, true)
			return
		}
	}

	audio, err := p.blobs.Fetch(ctx, b.StoragePath)
	if err != nil {
		metrics.IncTranscriptionErrors()
		p.fail(ctx, meetingID, CodeBlobFetchFailed, err, map[string]interface{}{
			"storage_path": b.StoragePath,
		}, true)
		return
	}

	hints := p.vocabularyHints(ctx, m.ScenarioID)

	result, err := p.provider.Transcribe(ctx, transcription.Request{
		Audio:           audio,
		MimeType:        b.MimeType,
		VocabularyHints: hints,
	})
	if err != nil {
		metrics.IncTranscriptionErrors()
		p.fail(ctx, meetingID, CodeProviderError, err, nil, true)
		return
	}

	segments, err := json.Marshal(result.Segments)
	if err != nil {
		p.fail(ctx, meetingID, CodePersistFailed, err, nil, true)
		return
	}
	hintsJSON, err := json.Marshal(hints)
	if err != nil {
		p.fail(ctx, meetingID, CodePersistFailed, err, nil, true)
		return
	}

	transcript := &meeting.TranscriptModel{
		ID:              uuid.New(),
		MeetingID:       meetingID,
		Text:            result.Text,
		Segments:        segments,
		Language:        result.Language,
		VocabularyHints: hintsJSON,
	}
	if err := p.store.CreateTranscript(ctx, transcript); err != nil {
		p.fail(ctx, meetingID, CodePersistFailed, err, nil, true)
		return
	}

	if err := p.sm.Transition(ctx, meetingID, meeting.StatusLLMProcessing); err != nil {
		// Transcript is saved; the next run recovers by walking the status
		// forward from wherever this left it.
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("transcript saved but status advance failed")
		return
	}

	logger.Log.WithFields(map[string]interface{}{
		"meeting_id": meetingID,
		"language":   result.Language,
		"segments":   len(result.Segments),
	}).Info("transcription stage complete")
}

func (p *TranscriptionProcessor) vocabularyHints(ctx context.Context, scenarioID string) []string {
	if scenarioID == "" {
		return nil
	}
	scenario, err := p.store.GetScenario(ctx, scenarioID)
	if err != nil {
		logger.Log.WithError(err).WithField("scenario_id", scenarioID).
			Warn("scenario lookup failed, transcribing without vocabulary hints")
		return nil
	}
	if len(scenario.VocabularyHints) == 0 {
		return nil
	}
	var hints []string
	if err := json.Unmarshal(scenario.VocabularyHints, &hints); err != nil {
		return nil
	}
	return hints
}

func (p *TranscriptionProcessor) fail(ctx context.Context, meetingID, code string, cause error, details map[string]interface{}, scheduleRetry bool) {
	stage := meeting.StageTranscription
	if code == CodeInternal {
		stage = meeting.StageSystem
	}
	failStage(ctx, p.store, p.sm, p.cleaner, p.retrier,
		meetingID, stage, code, cause, details, scheduleRetry,
		meeting.StatusFailedTranscription)
}

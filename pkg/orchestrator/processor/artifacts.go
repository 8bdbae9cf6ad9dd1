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
	"github.com/meetscribe-ai/platform/pkg/providers/llm"
	"github.com/meetscribe-ai/platform/pkg/providers/transcription"
)

type ArtifactProcessor struct {
	store     meeting.Store
	sm        *meeting.StateMachine
	provider  llm.Provider
	cleaner   Cleaner
	retrier   Retrier
	modelName string
}

func NewArtifactProcessor(
	store meeting.Store,
	sm *meeting.StateMachine,
	provider llm.Provider,
	cleaner Cleaner,
	retrier Retrier,
	modelName string,
) *ArtifactProcessor {
	return &ArtifactProcessor{
		store:     store,
		sm:        sm,
		provider:  provider,
		cleaner:   cleaner,
		retrier:   retrier,
		modelName: modelName,
	}
}

// Run extracts structured artifacts from the transcript. Replays short-
// circuit on existing artifacts. On success the source blob is deleted
// immediately rather than waiting for TTL. Run never returns an error.
func (p *ArtifactProcessor) Run(ctx context.Context, meetingID string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncLLMErrors()
			p.fail(ctx, meetingID, CodeInternal, fmt.Errorf("panic in llm stage: %v", r), nil, true)
		}
	}()

	if _, err := p.store.GetArtifacts(ctx, meetingID); err == nil {
		logger.Log.WithField("meeting_id", meetingID).Debug("artifacts already exist, stage skipped")
		return
	} else if !errors.Is(err, meeting.ErrArtifactsNotFound) {
		p.fail(ctx, meetingID, CodeInternal, err, nil, true)
		return
	}

	transcript, err := p.store.GetTranscript(ctx, meetingID)
	if err != nil {
		if errors.Is(err, meeting.ErrTranscriptNotFound) {
			// Data error: retrying cannot conjure a transcript.
			p.fail(ctx, meetingID, CodeTranscriptMissing, err, nil, false)
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

	scenario, err := p.store.GetScenario(ctx, m.ScenarioID)
	if err != nil {
		if errors.Is(err, meeting.ErrScenarioNotFound) {
			p.fail(ctx, meetingID, CodeScenarioMissing,
				fmt.Errorf("meeting %s has no usable scenario %q: %w", meetingID, m.ScenarioID, err), nil, false)
			return
		}
		p.fail(ctx, meetingID, CodeInternal, err, nil, true)
		return
	}

	metadata := p.buildMetadata(ctx, m, scenario)

	var segments []transcription.Segment
	if len(transcript.Segments) > 0 {
		if err := json.Unmarshal(transcript.Segments, &segments); err != nil {
			logger.Log.WithError(err).WithField("meeting_id", meetingID).
				Warn("stored segments unreadable, extracting from text only")
		}
	}

	payload, err := p.provider.Extract(ctx, llm.Request{
		TranscriptText: transcript.Text,
		Segments:       segments,
		SystemPrompt:   scenario.SystemPrompt,
		OutputSchema:   json.RawMessage(scenario.OutputSchema),
		Metadata:       metadata,
	})
	if err != nil {
		metrics.IncLLMErrors()
		p.fail(ctx, meetingID, CodeProviderError, err, nil, true)
		return
	}

	artifacts := &meeting.ArtifactsModel{
		ID:        uuid.New(),
		MeetingID: meetingID,
		Payload:   []byte(payload),
		ModelName: p.modelName,
	}
	if err := p.store.CreateArtifacts(ctx, artifacts); err != nil {
		p.fail(ctx, meetingID, CodePersistFailed, err, nil, true)
		return
	}

	if err := p.sm.Transition(ctx, meetingID, meeting.StatusReady); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("artifacts saved but status advance failed")
		return
	}

	// Successful completion reclaims storage right away.
	if err := p.cleaner.DeleteUploadBlob(ctx, meetingID, true); err != nil {
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to delete upload blob after success")
	}

	logger.Log.WithFields(map[string]interface{}{
		"meeting_id": meetingID,
		"scenario":   scenario.ID,
	}).Info("llm stage complete")
}

func (p *ArtifactProcessor) buildMetadata(ctx context.Context, m *meeting.MeetingModel, scenario *meeting.ScenarioModel) llm.Metadata {
	metadata := llm.Metadata{
		MeetingType:  m.MeetingType,
		ScenarioName: scenario.Name,
	}

	if m.ClientID != "" {
		if client, err := p.store.GetClient(ctx, m.ClientID); err == nil {
			metadata.ClientName = client.Name
			metadata.ContextSummary = client.ContextSummary
		} else {
			logger.Log.WithError(err).WithField("client_id", m.ClientID).
				Warn("client lookup failed, extracting without context summary")
		}
	}

	participants, err := p.store.ListParticipants(ctx, m.ID)
	if err == nil {
		for _, participant := range participants {
			name := participant.Name
			if participant.Role != "" {
				name = fmt.Sprintf("%s (%s)", participant.Name, participant.Role)
			}
			metadata.Participants = append(metadata.Participants, name)
		}
	}
	return metadata
}

func (p *ArtifactProcessor) fail(ctx context.Context, meetingID, code string, cause error, details map[string]interface{}, scheduleRetry bool) {
	stage := meeting.StageLLM
	if code == CodeInternal {
		stage = meeting.StageSystem
	}
	failStage(ctx, p.store, p.sm, p.cleaner, p.retrier,
		meetingID, stage, code, cause, details, scheduleRetry,
		meeting.StatusFailedLLM)
}

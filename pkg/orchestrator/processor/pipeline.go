package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
)

// Pipeline drives one meeting through both stages. It resumes from failure
// sinks, recovers partial progress after crashes, and always moves the status
// one legal hop at a time so the transition table stays authoritative.
type Pipeline struct {
	store       meeting.Store
	sm          *meeting.StateMachine
	transcriber *TranscriptionProcessor
	extractor   *ArtifactProcessor
}

func NewPipeline(store meeting.Store, sm *meeting.StateMachine, transcriber *TranscriptionProcessor, extractor *ArtifactProcessor) *Pipeline {
	return &Pipeline{store: store, sm: sm, transcriber: transcriber, extractor: extractor}
}

// Run processes the meeting. A returned error is fatal only to the current
// job attempt (the queue's delivery retry handles it); stage failures are
// absorbed by the processors.
func (p *Pipeline) Run(ctx context.Context, meetingID string) error {
	m, err := p.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if m.Status.Terminal() {
		logger.Log.WithFields(map[string]interface{}{
			"meeting_id": meetingID,
			"status":     string(m.Status),
		}).Info("meeting already finalized, nothing to process")
		return nil
	}

	if m.Status.Failed() {
		if err := p.resume(ctx, m); err != nil {
			return err
		}
		if m, err = p.store.GetMeeting(ctx, meetingID); err != nil {
			return err
		}
	}

	// A transcript saved before a crash can leave the stored status behind.
	// Walk it forward one hop at a time instead of skipping.
	if _, tErr := p.store.GetTranscript(ctx, meetingID); tErr == nil {
		if m.Status == meeting.StatusUploaded {
			if err := p.sm.Transition(ctx, meetingID, meeting.StatusTranscribing); err != nil {
				return err
			}
			m.Status = meeting.StatusTranscribing
		}
		if m.Status == meeting.StatusTranscribing {
			if err := p.sm.Transition(ctx, meetingID, meeting.StatusLLMProcessing); err != nil {
				return err
			}
			m.Status = meeting.StatusLLMProcessing
		}
	} else if !errors.Is(tErr, meeting.ErrTranscriptNotFound) {
		return tErr
	}

	if m.Status == meeting.StatusUploaded || m.Status == meeting.StatusTranscribing {
		p.transcriber.Run(ctx, meetingID)
		if m, err = p.store.GetMeeting(ctx, meetingID); err != nil {
			return err
		}
	}

	if m.Status == meeting.StatusLLMProcessing {
		p.extractor.Run(ctx, meetingID)
	}
	return nil
}

// resume moves a meeting out of its failure sink so a retry can proceed:
// back to uploaded, or straight to llm_processing when the transcript from a
// failed llm stage is still there.
func (p *Pipeline) resume(ctx context.Context, m *meeting.MeetingModel) error {
	target := meeting.StatusUploaded
	if m.Status == meeting.StatusFailedLLM {
		if _, err := p.store.GetTranscript(ctx, m.ID); err == nil {
			target = meeting.StatusLLMProcessing
		} else if !errors.Is(err, meeting.ErrTranscriptNotFound) {
			return err
		}
	}
	if err := p.sm.Transition(ctx, m.ID, target); err != nil {
		return fmt.Errorf("resuming meeting %s from %s: %w", m.ID, m.Status, err)
	}
	return nil
}

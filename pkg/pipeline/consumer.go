package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/meetscribe-ai/platform/pkg/common/kafka"
	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/queue"
)

// UploadEventBridge turns upload-completed events from the storage
// collaborator into processing jobs.
type UploadEventBridge struct {
	consumer *kafka.Consumer
	service  *Service
}

func NewUploadEventBridge(consumer *kafka.Consumer, service *Service) *UploadEventBridge {
	return &UploadEventBridge{consumer: consumer, service: service}
}

// Run consumes until ctx is cancelled.
func (b *UploadEventBridge) Run(ctx context.Context) error {
	return b.consumer.Consume(ctx, b.handle)
}

func (b *UploadEventBridge) handle(ctx context.Context, event kafka.Event) error {
	meetingID, _ := event.Data["meeting_id"].(string)
	if meetingID == "" {
		// Malformed event; retrying cannot fix it, so commit and move on.
		logger.Log.WithField("event_id", event.ID).Warn("upload event without meeting_id discarded")
		return nil
	}

	if err := b.service.StartProcessing(ctx, meetingID); err != nil {
		if errors.Is(err, queue.ErrMeetingMissing) {
			// Meeting deleted between upload and event delivery.
			logger.Log.WithField("meeting_id", meetingID).
				Warn("upload event for missing meeting discarded")
			return nil
		}
		return fmt.Errorf("enqueueing meeting %s from upload event: %w", meetingID, err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"meeting_id": meetingID,
		"event_id":   event.ID,
	}).Info("meeting enqueued from upload event")
	return nil
}

package meeting

import (
	"context"

	"github.com/meetscribe-ai/platform/pkg/common/kafka"
)

// StatusChange is the payload published to the real-time UI collaborator on
// every successful transition.
type StatusChange struct {
	MeetingID     string `json:"meeting_id"`
	Status        Status `json:"status"`
	HasTranscript bool   `json:"has_transcript"`
	HasArtifacts  bool   `json:"has_artifacts"`
}

type Notifier interface {
	NotifyStatusChange(ctx context.Context, change StatusChange) error
}

// KafkaNotifier publishes status changes on the meeting status topic.
type KafkaNotifier struct {
	producer *kafka.Producer
}

func NewKafkaNotifier(producer *kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) NotifyStatusChange(ctx context.Context, change StatusChange) error {
	return n.producer.PublishEvent(ctx, "meeting.status.changed", "orchestrator", map[string]interface{}{
		"meeting_id":     change.MeetingID,
		"status":         string(change.Status),
		"has_transcript": change.HasTranscript,
		"has_artifacts":  change.HasArtifacts,
	})
}

// NopNotifier discards notifications; used in tests and tools.
type NopNotifier struct{}

func (NopNotifier) NotifyStatusChange(context.Context, StatusChange) error { return nil }

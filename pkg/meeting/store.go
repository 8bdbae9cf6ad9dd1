package meeting

import (
	"context"
	"time"
)

// Store is the persistence boundary the orchestrator depends on. The gorm
// Repository implements it in production; an in-memory Store backs tests.
// Every write is individually atomic; there is no cross-stage transaction.
type Store interface {
	GetMeeting(ctx context.Context, id string) (*MeetingModel, error)
	UpdateStatus(ctx context.Context, id string, status Status) error

	GetUploadBlob(ctx context.Context, meetingID string) (*UploadBlobModel, error)
	MarkBlobDeleted(ctx context.Context, meetingID string, at time.Time) error
	SetBlobExpiry(ctx context.Context, meetingID string, at time.Time) error
	ListExpiredBlobs(ctx context.Context, now time.Time) ([]UploadBlobModel, error)

	GetTranscript(ctx context.Context, meetingID string) (*TranscriptModel, error)
	CreateTranscript(ctx context.Context, t *TranscriptModel) error

	GetArtifacts(ctx context.Context, meetingID string) (*ArtifactsModel, error)
	CreateArtifacts(ctx context.Context, a *ArtifactsModel) error

	RecordError(ctx context.Context, e *ProcessingErrorModel) error
	ListErrors(ctx context.Context, meetingID string, limit int) ([]ProcessingErrorModel, error)

	// IncrementAutoRetry atomically bumps the retry counter and stamps the
	// last/next retry times.
	IncrementAutoRetry(ctx context.Context, meetingID string, last, next time.Time) error
	ListRetryDue(ctx context.Context, now time.Time, ceiling int) ([]MeetingModel, error)

	GetScenario(ctx context.Context, id string) (*ScenarioModel, error)
	UpsertScenario(ctx context.Context, s *ScenarioModel) error
	GetClient(ctx context.Context, id string) (*ClientModel, error)
	ListParticipants(ctx context.Context, meetingID string) ([]ParticipantModel, error)

	CreateValidation(ctx context.Context, v *ValidationModel) error
}

package meeting

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed Store implementation.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&ClientModel{},
		&ScenarioModel{},
		&MeetingModel{},
		&ParticipantModel{},
		&UploadBlobModel{},
		&TranscriptModel{},
		&ArtifactsModel{},
		&ValidationModel{},
		&ProcessingErrorModel{},
	)
}

func (r *Repository) GetMeeting(ctx context.Context, id string) (*MeetingModel, error) {
	var m MeetingModel
	result := r.db.WithContext(ctx).First(&m, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrMeetingNotFound
	}
	return &m, result.Error
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	result := r.db.WithContext(ctx).Model(&MeetingModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func (r *Repository) GetUploadBlob(ctx context.Context, meetingID string) (*UploadBlobModel, error) {
	var b UploadBlobModel
	result := r.db.WithContext(ctx).First(&b, "meeting_id = ?", meetingID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	return &b, result.Error
}

func (r *Repository) MarkBlobDeleted(ctx context.Context, meetingID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&UploadBlobModel{}).
		Where("meeting_id = ?", meetingID).
		Update("deleted_at", at).Error
}

func (r *Repository) SetBlobExpiry(ctx context.Context, meetingID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&UploadBlobModel{}).
		Where("meeting_id = ?", meetingID).
		Update("expires_at", at).Error
}

func (r *Repository) ListExpiredBlobs(ctx context.Context, now time.Time) ([]UploadBlobModel, error) {
	var blobs []UploadBlobModel
	result := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ? AND deleted_at IS NULL", now).
		Find(&blobs)
	return blobs, result.Error
}

func (r *Repository) GetTranscript(ctx context.Context, meetingID string) (*TranscriptModel, error) {
	var t TranscriptModel
	result := r.db.WithContext(ctx).First(&t, "meeting_id = ?", meetingID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrTranscriptNotFound
	}
	return &t, result.Error
}

func (r *Repository) CreateTranscript(ctx context.Context, t *TranscriptModel) error {
	t.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repository) GetArtifacts(ctx context.Context, meetingID string) (*ArtifactsModel, error) {
	var a ArtifactsModel
	result := r.db.WithContext(ctx).First(&a, "meeting_id = ?", meetingID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrArtifactsNotFound
	}
	return &a, result.Error
}

func (r *Repository) CreateArtifacts(ctx context.Context, a *ArtifactsModel) error {
	a.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repository) RecordError(ctx context.Context, e *ProcessingErrorModel) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repository) ListErrors(ctx context.Context, meetingID string, limit int) ([]ProcessingErrorModel, error) {
	if limit <= 0 {
		limit = 20
	}
	var errs []ProcessingErrorModel
	result := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("occurred_at desc").
		Limit(limit).
		Find(&errs)
	return errs, result.Error
}

func (r *Repository) IncrementAutoRetry(ctx context.Context, meetingID string, last, next time.Time) error {
	result := r.db.WithContext(ctx).Model(&MeetingModel{}).
		Where("id = ?", meetingID).
		Updates(map[string]interface{}{
			"auto_retry_count":   gorm.Expr("auto_retry_count + 1"),
			"last_auto_retry_at": last,
			"next_auto_retry_at": next,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func (r *Repository) ListRetryDue(ctx context.Context, now time.Time, ceiling int) ([]MeetingModel, error) {
	var meetings []MeetingModel
	result := r.db.WithContext(ctx).
		Where("status IN ?", FailedStatuses()).
		Where("next_auto_retry_at IS NOT NULL AND next_auto_retry_at <= ?", now).
		Where("auto_retry_count < ?", ceiling).
		Find(&meetings)
	return meetings, result.Error
}

func (r *Repository) GetScenario(ctx context.Context, id string) (*ScenarioModel, error) {
	var s ScenarioModel
	result := r.db.WithContext(ctx).First(&s, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrScenarioNotFound
	}
	return &s, result.Error
}

func (r *Repository) UpsertScenario(ctx context.Context, s *ScenarioModel) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "meeting_type", "system_prompt", "output_schema", "vocabulary_hints", "updated_at"}),
	}).Create(s).Error
}

func (r *Repository) GetClient(ctx context.Context, id string) (*ClientModel, error) {
	var c ClientModel
	result := r.db.WithContext(ctx).First(&c, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	return &c, result.Error
}

func (r *Repository) ListParticipants(ctx context.Context, meetingID string) ([]ParticipantModel, error) {
	var participants []ParticipantModel
	result := r.db.WithContext(ctx).Where("meeting_id = ?", meetingID).Find(&participants)
	return participants, result.Error
}

func (r *Repository) CreateValidation(ctx context.Context, v *ValidationModel) error {
	if v.DecidedAt.IsZero() {
		v.DecidedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(v).Error
}

package meeting

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Processing stages for the error log.
const (
	StageTranscription = "transcription"
	StageLLM           = "llm"
	StageSystem        = "system"
)

type MeetingModel struct {
	ID              string            `gorm:"primaryKey;column:id"`
	Title           string            `gorm:"column:title"`
	MeetingType     string            `gorm:"column:meeting_type"`
	ClientID        string            `gorm:"column:client_id"`
	ScenarioID      string            `gorm:"column:scenario_id"`
	Status          Status            `gorm:"column:status"`
	AutoRetryCount  int               `gorm:"column:auto_retry_count"`
	LastAutoRetryAt *time.Time        `gorm:"column:last_auto_retry_at"`
	NextAutoRetryAt *time.Time        `gorm:"column:next_auto_retry_at"`
	CreatedAt       time.Time         `gorm:"column:created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at"`
	Participants    []ParticipantModel `gorm:"foreignKey:MeetingID"`
}

func (MeetingModel) TableName() string { return "meetings" }

type UploadBlobModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;column:id"`
	MeetingID   string     `gorm:"column:meeting_id;uniqueIndex"`
	StoragePath string     `gorm:"column:storage_path"`
	MimeType    string     `gorm:"column:mime_type"`
	SizeBytes   int64      `gorm:"column:size_bytes"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	DeletedAt   *time.Time `gorm:"column:deleted_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
}

func (UploadBlobModel) TableName() string { return "upload_blobs" }

// Usable reports whether the source media can still be fetched: not yet
// deleted and not past its failure-path expiry.
func (b *UploadBlobModel) Usable(now time.Time) bool {
	if b.DeletedAt != nil {
		return false
	}
	if b.ExpiresAt != nil && now.After(*b.ExpiresAt) {
		return false
	}
	return true
}

type TranscriptModel struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	MeetingID       string         `gorm:"column:meeting_id;uniqueIndex"`
	Text            string         `gorm:"column:text"`
	Segments        datatypes.JSON `gorm:"column:segments"`
	Language        string         `gorm:"column:language"`
	VocabularyHints datatypes.JSON `gorm:"column:vocabulary_hints"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
}

func (TranscriptModel) TableName() string { return "transcripts" }

type ArtifactsModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	MeetingID string         `gorm:"column:meeting_id;uniqueIndex"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	ModelName string         `gorm:"column:model_name"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (ArtifactsModel) TableName() string { return "artifacts" }

type ValidationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	MeetingID string    `gorm:"column:meeting_id;uniqueIndex"`
	Decision  Status    `gorm:"column:decision"`
	DecidedBy string    `gorm:"column:decided_by"`
	Comment   string    `gorm:"column:comment"`
	DecidedAt time.Time `gorm:"column:decided_at"`
}

func (ValidationModel) TableName() string { return "validations" }

// ProcessingErrorModel rows are append-only; they are written before any
// status mutation so a crash cannot lose the diagnostic record.
type ProcessingErrorModel struct {
	ID           int64          `gorm:"primaryKey;autoIncrement;column:id"`
	MeetingID    string         `gorm:"column:meeting_id;index"`
	Stage        string         `gorm:"column:stage"`
	ErrorCode    string         `gorm:"column:error_code"`
	ErrorMessage string         `gorm:"column:error_message"`
	ErrorDetails datatypes.JSON `gorm:"column:error_details"`
	OccurredAt   time.Time      `gorm:"column:occurred_at"`
}

func (ProcessingErrorModel) TableName() string { return "processing_errors" }

type ScenarioModel struct {
	ID              string         `gorm:"primaryKey;column:id"`
	Name            string         `gorm:"column:name"`
	MeetingType     string         `gorm:"column:meeting_type"`
	SystemPrompt    string         `gorm:"column:system_prompt"`
	OutputSchema    datatypes.JSON `gorm:"column:output_schema"`
	VocabularyHints datatypes.JSON `gorm:"column:vocabulary_hints"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}

func (ScenarioModel) TableName() string { return "scenarios" }

type ClientModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	Name           string    `gorm:"column:name"`
	ContextSummary string    `gorm:"column:context_summary"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (ClientModel) TableName() string { return "clients" }

type ParticipantModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	MeetingID string    `gorm:"column:meeting_id;index"`
	Name      string    `gorm:"column:name"`
	Role      string    `gorm:"column:role"`
	Email     string    `gorm:"column:email"`
}

func (ParticipantModel) TableName() string { return "participants" }

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers         []string
	KafkaGroupID         string
	StatusTopic          string
	UploadCompletedTopic string

	// Blob storage
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Transcription provider
	TranscriptionBaseURL      string
	TranscriptionTokenURL     string
	TranscriptionClientID     string
	TranscriptionClientSecret string
	TranscriptionTimeout      time.Duration

	// LLM provider
	LLMAPIKey    string
	LLMBaseURL   string
	LLMModelName string
	LLMTimeout   time.Duration

	// Worker pool
	WorkerConcurrency int
	WorkerPollDelay   time.Duration

	// Locking
	LockTTL         time.Duration
	LockExtendEvery time.Duration
	LockWaitDelay   time.Duration
	LockWaitRetries int

	// Cleanup
	BlobFailureTTL time.Duration

	// Scenario catalog
	ScenarioCatalogPath string

	// Scheduler sweeps
	AutoRetrySweepEvery time.Duration
	BlobSweepEvery      time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "meetscribe"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "meetscribe123"),
		PostgresDB:       getEnv("POSTGRES_DB", "meetscribe"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "meetscribe-platform"),
		StatusTopic:          getEnv("KAFKA_STATUS_TOPIC", "meeting.status"),
		UploadCompletedTopic: getEnv("KAFKA_UPLOAD_TOPIC", "meeting.upload.completed"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "meeting-uploads"),
		MinioUseSSL:    getBoolEnv("MINIO_USE_SSL", false),

		TranscriptionBaseURL:      getEnv("TRANSCRIPTION_BASE_URL", "https://stt.example.com/v1"),
		TranscriptionTokenURL:     getEnv("TRANSCRIPTION_TOKEN_URL", "https://stt.example.com/oauth2/token"),
		TranscriptionClientID:     getEnv("TRANSCRIPTION_CLIENT_ID", ""),
		TranscriptionClientSecret: getEnv("TRANSCRIPTION_CLIENT_SECRET", ""),
		TranscriptionTimeout:      getDuration("TRANSCRIPTION_TIMEOUT", 10*time.Minute),

		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
		LLMBaseURL:   getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModelName: getEnv("LLM_MODEL_NAME", "gpt-4"),
		LLMTimeout:   getDuration("LLM_TIMEOUT", 5*time.Minute),

		WorkerConcurrency: getIntEnv("WORKER_CONCURRENCY", 5),
		WorkerPollDelay:   getDuration("WORKER_POLL_DELAY", time.Second),

		LockTTL:         getDuration("LOCK_TTL", 5*time.Minute),
		LockExtendEvery: getDuration("LOCK_EXTEND_EVERY", time.Minute),
		LockWaitDelay:   getDuration("LOCK_WAIT_DELAY", time.Second),
		LockWaitRetries: getIntEnv("LOCK_WAIT_RETRIES", 10),

		BlobFailureTTL: getDuration("BLOB_FAILURE_TTL", 24*time.Hour),

		ScenarioCatalogPath: getEnv("SCENARIO_CATALOG_PATH", ""),

		AutoRetrySweepEvery: getDuration("AUTO_RETRY_SWEEP_EVERY", time.Minute),
		BlobSweepEvery:      getDuration("BLOB_SWEEP_EVERY", 15*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

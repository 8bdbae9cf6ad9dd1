package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/meetscribe-ai/platform/pkg/common/config"
	"github.com/meetscribe-ai/platform/pkg/common/database"
	"github.com/meetscribe-ai/platform/pkg/common/kafka"
	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/observability/metrics"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/cleanup"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/lock"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/processor"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/queue"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/retry"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/worker"
	"github.com/meetscribe-ai/platform/pkg/providers/llm"
	"github.com/meetscribe-ai/platform/pkg/providers/transcription"
	"github.com/meetscribe-ai/platform/pkg/storage/blob"
)

func main() {
	logger.Init()
	cfg := config.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	repo := meeting.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to run migrations")
	}

	redisClient, err := database.NewRedis(rootCtx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.StatusTopic)
	defer producer.Close()

	blobs, err := blob.NewMinioStore(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize blob store")
	}

	sm := meeting.NewStateMachine(repo, meeting.NewKafkaNotifier(producer))
	jobQueue := queue.New(queue.NewRedisBackend(redisClient), repo)
	locks := lock.NewManager(lock.NewRedisBackend(redisClient),
		lock.WithTTL(cfg.LockTTL),
		lock.WithExtendEvery(cfg.LockExtendEvery),
		lock.WithWait(cfg.LockWaitDelay, cfg.LockWaitRetries),
	)
	reaper := cleanup.NewReaper(repo, blobs, cfg.BlobFailureTTL)
	retrier := retry.NewScheduler(repo, jobQueue)

	transcriber := processor.NewTranscriptionProcessor(repo, sm, blobs,
		transcription.NewHTTPProvider(cfg), reaper, retrier)
	extractor := processor.NewArtifactProcessor(repo, sm,
		llm.NewOpenAIProvider(cfg), reaper, retrier, cfg.LLMModelName)
	pipeline := processor.NewPipeline(repo, sm, transcriber, extractor)

	pool := worker.New(jobQueue, locks, pipeline, repo, sm, retrier,
		cfg.WorkerConcurrency, cfg.WorkerPollDelay)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(rootCtx)
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":        cfg.ServerHost,
			"port":        cfg.ServerPort,
			"concurrency": cfg.WorkerConcurrency,
		}).Info("Worker Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-rootCtx.Done()
	logger.Log.Info("Shutting down Worker Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Log.Warn("Worker pool did not drain in time")
	}

	logger.Log.Info("Worker Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

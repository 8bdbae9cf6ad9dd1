package main

import (
	"context"
	"errors"
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
	"github.com/meetscribe-ai/platform/pkg/orchestrator/queue"
	"github.com/meetscribe-ai/platform/pkg/pipeline"
	"github.com/meetscribe-ai/platform/pkg/scenario"
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

	catalog, err := scenario.Load(cfg.ScenarioCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to load scenario catalog, using defaults")
	}
	if err := scenario.Seed(rootCtx, repo, catalog); err != nil {
		logger.Log.WithError(err).Fatal("Failed to seed scenario catalog")
	}

	redisClient, err := database.NewRedis(rootCtx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.StatusTopic)
	defer producer.Close()

	sm := meeting.NewStateMachine(repo, meeting.NewKafkaNotifier(producer))
	jobQueue := queue.New(queue.NewRedisBackend(redisClient), repo)
	service := pipeline.NewService(repo, jobQueue, sm)

	uploadConsumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.UploadCompletedTopic, cfg.KafkaGroupID)
	defer uploadConsumer.Close()

	bridge := pipeline.NewUploadEventBridge(uploadConsumer, service)
	go func() {
		if err := bridge.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("upload event bridge stopped")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")
	pipeline.NewHTTPHandler(service).Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Pipeline Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-rootCtx.Done()
	logger.Log.Info("Shutting down Pipeline Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Pipeline Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

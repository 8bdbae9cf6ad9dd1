package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/meetscribe-ai/platform/pkg/common/config"
	"github.com/meetscribe-ai/platform/pkg/common/database"
	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/observability/metrics"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/cleanup"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/queue"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/retry"
	"github.com/meetscribe-ai/platform/pkg/storage/blob"
)

// SchedulerService runs the periodic sweeps: re-enqueueing overdue failed
// meetings and reaping expired upload blobs. Both are also exposed as HTTP
// endpoints so an external cron can drive them.
type SchedulerService struct {
	retrier *retry.Scheduler
	reaper  *cleanup.Reaper
}

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

	redisClient, err := database.NewRedis(rootCtx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	blobs, err := blob.NewMinioStore(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize blob store")
	}

	jobQueue := queue.New(queue.NewRedisBackend(redisClient), repo)
	service := &SchedulerService{
		retrier: retry.NewScheduler(repo, jobQueue),
		reaper:  cleanup.NewReaper(repo, blobs, cfg.BlobFailureTTL),
	}

	go service.tick(rootCtx, cfg.AutoRetrySweepEvery, "auto-retry", func(ctx context.Context) error {
		_, err := service.retrier.Sweep(ctx)
		return err
	})
	go service.tick(rootCtx, cfg.BlobSweepEvery, "blob", func(ctx context.Context) error {
		_, _, err := service.reaper.SweepExpired(ctx)
		return err
	})

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")
	router.HandleFunc("/internal/sweeps/auto-retry", service.handleAutoRetrySweep).Methods("POST")
	router.HandleFunc("/internal/sweeps/blobs", service.handleBlobSweep).Methods("POST")

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
		}).Info("Scheduler Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-rootCtx.Done()
	logger.Log.Info("Shutting down Scheduler Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Scheduler Service stopped")
}

func (s *SchedulerService) tick(ctx context.Context, every time.Duration, name string, sweep func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				logger.Log.WithError(err).WithField("sweep", name).Error("periodic sweep failed")
			}
		}
	}
}

func (s *SchedulerService) handleAutoRetrySweep(w http.ResponseWriter, r *http.Request) {
	requeued, err := s.retrier.Sweep(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("auto-retry sweep failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"requeued": requeued})
}

func (s *SchedulerService) handleBlobSweep(w http.ResponseWriter, r *http.Request) {
	deleted, failed, err := s.reaper.SweepExpired(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("blob sweep failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"deleted": deleted, "failed": failed})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

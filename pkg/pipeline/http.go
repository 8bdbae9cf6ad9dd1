package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/queue"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/meetings/{id}/process", h.handleProcess).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/meetings/{id}/retry", h.handleForceRetry).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/meetings/{id}/processing", h.handleOverview).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/meetings/{id}/validation", h.handleValidate).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["id"]

	if err := h.service.StartProcessing(r.Context(), meetingID); err != nil {
		if errors.Is(err, queue.ErrMeetingMissing) {
			http.Error(w, "meeting not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to enqueue meeting")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"meeting_id": meetingID, "status": "enqueued"})
}

func (h *HTTPHandler) handleForceRetry(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["id"]

	if err := h.service.ForceRetry(r.Context(), meetingID); err != nil {
		switch {
		case errors.Is(err, meeting.ErrMeetingNotFound):
			http.Error(w, "meeting not found", http.StatusNotFound)
		case errors.Is(err, ErrNotRetryable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.Log.WithError(err).WithField("meeting_id", meetingID).
				Error("failed to force retry")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"meeting_id": meetingID, "status": "retry_enqueued"})
}

func (h *HTTPHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["id"]

	overview, err := h.service.Overview(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, meeting.ErrMeetingNotFound) {
			http.Error(w, "meeting not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).WithField("meeting_id", meetingID).
			Error("failed to build processing overview")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(overview)
}

func (h *HTTPHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["id"]

	var req struct {
		Decision  string `json:"decision"`
		DecidedBy string `json:"decided_by"`
		Comment   string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.Validate(r.Context(), meetingID, meeting.Status(req.Decision), req.DecidedBy, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, meeting.ErrMeetingNotFound):
			http.Error(w, "meeting not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidDecision):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotAwaitingCheck):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.Log.WithError(err).WithField("meeting_id", meetingID).
				Error("failed to record validation decision")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"meeting_id": meetingID, "decision": req.Decision})
}

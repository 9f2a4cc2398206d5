package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/dataset"
	"github.com/shy020501/Video-Automation/internal/models"
)

type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]models.Run, error)
}

type RunEnqueuer interface {
	Enqueue(ctx context.Context, req *models.RunRequest) error
	Len(ctx context.Context) (int64, error)
}

type Handler struct {
	runs        RunStore // nil when no database is configured
	queue       RunEnqueuer
	datasetPath string
	logger      *zap.Logger
}

func NewHandler(runs RunStore, q RunEnqueuer, datasetPath string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runs:        runs,
		queue:       q,
		datasetPath: datasetPath,
		logger:      logger,
	}
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - unused: "true" to return only jobs that have not been published yet
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.loadJobs()
	if err != nil {
		h.logger.Error("failed to load dataset", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load dataset")
		return
	}

	if r.URL.Query().Get("unused") == "true" {
		filtered := entries[:0]
		for _, e := range entries {
			if !e.Used {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	respondJSON(w, http.StatusOK, entries)
}

// CreateRun handles POST /v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	req.Job = strings.TrimSpace(req.Job)

	stages := models.DefaultStages()
	if req.Stages != "" {
		var err error
		if stages, err = models.ParseStages(req.Stages); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if req.Job != "" {
		entries, err := h.loadJobs()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load dataset")
			return
		}
		found := false
		for _, e := range entries {
			if e.Job != req.Job {
				continue
			}
			if e.Used {
				respondError(w, http.StatusConflict, "Job has already been used")
				return
			}
			found = true
		}
		if !found {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
	}

	runReq := &models.RunRequest{
		ID:     uuid.New(),
		Job:    req.Job,
		Stages: stages.String(),
	}

	if h.runs != nil {
		run := &models.Run{ID: runReq.ID, Job: runReq.Job, Stages: runReq.Stages, Status: models.RunStatusQueued}
		if err := h.runs.CreateRun(r.Context(), run); err != nil {
			h.logger.Error("failed to create run", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to create run")
			return
		}
	}

	if err := h.queue.Enqueue(r.Context(), runReq); err != nil {
		h.logger.Error("failed to enqueue run", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to enqueue run")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateRunResponse{
		RunID:  runReq.ID,
		Status: models.RunStatusQueued,
	})
}

// ListRuns handles GET /v1/runs
// Query params:
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run ledger is not configured")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	runs, err := h.runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListRunsResponse{
		Runs:   runs,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run ledger is not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get run", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

func (h *Handler) loadJobs() ([]models.JobSummary, error) {
	store, err := dataset.Load(h.datasetPath, h.logger)
	if err != nil {
		return nil, err
	}
	return store.Entries(), nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health reports liveness and how many runs are waiting in the queue.
// A queue that cannot be reached degrades the status without failing the check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if h.queue != nil {
		depth, err := h.queue.Len(r.Context())
		if err != nil {
			h.logger.Warn("queue depth unavailable", zap.Error(err))
			resp["status"] = "degraded"
		} else {
			resp["queue_depth"] = depth
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/job"
	"github.com/alapanbagchi/Code-Visualizer/store"
)

// Publisher enqueues one job payload. A false return means "not queued".
type Publisher interface {
	Publish(ctx context.Context, payload job.Payload) bool
}

// JobStore is the subset of the record store the HTTP layer needs.
type JobStore interface {
	Create(ctx context.Context, id, code string, expectedOutput *string) error
	Get(ctx context.Context, id string) (*job.Job, error)
	Apply(ctx context.Context, id string, p job.Patch) (bool, error)
}

// Server is the API process's HTTP surface.
type Server struct {
	logger    *zap.Logger
	store     JobStore
	publisher Publisher
}

// New creates a Server.
func New(logger *zap.Logger, jobStore JobStore, publisher Publisher) *Server {
	return &Server{
		logger:    logger,
		store:     jobStore,
		publisher: publisher,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleHealth)
	r.Route("/code", func(r chi.Router) {
		r.Post("/execute-code", s.handleSubmit)
		r.Get("/status/{jobId}", s.handleStatus)
		r.Post("/job-update", s.handleJobUpdate)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": http.StatusOK, "message": "API is healthy"})
}

type submitRequest struct {
	Code           string  `json:"code"`
	ExpectedOutput *string `json:"expectedOutput"`
}

// handleSubmit validates the submission, persists the initial queued row and
// publishes the payload. A publish failure marks the job as error right away;
// it is never silently dropped.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "Code is required")
		return
	}

	jobID := uuid.NewString()
	if err := s.store.Create(r.Context(), jobID, req.Code, req.ExpectedOutput); err != nil {
		s.logger.Error("failed to create job record", zap.String("jobID", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to submit job")
		return
	}

	payload := job.Payload{
		JobID:          jobID,
		Code:           req.Code,
		ExpectedOutput: req.ExpectedOutput,
	}
	if !s.publisher.Publish(r.Context(), payload) {
		s.logger.Error("failed to publish job, marking as error", zap.String("jobID", jobID))
		msg := "Failed to queue job"
		if _, err := s.store.Apply(r.Context(), jobID, job.Patch{
			Status: job.Set(job.StatusError),
			Error:  job.Set(&msg),
		}); err != nil {
			s.logger.Error("failed to mark unqueued job as error", zap.String("jobID", jobID), zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "Failed to queue job")
		return
	}

	s.logger.Info("job submitted", zap.String("jobID", jobID))
	writeJSON(w, http.StatusOK, map[string]any{"jobId": jobID, "status": job.StatusQueued})
}

// handleStatus returns the full job record by identifier.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	j, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("failed to load job", zap.String("jobID", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, j)
}

type updateRequest struct {
	JobID  string              `json:"jobId"`
	Status job.Opt[job.Status] `json:"status"`
	Result *resultBody         `json:"result"`
}

type resultBody struct {
	Output              job.Opt[*string]          `json:"output"`
	Error               job.Opt[*string]          `json:"error"`
	Trace               job.Opt[[]job.TraceEntry] `json:"execution_trace"`
	Verdict             job.Opt[job.Verdict]      `json:"passFailStatus"`
	ExecutionTime       job.Opt[*float64]         `json:"execution_time"`
	EmbeddingsGenerated job.Opt[bool]             `json:"embeddingsGenerated"`
}

// handleJobUpdate is the status callback consumed on behalf of the record
// store: only supplied fields are persisted.
func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}
	if req.Status.Valid && !req.Status.Value.IsValid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	patch := job.Patch{Status: req.Status}
	if req.Result != nil {
		patch.Output = req.Result.Output
		patch.Error = req.Result.Error
		patch.Trace = req.Result.Trace
		patch.Verdict = req.Result.Verdict
		patch.ExecutionTime = req.Result.ExecutionTime
		patch.EmbeddingsGenerated = req.Result.EmbeddingsGenerated
	}
	if patch.IsZero() {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	ok, err := s.store.Apply(r.Context(), req.JobID, patch)
	if err != nil {
		s.logger.Error("failed to apply job update", zap.String("jobID", req.JobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // response already committed
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/job"
)

// APIReporter posts status updates to the API server's job-update callback
// instead of touching the database directly. This is the deployment where
// worker and API are separate processes sharing only the broker and the API's
// HTTP surface.
type APIReporter struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
}

var _ Reporter = (*APIReporter)(nil)

// NewAPIReporter returns a Reporter that posts to baseURL + /code/job-update.
func NewAPIReporter(logger *zap.Logger, baseURL string) *APIReporter {
	return &APIReporter{
		logger:  logger,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
	}
}

// Report serializes only the present patch fields, so the callback preserves
// the absent-means-unchanged contract end to end.
func (r *APIReporter) Report(ctx context.Context, jobID string, p job.Patch) bool {
	body := map[string]any{"jobId": jobID}
	if p.Status.Valid {
		body["status"] = p.Status.Value
	}

	result := map[string]any{}
	if p.Output.Valid {
		result["output"] = p.Output.Value
	}
	if p.Error.Valid {
		result["error"] = p.Error.Value
	}
	if p.Trace.Valid {
		result["execution_trace"] = p.Trace.Value
	}
	if p.Verdict.Valid {
		result["passFailStatus"] = p.Verdict.Value
	}
	if p.ExecutionTime.Valid {
		result["execution_time"] = p.ExecutionTime.Value
	}
	if p.EmbeddingsGenerated.Valid {
		result["embeddingsGenerated"] = p.EmbeddingsGenerated.Value
	}
	if len(result) > 0 {
		body["result"] = result
	}

	payload, err := json.Marshal(body)
	if err != nil {
		r.logger.Error("failed to marshal status update", zap.String("jobID", jobID), zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/code/job-update", bytes.NewReader(payload))
	if err != nil {
		r.logger.Error("failed to build status update request", zap.String("jobID", jobID), zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("failed to deliver status update", zap.String("jobID", jobID), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode == http.StatusNotFound:
		r.logger.Warn("status update for unknown job", zap.String("jobID", jobID))
		return false
	default:
		r.logger.Error("status update rejected",
			zap.String("jobID", jobID),
			zap.Int("status_code", resp.StatusCode),
		)
		return false
	}
}

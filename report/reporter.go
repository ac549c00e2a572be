package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/job"
)

// Reporter persists one partial update against a job record.
type Reporter interface {
	Report(ctx context.Context, jobID string, p job.Patch) bool
}

// JobStore is the subset of the record store a direct reporter needs.
type JobStore interface {
	Apply(ctx context.Context, id string, p job.Patch) (bool, error)
}

// StoreReporter writes updates straight to the record store. Used when the
// worker shares a database with the API.
type StoreReporter struct {
	logger *zap.Logger
	store  JobStore
}

var _ Reporter = (*StoreReporter)(nil)

// NewStoreReporter returns a Reporter backed by the record store.
func NewStoreReporter(logger *zap.Logger, store JobStore) *StoreReporter {
	return &StoreReporter{logger: logger, store: store}
}

// Report applies the patch. Unknown job identifiers and database errors both
// yield false; only the latter is logged as an error.
func (r *StoreReporter) Report(ctx context.Context, jobID string, p job.Patch) bool {
	ok, err := r.store.Apply(ctx, jobID, p)
	if err != nil {
		r.logger.Error("failed to persist status update", zap.String("jobID", jobID), zap.Error(err))
		return false
	}
	if !ok {
		r.logger.Warn("status update for unknown job", zap.String("jobID", jobID))
	}
	return ok
}

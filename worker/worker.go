package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/job"
	"github.com/alapanbagchi/Code-Visualizer/report"
	"github.com/alapanbagchi/Code-Visualizer/sandbox"
)

// Embedder generates embeddings for a finished job. Optional.
type Embedder interface {
	Process(ctx context.Context, jobID, code string, trace []job.TraceEntry) error
}

// Worker processes one job message at a time: report running, execute in the
// sandbox, evaluate the outcome, report the terminal state in a single call,
// then fire the best-effort embedding step.
type Worker struct {
	logger   *zap.Logger
	executor sandbox.Executor
	reporter report.Reporter
	embedder Embedder // nil disables the embedding step
}

// New creates a Worker. Pass a nil embedder to disable embedding generation.
func New(logger *zap.Logger, executor sandbox.Executor, reporter report.Reporter, embedder Embedder) *Worker {
	return &Worker{
		logger:   logger,
		executor: executor,
		reporter: reporter,
		embedder: embedder,
	}
}

// Handle processes one raw queue message. It returns nil in every case the
// message must not be redelivered: malformed payloads cannot succeed on
// redelivery, and once a terminal report was attempted the job is done from
// this worker's point of view even if the report itself failed (that gap has
// no compensating action; the job may stay at running for pollers).
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var payload job.Payload
	if err := json.Unmarshal(body, &payload); err != nil || payload.JobID == "" {
		// No valid job identifier to report against.
		w.logger.Error("discarding malformed job payload", zap.Error(err), zap.ByteString("body", body))
		return nil
	}

	w.logger.Info("received job", zap.String("jobID", payload.JobID))

	// Report running before launching the sandbox so pollers observe
	// progress, not just queued and terminal states.
	w.reporter.Report(ctx, payload.JobID, job.Patch{
		Status:  job.Set(job.StatusRunning),
		Verdict: job.Set(job.VerdictNotApplicable),
	})

	result, err := w.executor.Execute(ctx, payload.JobID, payload.Code)
	if err != nil {
		// Sandbox infrastructure failure before the user code could run.
		w.logger.Error("sandbox execution failed", zap.String("jobID", payload.JobID), zap.Error(err))
		msg := fmt.Sprintf("Sandbox execution failed: %v", err)
		w.reporter.Report(ctx, payload.JobID, job.Patch{
			Status:        job.Set(job.StatusError),
			Output:        job.Set(ptr("")),
			Error:         job.Set(&msg),
			Trace:         job.Set([]job.TraceEntry{}),
			Verdict:       job.Set(job.VerdictFailed),
			ExecutionTime: job.Set(ptr(0.0)),
		})
		return nil
	}

	verdict := evaluate(result, payload.ExpectedOutput)

	status := job.StatusCompleted
	if result.Error != nil {
		status = job.StatusError
	}

	w.reporter.Report(ctx, payload.JobID, job.Patch{
		Status:        job.Set(status),
		Output:        job.Set(&result.Output),
		Error:         job.Set(result.Error),
		Trace:         job.Set(result.Trace),
		Verdict:       job.Set(verdict),
		ExecutionTime: job.Set(&result.ExecutionTime),
	})

	w.logger.Info("job finished",
		zap.String("jobID", payload.JobID),
		zap.String("status", string(status)),
		zap.String("verdict", string(verdict)),
	)

	if status == job.StatusCompleted && w.embedder != nil {
		go w.generateEmbeddings(payload, result.Trace)
	}

	return nil
}

// evaluate produces the pass/fail verdict. An execution error always fails,
// regardless of expected output; without an expected output the comparator is
// never invoked.
func evaluate(result job.ExecutionResult, expected *string) job.Verdict {
	switch {
	case result.Error != nil:
		return job.VerdictFailed
	case expected != nil:
		return job.Compare(result.Output, *expected)
	default:
		return job.VerdictNotApplicable
	}
}

// generateEmbeddings runs the secondary pipeline after the terminal report.
// Its failure is logged and can never alter the already-reported terminal
// status.
func (w *Worker) generateEmbeddings(payload job.Payload, trace []job.TraceEntry) {
	ctx := context.Background()

	if err := w.embedder.Process(ctx, payload.JobID, payload.Code, trace); err != nil {
		w.logger.Warn("embedding generation failed", zap.String("jobID", payload.JobID), zap.Error(err))
		return
	}

	w.reporter.Report(ctx, payload.JobID, job.Patch{
		EmbeddingsGenerated: job.Set(true),
	})
}

func ptr[T any](v T) *T { return &v }

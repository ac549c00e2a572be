package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/job"
)

// EmbeddingsConfig holds settings for the embedding processor container.
type EmbeddingsConfig struct {
	Runtime      string
	Image        string
	QdrantURL    string
	QdrantPort   string
	QdrantAPIKey string
}

// EmbeddingRunner generates embeddings for a finished job by running the
// embedding processor in a container. It is invoked only after the job's
// terminal status has been reported, and its failure never alters that status.
type EmbeddingRunner struct {
	logger    *zap.Logger
	config    *EmbeddingsConfig
	cmdRunner CommandRunner
}

// EmbeddingRunnerOption defines a functional option for EmbeddingRunner
type EmbeddingRunnerOption func(*EmbeddingRunner)

// WithEmbeddingCommandRunner sets the CommandRunner for EmbeddingRunner
func WithEmbeddingCommandRunner(cmdRunner CommandRunner) EmbeddingRunnerOption {
	return func(r *EmbeddingRunner) {
		r.cmdRunner = cmdRunner
	}
}

// NewEmbeddingRunner creates an EmbeddingRunner with default implementations
func NewEmbeddingRunner(logger *zap.Logger, config *EmbeddingsConfig, opts ...EmbeddingRunnerOption) *EmbeddingRunner {
	runner := &EmbeddingRunner{
		logger:    logger,
		config:    config,
		cmdRunner: &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// embeddingReport is the JSON document the embedding processor prints.
type embeddingReport struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Process runs the embedding processor for one job. Unlike code execution the
// container gets bridge networking, because the processor must reach the
// vector store.
func (r *EmbeddingRunner) Process(ctx context.Context, jobID, code string, trace []job.TraceEntry) error {
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	containerName := "codeviz-embed-" + jobID

	cmdArgs := []string{
		r.config.Runtime, "run",
		"--rm",
		"--name", containerName,
		"--network", "bridge",
		"-e", "QDRANT_URL=" + r.config.QdrantURL,
		"-e", "QDRANT_PORT=" + r.config.QdrantPort,
		"-e", "QDRANT_API_KEY=" + r.config.QdrantAPIKey,
		r.config.Image,
		"python3", "/opt/embedding_processor.py", "process", jobID, code, string(traceJSON),
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	stdout, stderr, exitCode, runErr := r.cmdRunner.RunCommand(runCtx, cmdArgs)
	if runErr != nil {
		return fmt.Errorf("failed to run embedding container: %w", runErr)
	}
	if exitCode != 0 {
		return fmt.Errorf("embedding container exited with code %d. Stderr: %s", exitCode, stderr)
	}

	var report embeddingReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		return fmt.Errorf("failed to parse embedding processor output: %v. Raw stdout: %s. Stderr: %s", err, stdout, stderr)
	}
	if report.Status != "success" {
		return fmt.Errorf("embedding processing failed: %s", report.Message)
	}

	r.logger.Info("embeddings generated", zap.String("jobID", jobID))
	return nil
}

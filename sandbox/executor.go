package sandbox

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/job"
)

//go:embed tracer.py
var tracerScript []byte

// Config holds the fixed resource limits applied to every job.
type Config struct {
	// Runtime is the container CLI used for isolation: "docker" or "podman".
	Runtime    string
	Image      string
	TimeoutSec int
	MemoryMB   int
	CPUs       float64
}

// ContainerExecutor implements Executor by running the tracer driver and the
// submitted code in a fresh container per job, with no network, a hard memory
// ceiling, a fractional CPU ceiling and a wall-clock timeout measured from
// process launch.
type ContainerExecutor struct {
	logger    *zap.Logger
	config    *Config
	cmdRunner CommandRunner
	fs        FileSystem
}

var _ Executor = (*ContainerExecutor)(nil)

// ContainerExecutorOption defines a functional option for ContainerExecutor
type ContainerExecutorOption func(*ContainerExecutor)

// WithCommandRunner sets the CommandRunner for ContainerExecutor
func WithCommandRunner(cmdRunner CommandRunner) ContainerExecutorOption {
	return func(e *ContainerExecutor) {
		e.cmdRunner = cmdRunner
	}
}

// WithFileSystem sets the FileSystem for ContainerExecutor
func WithFileSystem(fs FileSystem) ContainerExecutorOption {
	return func(e *ContainerExecutor) {
		e.fs = fs
	}
}

// NewContainerExecutor creates a ContainerExecutor with default implementations
// and optional interfaces
func NewContainerExecutor(logger *zap.Logger, config *Config, opts ...ContainerExecutorOption) *ContainerExecutor {
	executor := &ContainerExecutor{
		logger:    logger,
		config:    config,
		cmdRunner: &RealCommandRunner{}, // Default implementation
		fs:        &RealFileSystem{},    // Default implementation
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// sandboxReport is the strict schema of the single JSON document the tracer
// driver prints on stdout. Anything that does not decode into this shape is a
// sandbox-level failure, not a user-code failure.
type sandboxReport struct {
	Output        string           `json:"output"`
	Error         *string          `json:"error"`
	Trace         []job.TraceEntry `json:"execution_trace"`
	ExecutionTime float64          `json:"execution_time"`
}

// Execute runs one job's code in an isolated container and returns exactly one
// ExecutionResult per attempt. Setup failures (working area, process launch)
// surface as *SetupError; everything else, including timeouts and malformed
// tracer output, is captured inside the result.
func (e *ContainerExecutor) Execute(ctx context.Context, jobID, code string) (job.ExecutionResult, error) {
	// Job-scoped working area, destroyed unconditionally on every exit path.
	tempDir, err := e.fs.MkdirTemp("", "codeviz-"+jobID+"-*")
	if err != nil {
		return job.ExecutionResult{}, &SetupError{Stage: "working area", Err: err}
	}
	defer func() {
		if rmErr := e.fs.RemoveAll(tempDir); rmErr != nil {
			e.logger.Error("failed to remove working area", zap.String("path", tempDir), zap.Error(rmErr))
		}
	}()

	userCodePath := filepath.Join(tempDir, UserCodeFile)
	tracerPath := filepath.Join(tempDir, TracerFile)

	if writeErr := e.fs.WriteFile(userCodePath, []byte(code), FilePermission); writeErr != nil {
		return job.ExecutionResult{}, &SetupError{Stage: "working area", Err: writeErr}
	}
	if writeErr := e.fs.WriteFile(tracerPath, tracerScript, FilePermission); writeErr != nil {
		return job.ExecutionResult{}, &SetupError{Stage: "working area", Err: writeErr}
	}

	containerName := "codeviz-exec-" + jobID

	cmdArgs := []string{
		e.config.Runtime, "run",
		"--rm",
		"--name", containerName,
		"--network", "none",
		"--memory", fmt.Sprintf("%dm", e.config.MemoryMB),
		"--cpus", fmt.Sprintf("%g", e.config.CPUs),
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		"-e", "PYTHONUNBUFFERED=1",
		"-v", fmt.Sprintf("%s:%s:ro", userCodePath, MountUserCodePath),
		"-v", fmt.Sprintf("%s:%s:ro", tracerPath, MountTracerPath),
		e.config.Image,
		"python3", MountTracerPath,
	}

	e.logger.Debug("launching sandbox container",
		zap.String("jobID", jobID),
		zap.String("container", containerName),
		zap.String("image", e.config.Image),
	)

	// The timeout is measured from process launch, not from job arrival.
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(e.config.TimeoutSec)*time.Second)
	defer cancel()

	started := time.Now()
	stdout, stderr, exitCode, runErr := e.cmdRunner.RunCommand(runCtx, cmdArgs)
	elapsed := time.Since(started)

	if runCtx.Err() == context.DeadlineExceeded {
		// The killed CLI process may leave the container behind; kill both.
		e.logger.Warn("sandbox timed out, killing container",
			zap.String("jobID", jobID),
			zap.Int("timeout_sec", e.config.TimeoutSec),
		)
		killCtx, killCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer killCancel()
		if _, kStderr, _, kErr := e.cmdRunner.RunCommand(killCtx, []string{e.config.Runtime, "kill", containerName}); kErr != nil {
			e.logger.Warn("failed to kill container after timeout",
				zap.String("container", containerName),
				zap.String("stderr", kStderr),
				zap.Error(kErr),
			)
		}

		msg := fmt.Sprintf("Code execution timed out after %d seconds.", e.config.TimeoutSec)
		return job.ExecutionResult{
			Output:        stdout,
			Error:         &msg,
			Trace:         []job.TraceEntry{},
			ExecutionTime: elapsed.Seconds(),
		}, nil
	}

	if runErr != nil {
		return job.ExecutionResult{}, &SetupError{Stage: "process launch", Err: runErr}
	}

	result := e.parseReport(jobID, stdout, stderr, elapsed)

	// A non-zero exit with no error recorded so far means the container died
	// without self-reporting; synthesize one from the exit code.
	if exitCode != 0 && result.Error == nil {
		msg := fmt.Sprintf("sandbox exited with code %d. Stderr: %s", exitCode, stderr)
		result.Error = &msg
	}

	return result, nil
}

// parseReport decodes the tracer's stdout. Parse failures preserve the raw
// stdout and stderr so no information is silently dropped.
func (e *ContainerExecutor) parseReport(jobID, stdout, stderr string, elapsed time.Duration) job.ExecutionResult {
	dec := json.NewDecoder(strings.NewReader(stdout))
	dec.DisallowUnknownFields()

	var report sandboxReport
	err := dec.Decode(&report)
	if err == nil && dec.More() {
		err = fmt.Errorf("trailing data after JSON document")
	}
	if err != nil {
		e.logger.Error("failed to parse sandbox output",
			zap.String("jobID", jobID),
			zap.Error(err),
		)
		msg := fmt.Sprintf("Failed to parse sandbox output: %v. Raw stdout: %s. Stderr: %s", err, stdout, stderr)
		return job.ExecutionResult{
			Output:        stdout,
			Error:         &msg,
			Trace:         []job.TraceEntry{},
			ExecutionTime: elapsed.Seconds(),
		}
	}

	trace := report.Trace
	if trace == nil {
		trace = []job.TraceEntry{}
	}

	return job.ExecutionResult{
		Output:        report.Output,
		Error:         report.Error,
		Trace:         trace,
		ExecutionTime: report.ExecutionTime,
	}
}

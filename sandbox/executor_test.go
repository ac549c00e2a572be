package sandbox

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu    sync.Mutex
	calls [][]string

	RunFunc func(ctx context.Context, args []string) (string, string, int, error)
}

func (m *MockCommandRunner) RunCommand(ctx context.Context, args []string) (string, string, int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, args)
	}
	return "", "", 0, nil
}

func (m *MockCommandRunner) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	mkdirTempErr  error
	writeFileErrs map[string]error

	mu       sync.Mutex
	written  map[string][]byte
	removed  []string
	tempDirs int
}

func (m *MockFileSystem) MkdirTemp(_, pattern string) (string, error) {
	if m.mkdirTempErr != nil {
		return "", m.mkdirTempErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tempDirs++
	return "/tmp/" + strings.ReplaceAll(pattern, "*", "x"), nil
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, _ os.FileMode) error {
	if err, exists := m.writeFileErrs[filename]; exists {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.written == nil {
		m.written = make(map[string][]byte)
	}
	m.written[filename] = data
	return nil
}

func (m *MockFileSystem) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, path)
	return nil
}

func testConfig() *Config {
	return &Config{
		Runtime:    "docker",
		Image:      "sandbox-python",
		TimeoutSec: 20,
		MemoryMB:   128,
		CPUs:       0.5,
	}
}

func TestContainerExecutorConstructors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := testConfig()

	t.Run("DefaultConstructor", func(t *testing.T) {
		executor := NewContainerExecutor(logger, config)
		require.NotNil(t, executor)
		assert.Equal(t, logger, executor.logger)
		assert.Equal(t, config, executor.config)
		// Default implementations should be set
		assert.NotNil(t, executor.cmdRunner)
		assert.NotNil(t, executor.fs)
	})

	t.Run("ConstructorWithOptions", func(t *testing.T) {
		mockRunner := &MockCommandRunner{}
		mockFS := &MockFileSystem{}

		executor := NewContainerExecutor(
			logger,
			config,
			WithCommandRunner(mockRunner),
			WithFileSystem(mockFS),
		)
		require.NotNil(t, executor)
		assert.Equal(t, mockRunner, executor.cmdRunner)
		assert.Equal(t, mockFS, executor.fs)
	})
}

func TestExecuteSuccess(t *testing.T) {
	logger := zaptest.NewLogger(t)
	report := `{"output": "hi\n", "error": null, "execution_trace": [` +
		`{"event": "line", "line_no": 1, "filename": "user_code.py", "timestamp": 0}` +
		`], "execution_time": 0.01}`

	mockRunner := &MockCommandRunner{
		RunFunc: func(_ context.Context, _ []string) (string, string, int, error) {
			return report, "", 0, nil
		},
	}
	mockFS := &MockFileSystem{}

	executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(mockRunner), WithFileSystem(mockFS))

	result, err := executor.Execute(context.Background(), "job-1", `print("hi")`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result.Output)
	assert.Nil(t, result.Error)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "line", result.Trace[0].Event)
	assert.InDelta(t, 0.01, result.ExecutionTime, 1e-9)

	// Working area is released on the success path.
	assert.NotEmpty(t, mockFS.removed)

	// User code and tracer were both materialized.
	assert.Len(t, mockFS.written, 2)
}

func TestExecuteContainerInvocation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mockRunner := &MockCommandRunner{
		RunFunc: func(_ context.Context, _ []string) (string, string, int, error) {
			return `{"output": "", "error": null, "execution_trace": [], "execution_time": 0}`, "", 0, nil
		},
	}

	executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(mockRunner), WithFileSystem(&MockFileSystem{}))

	_, err := executor.Execute(context.Background(), "job-2", "pass")
	require.NoError(t, err)

	calls := mockRunner.Calls()
	require.Len(t, calls, 1)
	args := strings.Join(calls[0], " ")

	assert.Contains(t, args, "docker run")
	assert.Contains(t, args, "--name codeviz-exec-job-2")
	assert.Contains(t, args, "--network none")
	assert.Contains(t, args, "--memory 128m")
	assert.Contains(t, args, "--cpus 0.5")
	assert.Contains(t, args, "--cap-drop ALL")
	assert.Contains(t, args, "sandbox-python python3 /mnt/tracer.py")
}

func TestExecuteUserError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	report := `{"output": "", "error": "ValueError: x\nTraceback...", "execution_trace": [], "execution_time": 0.002}`

	mockRunner := &MockCommandRunner{
		RunFunc: func(_ context.Context, _ []string) (string, string, int, error) {
			return report, "", 1, nil
		},
	}

	executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(mockRunner), WithFileSystem(&MockFileSystem{}))

	result, err := executor.Execute(context.Background(), "job-3", `raise ValueError("x")`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "ValueError: x")
}

func TestExecuteMalformedOutput(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mockRunner := &MockCommandRunner{
		RunFunc: func(_ context.Context, _ []string) (string, string, int, error) {
			return "this is not json", "some stderr noise", 0, nil
		},
	}

	executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(mockRunner), WithFileSystem(&MockFileSystem{}))

	result, err := executor.Execute(context.Background(), "job-4", "pass")
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "Failed to parse")
	// Raw streams are preserved, not discarded.
	assert.Contains(t, *result.Error, "this is not json")
	assert.Contains(t, *result.Error, "some stderr noise")
	assert.Equal(t, "this is not json", result.Output)
}

func TestExecuteTrailingGarbage(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mockRunner := &MockCommandRunner{
		RunFunc: func(_ context.Context, _ []string) (string, string, int, error) {
			return `{"output": "", "error": null, "execution_trace": [], "execution_time": 0} extra`, "", 0, nil
		},
	}

	executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(mockRunner), WithFileSystem(&MockFileSystem{}))

	result, err := executor.Execute(context.Background(), "job-5", "pass")
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "Failed to parse")
}

func TestExecuteNonZeroExitWithoutError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mockRunner := &MockCommandRunner{
		RunFunc: func(_ context.Context, _ []string) (string, string, int, error) {
			return `{"output": "partial", "error": null, "execution_trace": [], "execution_time": 0.1}`, "oom killed", 137, nil
		},
	}

	executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(mockRunner), WithFileSystem(&MockFileSystem{}))

	result, err := executor.Execute(context.Background(), "job-6", "pass")
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "exited with code 137")
	assert.Contains(t, *result.Error, "oom killed")
	assert.Equal(t, "partial", result.Output)
}

func TestExecuteTimeout(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := testConfig()
	config.TimeoutSec = 1

	mockRunner := &MockCommandRunner{
		RunFunc: func(ctx context.Context, args []string) (string, string, int, error) {
			if args[1] == "kill" {
				return "", "", 0, nil
			}
			<-ctx.Done()
			return "", "", -1, ctx.Err()
		},
	}
	mockFS := &MockFileSystem{}

	executor := NewContainerExecutor(logger, config, WithCommandRunner(mockRunner), WithFileSystem(mockFS))

	start := time.Now()
	result, err := executor.Execute(context.Background(), "job-7", "while True: pass")
	require.NoError(t, err)

	// Terminated within a bounded grace period after the limit.
	assert.Less(t, time.Since(start), 5*time.Second)

	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "timed out after 1 seconds")

	// The container wrapper is killed too.
	calls := mockRunner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"docker", "kill", "codeviz-exec-job-7"}, calls[1])

	// Working area destroyed on the timeout path as well.
	assert.NotEmpty(t, mockFS.removed)
}

func TestExecuteSetupErrors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("WorkingAreaFailure", func(t *testing.T) {
		mockFS := &MockFileSystem{mkdirTempErr: errors.New("disk full")}
		executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(&MockCommandRunner{}), WithFileSystem(mockFS))

		_, err := executor.Execute(context.Background(), "job-8", "pass")
		require.Error(t, err)

		var setupErr *SetupError
		require.ErrorAs(t, err, &setupErr)
		assert.Equal(t, "working area", setupErr.Stage)
	})

	t.Run("ProcessLaunchFailure", func(t *testing.T) {
		mockRunner := &MockCommandRunner{
			RunFunc: func(_ context.Context, _ []string) (string, string, int, error) {
				return "", "", 0, errors.New("docker: command not found")
			},
		}
		mockFS := &MockFileSystem{}
		executor := NewContainerExecutor(logger, testConfig(), WithCommandRunner(mockRunner), WithFileSystem(mockFS))

		_, err := executor.Execute(context.Background(), "job-9", "pass")
		require.Error(t, err)

		var setupErr *SetupError
		require.ErrorAs(t, err, &setupErr)
		assert.Equal(t, "process launch", setupErr.Stage)

		// Cleanup still runs when launch fails.
		assert.NotEmpty(t, mockFS.removed)
	})
}

package job

import "time"

// Status is the lifecycle state of a job. Transitions are monotonic along
// queued -> running -> {completed|error}; a job never re-enters queued.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further primary-pipeline transition follows s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// IsValid reports whether s is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Verdict classifies actual output against expected output.
type Verdict string

const (
	VerdictPassed        Verdict = "passed"
	VerdictFailed        Verdict = "failed"
	VerdictNotApplicable Verdict = "not_applicable"
)

// TraceEntry is one observation recorded by the tracer during sandboxed
// execution. The sequence order is execution order.
type TraceEntry struct {
	Event        string `json:"event"`
	LineNo       int    `json:"line_no"`
	Filename     string `json:"filename"`
	FunctionName string `json:"function_name,omitempty"`
	VariableName string `json:"variable_name,omitempty"`
	Value        string `json:"value,omitempty"`
	OldValue     string `json:"old_value,omitempty"`
	// TimestampMS is milliseconds since the tracer started, zero if absent.
	TimestampMS int64 `json:"timestamp,omitempty"`
}

// Trace event kinds emitted by the tracer driver.
const (
	EventLine           = "line"
	EventCall           = "call"
	EventReturn         = "return"
	EventException      = "exception"
	EventVariableChange = "variable_change"
)

// ExecutionResult is the sandbox executor's output contract for one job
// attempt. Error is nil when the user code ran to completion.
type ExecutionResult struct {
	Output        string       `json:"output"`
	Error         *string      `json:"error"`
	Trace         []TraceEntry `json:"execution_trace"`
	ExecutionTime float64      `json:"execution_time"`
}

// Payload is the wire record carried by the queue. Immutable once published.
type Payload struct {
	JobID          string  `json:"jobId"`
	Code           string  `json:"code"`
	ExpectedOutput *string `json:"expectedOutput,omitempty"`
}

// Job is the persisted record, owned exclusively by the record store.
type Job struct {
	ID                  string       `json:"jobId"`
	Code                string       `json:"code"`
	Status              Status       `json:"status"`
	Output              *string      `json:"output"`
	Error               *string      `json:"error"`
	Trace               []TraceEntry `json:"executionTrace"`
	ExpectedOutput      *string      `json:"expectedOutput"`
	Verdict             Verdict      `json:"passFailStatus"`
	ExecutionTime       *float64     `json:"executionTime"`
	EmbeddingsGenerated bool         `json:"embeddingsGenerated"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

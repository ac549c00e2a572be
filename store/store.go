package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alapanbagchi/Code-Visualizer/job"
)

// ErrNotFound is returned when the target job identifier does not exist.
var ErrNotFound = errors.New("job not found")

const schema = `
create table if not exists jobs (
    id                   text primary key,
    code                 text not null,
    status               text not null,
    output               text,
    error                text,
    execution_trace      jsonb,
    expected_output      text,
    pass_fail_status     text not null default 'not_applicable',
    execution_time       double precision,
    embeddings_generated boolean not null default false,
    updated_at           timestamptz not null default now()
)`

// Store owns persisted job state.
type Store struct {
	db *pgxpool.Pool
}

// New returns a Store backed by the given pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the jobs table if it does not exist yet. Full
// migration tooling lives outside this service.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Create inserts the initial queued row for a newly submitted job.
func (s *Store) Create(ctx context.Context, id, code string, expectedOutput *string) error {
	_, err := s.db.Exec(ctx,
		`insert into jobs (id, code, status, expected_output, pass_fail_status)
		 values ($1, $2, $3, $4, $5)`,
		id, code, job.StatusQueued, expectedOutput, job.VerdictNotApplicable,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Get returns the full job record, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	var (
		j        job.Job
		traceRaw []byte
	)
	err := s.db.QueryRow(ctx,
		`select id, code, status, output, error, execution_trace, expected_output,
		        pass_fail_status, execution_time, embeddings_generated, updated_at
		   from jobs where id = $1`, id,
	).Scan(&j.ID, &j.Code, &j.Status, &j.Output, &j.Error, &traceRaw, &j.ExpectedOutput,
		&j.Verdict, &j.ExecutionTime, &j.EmbeddingsGenerated, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query job: %w", err)
	}

	if len(traceRaw) > 0 {
		if err := json.Unmarshal(traceRaw, &j.Trace); err != nil {
			return nil, fmt.Errorf("failed to decode stored trace: %w", err)
		}
	}

	return &j, nil
}

// Apply persists the present fields of the patch and refreshes updated_at.
// It returns false when the job does not exist; that is a signal, not a
// systemic failure.
func (s *Store) Apply(ctx context.Context, id string, p job.Patch) (bool, error) {
	setClause, args, err := buildUpdate(id, p)
	if err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx,
		fmt.Sprintf("update jobs set %s where id = $1", setClause), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// buildUpdate turns a patch into a SET clause with positional args. Arg $1 is
// always the job id; updated_at is always touched.
func buildUpdate(id string, p job.Patch) (string, []any, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Status.Valid {
		add("status", p.Status.Value)
	}
	if p.Output.Valid {
		add("output", p.Output.Value)
	}
	if p.Error.Valid {
		add("error", p.Error.Value)
	}
	if p.Trace.Valid {
		traceJSON, err := json.Marshal(p.Trace.Value)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode trace: %w", err)
		}
		add("execution_trace", traceJSON)
	}
	if p.Verdict.Valid {
		add("pass_fail_status", p.Verdict.Value)
	}
	if p.ExecutionTime.Valid {
		add("execution_time", p.ExecutionTime.Value)
	}
	if p.EmbeddingsGenerated.Valid {
		add("embeddings_generated", p.EmbeddingsGenerated.Value)
	}

	return strings.Join(sets, ", "), args, nil
}

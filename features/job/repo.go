package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const jobColumns = `id, job_type, status, attempts, payload, COALESCE(cause, ''), created_at, updated_at`

type PostgresRepo struct {
	db          *sql.DB
	maxAttempts int
}

func NewPostgresRepo(db *sql.DB, maxAttempts int) *PostgresRepo {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &PostgresRepo{db: db, maxAttempts: maxAttempts}
}

func (r *PostgresRepo) MaxAttempts() int { return r.maxAttempts }

func (r *PostgresRepo) Enqueue(ctx context.Context, jobType string, payload json.RawMessage) (*Job, error) {
	j := &Job{JobType: jobType, Payload: payload}
	query := `INSERT INTO jobs (job_type, payload) VALUES ($1, $2) RETURNING id, status, attempts, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, jobType, string(payload)).
		Scan(&j.ID, &j.Status, &j.Attempts, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return j, nil
}

// FetchBatch returns up to limit jobs that still have attempts left, oldest
// first, skipping the ids in exclude.
func (r *PostgresRepo) FetchBatch(ctx context.Context, limit int, exclude []string) ([]Job, error) {
	if exclude == nil {
		exclude = []string{}
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE attempts < $1 AND NOT (id = ANY($2)) ORDER BY created_at ASC LIMIT $3`
	jobs, err := r.query(ctx, query, r.maxAttempts, pq.Array(exclude), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	return jobs, nil
}

// CommitBatch deletes completed jobs and marks failures in a single transaction.
func (r *PostgresRepo) CommitBatch(ctx context.Context, completed []string, failed []Failure) error {
	if len(completed) == 0 && len(failed) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}

	if len(completed) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ANY($1)`, pq.Array(completed)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete completed jobs: %w", err)
		}
	}

	for _, f := range failed {
		query := `UPDATE jobs SET status = 'failed', attempts = attempts + 1, cause = $1, updated_at = NOW() WHERE id = $2`
		if _, err := tx.ExecContext(ctx, query, f.Cause, f.ID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mark job %s failed: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context, f Filter) (int, error) {
	where, args := r.where(f)
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Job, error) {
	where, args := r.where(f)
	jobs, err := r.query(ctx, `SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY updated_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id).
		Scan(&j.ID, &j.JobType, &j.Status, &j.Attempts, &payload, &j.Cause, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Payload = json.RawMessage(payload)
	return j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return expectRow(res)
}

// PurgeDead deletes jobs that exhausted their attempts.
func (r *PostgresRepo) PurgeDead(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE attempts >= $1`, r.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("purge dead jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge dead jobs: %w", err)
	}
	return n, nil
}

// Reset puts a job back in the queue with a fresh attempt budget.
func (r *PostgresRepo) Reset(ctx context.Context, id string) error {
	query := `UPDATE jobs SET status = 'queued', attempts = 0, cause = NULL, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reset job: %w", err)
	}
	return expectRow(res)
}

func (r *PostgresRepo) query(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var payload []byte
		if err := rows.Scan(&j.ID, &j.JobType, &j.Status, &j.Attempts, &payload, &j.Cause, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Payload = json.RawMessage(payload)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) where(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Dead != nil {
		args = append(args, r.maxAttempts)
		op := "<"
		if *f.Dead {
			op = ">="
		}
		conds = append(conds, fmt.Sprintf("attempts %s $%d", op, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

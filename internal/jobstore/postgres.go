package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/DocChat/internal/model"
)

// PostgresStore keeps jobs in the jobs table created by database.EnsureSchema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store on an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectJob = `
	SELECT id, status, document_ref, document_name, result, created_at, updated_at, started_at
	FROM jobs`

// Create inserts a new record.
func (s *PostgresStore) Create(ctx context.Context, job *model.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, status, document_ref, document_name, result, created_at, updated_at, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, job.ID, job.Status, job.DocumentRef, job.DocumentName, nullable(job.Result), job.CreatedAt, job.UpdatedAt, job.StartedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get returns a job by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, selectJob+` WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Update locks the row, applies fn and writes the result in one transaction.
func (s *PostgresStore) Update(ctx context.Context, id string, fn Mutation) (*model.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx, selectJob+` WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	job.ID = id
	job.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET status=$1, document_ref=$2, document_name=$3, result=$4, updated_at=$5, started_at=$6
		WHERE id=$7
	`, job.Status, job.DocumentRef, job.DocumentName, nullable(job.Result), job.UpdatedAt, job.StartedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit job update: %w", err)
	}
	return job, nil
}

// List returns every job, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*model.Job, error) {
	rows, err := s.pool.Query(ctx, selectJob+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	out := make([]*model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

// Delete removes the record.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job     model.Job
		result  sql.NullString
		started sql.NullTime
	)
	err := row.Scan(&job.ID, &job.Status, &job.DocumentRef, &job.DocumentName, &result, &job.CreatedAt, &job.UpdatedAt, &started)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	if result.Valid {
		job.Result = result.String
	}
	if started.Valid {
		ts := started.Time
		job.StartedAt = &ts
	}
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

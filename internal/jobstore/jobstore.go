// Package jobstore persists Job records with single-writer-per-job
// discipline: WithLease holds a Postgres row lock for the duration of the
// caller's transition function, so two orchestrator workers racing on the
// same job never interleave writes.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/sqlinline"
)

// Store is a pgx/v5-backed domain.JobStore. Non-transactional calls run
// through SQLRunner for marker-comment logging; WithLease needs a real
// transaction, so it issues its claim and commit queries on the pgx.Tx
// directly, without SQLRunner's logging; the "--sql" marker line still
// travels with each query as an ordinary SQL comment.
type Store struct {
	pool   *pgxpool.Pool
	runner *infra.SQLRunner
}

func New(pool *pgxpool.Pool, runner *infra.SQLRunner) *Store {
	return &Store{pool: pool, runner: runner}
}

func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	shotsJSON, err := json.Marshal(job.Shots)
	if err != nil {
		return fmt.Errorf("marshal shots: %w", err)
	}
	_, err = s.runner.Exec(ctx, sqlinline.QJobInsert,
		job.ID, job.ProjectID, job.OwnerID, job.AspectRatio, string(job.Phase), job.Progress, shotsJSON,
		nullableString(job.FinalArtifactURL), nullableString(job.ErrorMessage), job.PollAttempts,
		nullableString(job.CompileRequestID), job.CancelRequested, job.CompileProvider, job.CompileRetryCount,
	)
	return err
}

func (s *Store) Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	row := s.runner.QueryRow(ctx, sqlinline.QJobGet, jobID, ownerID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// WithLease acquires the write lease for (ownerID, jobID) as a Postgres row
// lock held for the lifetime of the transaction. The claim and commit
// queries run directly against the pgx.Tx rather than through SQLRunner,
// since SQLRunner only wraps a *pgxpool.Pool and pgx doesn't let a
// transaction be multiplexed across it.
func (s *Store) WithLease(ctx context.Context, ownerID, jobID string, fn func(job *domain.Job) (*domain.Job, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	row := tx.QueryRow(ctx, sqlinline.QJobClaimLease, jobID, ownerID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrLeaseHeld
	}
	if err != nil {
		return err
	}

	updated, err := fn(job)
	if err != nil {
		return err
	}
	if updated == nil {
		return tx.Commit(ctx)
	}

	shotsJSON, err := json.Marshal(updated.Shots)
	if err != nil {
		return fmt.Errorf("marshal shots: %w", err)
	}
	_, err = tx.Exec(ctx, sqlinline.QJobCommit,
		updated.ID, updated.OwnerID, string(updated.Phase), updated.Progress, shotsJSON,
		nullableString(updated.FinalArtifactURL), nullableString(updated.ErrorMessage), updated.PollAttempts,
		nullableString(updated.CompileRequestID), updated.CompileRetryCount,
	)
	if err != nil {
		return fmt.Errorf("commit job transition: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) ListResumable(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.runner.Query(ctx, sqlinline.QJobListResumable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                            domain.Job
		phase                          string
		shotsJSON                      []byte
		finalArtifactURL, errorMessage *string
		compileRequestID               *string
		createdAt, updatedAt           time.Time
	)
	err := row.Scan(
		&job.ID, &job.ProjectID, &job.OwnerID, &job.AspectRatio, &phase, &job.Progress, &shotsJSON,
		&finalArtifactURL, &errorMessage, &job.PollAttempts, &compileRequestID,
		&job.CancelRequested, &job.CompileProvider, &job.CompileRetryCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Phase = domain.JobPhase(phase)
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt
	if finalArtifactURL != nil {
		job.FinalArtifactURL = *finalArtifactURL
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if compileRequestID != nil {
		job.CompileRequestID = *compileRequestID
	}
	if len(shotsJSON) > 0 {
		if err := json.Unmarshal(shotsJSON, &job.Shots); err != nil {
			return nil, fmt.Errorf("unmarshal shots: %w", err)
		}
	}
	return &job, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

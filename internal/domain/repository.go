package domain

import "context"

// ProjectRepository persists Project records, namespaced by owner.
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, ownerID, projectID string) (*Project, error)
	UpdatePlan(ctx context.Context, ownerID, projectID string, plan *Plan) error
	Approve(ctx context.Context, ownerID, projectID string) error
	SetActiveJob(ctx context.Context, ownerID, projectID, jobID string) error
}

// JobStore persists Job records with single-writer discipline (spec.md §4.3).
// Implementations realize the write lease as a per-key actor, a row lock
// with a lease TTL, or an equivalent serialization primitive.
type JobStore interface {
	// Create atomically inserts a new Job in PhasePending.
	Create(ctx context.Context, job *Job) error

	// Get returns a read-only snapshot consistent with the latest committed
	// transition. It does not acquire the write lease.
	Get(ctx context.Context, ownerID, jobID string) (*Job, error)

	// WithLease acquires the write lease for (ownerID, jobID), invokes fn with
	// a fresh snapshot, and — if fn returns a non-nil *Job — commits the
	// tuple (phase, progress, shots, finalArtifactUrl, errorMessage,
	// updatedAt) atomically before releasing the lease. If the lease is held
	// by another worker, WithLease returns ErrLeaseHeld without calling fn.
	WithLease(ctx context.Context, ownerID, jobID string, fn func(job *Job) (*Job, error)) error

	// ListResumable returns every job not in a terminal phase, for process-
	// start recovery. Listing jobs by owner is explicitly not required by
	// spec.md §4.3; this is an operational recovery path, not a query API.
	ListResumable(ctx context.Context) ([]Job, error)
}

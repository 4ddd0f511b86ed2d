package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/domain"
)

// fakeJobStore is a single-job, in-memory domain.JobStore with a lease flag,
// enough to exercise WithLease/ErrLeaseHeld without a database.
type fakeJobStore struct {
	job        *domain.Job
	leaseHeld  bool
	leaseCalls int
}

func (f *fakeJobStore) Create(ctx context.Context, job *domain.Job) error {
	f.job = job
	return nil
}

func (f *fakeJobStore) Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	if f.job == nil || f.job.ID != jobID {
		return nil, domain.ErrNotFound
	}
	return f.job, nil
}

func (f *fakeJobStore) WithLease(ctx context.Context, ownerID, jobID string, fn func(job *domain.Job) (*domain.Job, error)) error {
	f.leaseCalls++
	if f.leaseHeld {
		return domain.ErrLeaseHeld
	}
	if f.job == nil || f.job.ID != jobID || f.job.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	snapshot := *f.job
	updated, err := fn(&snapshot)
	if err != nil {
		return err
	}
	if updated != nil {
		f.job = updated
	}
	return nil
}

func (f *fakeJobStore) ListResumable(ctx context.Context) ([]domain.Job, error) {
	if f.job == nil || f.job.Phase.IsTerminal() {
		return nil, nil
	}
	return []domain.Job{*f.job}, nil
}

// fakeScheduler records arm/disarm calls instead of touching Redis.
type fakeScheduler struct {
	armed   map[string]time.Time
	disarms int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{armed: map[string]time.Time{}}
}

func (f *fakeScheduler) ArmAt(ctx context.Context, key string, at time.Time) error {
	f.armed[key] = at
	return nil
}

func (f *fakeScheduler) Disarm(ctx context.Context, key string) error {
	f.disarms++
	delete(f.armed, key)
	return nil
}

// fakeLimiter allows every call when allow is set, as testOrchestrator
// does, so rate limiting never interferes with tests that aren't
// specifically about it.
type fakeLimiter struct{ allow bool }

func (f *fakeLimiter) Allow(ctx context.Context, ownerID string, capability domain.Capability) (bool, float64, error) {
	if f.allow {
		return true, 1, nil
	}
	return false, 0, nil
}

// fakeCredentials serves a fixed credential per capability; a missing entry
// yields (nil, nil), matching domain.CredentialLookup's no-row contract.
type fakeCredentials struct {
	byCapability map[domain.Capability]*domain.Credential
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{byCapability: map[domain.Capability]*domain.Credential{}}
}

func (f *fakeCredentials) Lookup(ownerID string, capability domain.Capability) (*domain.Credential, error) {
	return f.byCapability[capability], nil
}

// fakeUploader never gets exercised by these tests (every adapter in play
// returns a URL directly) but is required to satisfy storage.Uploader.
type fakeUploader struct{}

func (fakeUploader) Write(ctx context.Context, key string, data []byte) (string, error) {
	return "file:///" + key, nil
}

func testOrchestrator(jobs domain.JobStore, creds domain.CredentialLookup) *Orchestrator {
	return &Orchestrator{
		jobs:        jobs,
		credentials: creds,
		scheduler:   newFakeScheduler(),
		limiter:     &fakeLimiter{allow: true},
		uploader:    fakeUploader{},
		cfg: Config{
			PollInterval:         time.Millisecond,
			VideoPollCeiling:     3,
			CompilePollCeiling:   3,
			RetryBudget:          2,
			BackoffInitial:       time.Millisecond,
			BackoffMax:           time.Millisecond,
			BackoffJitterPercent: 0,
		},
		logger: zerolog.Nop(),
	}
}

func newTestJob(id, owner string, shots int) *domain.Job {
	runtime := make([]domain.ShotRuntime, shots)
	for i := range runtime {
		runtime[i] = domain.ShotRuntime{SceneID: 1, ShotID: i + 1, Phase: domain.ShotPending, Duration: 5}
	}
	return &domain.Job{
		ID:          id,
		ProjectID:   "proj-1",
		OwnerID:     owner,
		AspectRatio: "16:9",
		Phase:       domain.PhasePending,
		Shots:       runtime,
	}
}

// TestResumeHonorsErrLeaseHeld confirms Resume treats ErrLeaseHeld as
// "another worker owns this, quietly exit" rather than surfacing an error.
func TestResumeHonorsErrLeaseHeld(t *testing.T) {
	store := &fakeJobStore{job: newTestJob("job-1", "owner-1", 1), leaseHeld: true}
	o := testOrchestrator(store, newFakeCredentials())

	err := o.Resume(context.Background(), "owner-1", "job-1")
	require.NoError(t, err, "Resume with held lease should return nil")
	assert.Equal(t, 1, store.leaseCalls, "expected exactly one lease attempt")
	assert.Equal(t, domain.PhasePending, store.job.Phase, "job phase should be untouched when the lease is held")
}

// TestTransitionIsPhaseMonotonic drives the Pending -> GeneratingImages
// transition and checks that it strictly advances the phase, never
// regressing or repeating, per the ordering domain.JobPhase.Before encodes.
func TestTransitionIsPhaseMonotonic(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 1)
	o := testOrchestrator(&fakeJobStore{job: job}, newFakeCredentials())

	// Pending -> GeneratingImages is pure bookkeeping and needs no
	// credential lookup.
	prev := job.Phase
	updated, sig, err := o.transition(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, wakeContinue, sig)
	assert.True(t, prev.Before(updated.Phase), "phase did not advance: %q -> %q", prev, updated.Phase)
	assert.Equal(t, domain.PhaseGeneratingImages, updated.Phase)
}

// TestTransitionTerminalIsNoOp checks that calling transition on a job
// already in a terminal phase returns wakeDone without mutating the job,
// the resume-after-completion idempotence spec.md §4.3 requires.
func TestTransitionTerminalIsNoOp(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 1)
	job.Phase = domain.PhaseComplete
	job.Progress = 100
	o := testOrchestrator(&fakeJobStore{job: job}, newFakeCredentials())

	updated, sig, err := o.transition(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, wakeDone, sig, "expected wakeDone for a terminal job")
	assert.Nil(t, updated, "expected nil job (no commit) for a terminal no-op")
}

// TestTransitionCancelRequestedFails checks a cancellation request observed
// at the next wake-up moves the job straight to Failed with a Cancelled
// message and disarms any pending timer.
func TestTransitionCancelRequestedFails(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 1)
	job.Phase = domain.PhaseGeneratingVideos
	job.CancelRequested = true
	sched := newFakeScheduler()
	o := testOrchestrator(&fakeJobStore{job: job}, newFakeCredentials())
	o.scheduler = sched

	updated, sig, err := o.transition(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, wakeDone, sig)
	assert.Equal(t, domain.PhaseFailed, updated.Phase)
	assert.Equal(t, (&domain.CancelledError{}).Error(), updated.ErrorMessage)
	assert.Equal(t, 1, sched.disarms, "expected one disarm call")
}

// TestFinishImagePhasePartialSuccess checks the some-shots-failed case
// proceeds to ImagesComplete using whichever shots succeeded.
func TestFinishImagePhasePartialSuccess(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 2)
	job.Phase = domain.PhaseGeneratingImages
	job.Shots[0].StartImageURL = "file:///a-start.png"
	job.Shots[0].EndImageURL = "file:///a-end.png"
	job.Shots[1].Phase = domain.ShotFailed
	job.Shots[1].ErrorMessage = "permanent failure"

	o := testOrchestrator(&fakeJobStore{job: job}, newFakeCredentials())

	updated, sig, err := o.finishImagePhase(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, wakeContinue, sig, "expected wakeContinue (job still progressing)")
	assert.Equal(t, domain.PhaseImagesComplete, updated.Phase)
	assert.True(t, updated.Progress > 0 && updated.Progress < 100, "expected progress strictly between 0 and 100, got %d", updated.Progress)
}

// TestFinishImagePhaseAllFailed checks the all-shots-failed case fails the
// whole job rather than proceeding with zero usable shots.
func TestFinishImagePhaseAllFailed(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 2)
	job.Phase = domain.PhaseGeneratingImages
	job.Shots[0].Phase = domain.ShotFailed
	job.Shots[1].Phase = domain.ShotFailed

	sched := newFakeScheduler()
	o := testOrchestrator(&fakeJobStore{job: job}, newFakeCredentials())
	o.scheduler = sched

	updated, sig, err := o.finishImagePhase(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, wakeDone, sig)
	assert.Equal(t, domain.PhaseFailed, updated.Phase, "expected Failed when every shot failed")
	assert.Equal(t, 1, sched.disarms, "expected failJob to disarm the pending timer")
}

// TestFinishVideoPhasePartialSuccess mirrors the image-phase partial-success
// test for the video phase's own finish function.
func TestFinishVideoPhasePartialSuccess(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 2)
	job.Phase = domain.PhaseGeneratingVideos
	job.Shots[0].Phase = domain.ShotComplete
	job.Shots[0].VideoURL = "file:///a.mp4"
	job.Shots[1].Phase = domain.ShotFailed

	o := testOrchestrator(&fakeJobStore{job: job}, newFakeCredentials())

	updated, sig, err := o.finishVideoPhase(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, wakeContinue, sig)
	assert.Equal(t, domain.PhaseVideosComplete, updated.Phase)
}

// TestStepImagesFailsJobWithoutCredential checks a missing image credential
// fails the whole job rather than panicking or silently stalling, since
// every shot in the phase shares the same owner+capability lookup.
func TestStepImagesFailsJobWithoutCredential(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 1)
	job.Phase = domain.PhaseGeneratingImages
	sched := newFakeScheduler()
	o := testOrchestrator(&fakeJobStore{job: job}, newFakeCredentials())
	o.scheduler = sched

	updated, sig, err := o.stepImages(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, wakeDone, sig)
	assert.Equal(t, domain.PhaseFailed, updated.Phase, "expected Failed without an image credential")
	want := (&domain.NoCredentialsError{Capability: string(domain.CapabilityImage)}).Error()
	assert.Equal(t, want, updated.ErrorMessage)
}

// TestProgressNeverReports100BeforeComplete checks RecomputeProgress caps
// non-terminal progress at 99 even when every tracked unit is done, since
// only the Complete phase itself may report 100.
func TestProgressNeverReports100BeforeComplete(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 1)
	job.Phase = domain.PhaseVideosComplete
	job.Shots[0].StartImageURL = "file:///a-start.png"
	job.Shots[0].EndImageURL = "file:///a-end.png"
	job.Shots[0].Phase = domain.ShotComplete
	job.CompileProvider = "ffmpeg" // compile unit still outstanding

	job.RecomputeProgress()
	assert.True(t, job.Progress >= 0 && job.Progress <= 99, "expected progress in [0,99] before Complete, got %d", job.Progress)

	job.Phase = domain.PhaseComplete
	job.RecomputeProgress()
	assert.Equal(t, 100, job.Progress, "expected exactly 100 once Complete")
}

// TestResumeIdempotentAfterTerminal checks resuming a job already in a
// terminal phase is a safe no-op: Resume returns nil and the job is
// untouched, the behavior cmd/orchestrator's process-start recovery relies
// on when it blindly resumes every job ListResumable returns.
func TestResumeIdempotentAfterTerminal(t *testing.T) {
	job := newTestJob("job-1", "owner-1", 1)
	job.Phase = domain.PhaseComplete
	job.Progress = 100
	store := &fakeJobStore{job: job}
	o := testOrchestrator(store, newFakeCredentials())

	err := o.Resume(context.Background(), "owner-1", "job-1")
	require.NoError(t, err, "Resume on a terminal job should be a no-op")
	assert.Equal(t, domain.PhaseComplete, store.job.Phase, "terminal job should be untouched by Resume")
	assert.Equal(t, 100, store.job.Progress, "terminal job should be untouched by Resume")
}

// Package orchestrator implements the durable, resumable state machine that
// drives a Job from Pending through image generation, video generation, and
// optional compilation to Complete or Failed. It never blocks a goroutine on
// a sleep: every wait becomes an armed Scheduler timer, and every wake-up
// re-reads the Job from the Job Store before acting, so a crash between any
// two external calls loses nothing but the in-flight call itself.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clipforge/internal/domain"
	"clipforge/internal/providers"
	"clipforge/internal/ratelimit"
	"clipforge/internal/scheduler"
	"clipforge/internal/storage"
)

// Config collects the tunables spec.md §9 leaves open as compiled-in
// defaults, overridable so tests can shrink them.
type Config struct {
	PollInterval         time.Duration
	VideoPollCeiling     int
	CompilePollCeiling   int
	RetryBudget          int
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	BackoffJitterPercent float64
	FFmpeg               providers.FFmpegOptions
}

// jobScheduler is the subset of *scheduler.Scheduler the Orchestrator
// drives, narrowed to an interface so tests can substitute a fake instead
// of a live Redis connection.
type jobScheduler interface {
	ArmAt(ctx context.Context, key string, absoluteTime time.Time) error
	Disarm(ctx context.Context, key string) error
}

// rateLimiter is the subset of *ratelimit.TokenBucket the Orchestrator
// checks before each outbound call.
type rateLimiter interface {
	Allow(ctx context.Context, ownerID string, capability domain.Capability) (bool, float64, error)
}

// Orchestrator owns zero in-memory job state between wake-ups: everything it
// needs to resume lives in the Job record or is re-derived (credentials,
// provider adapters) on entry to this call.
type Orchestrator struct {
	jobs        domain.JobStore
	credentials domain.CredentialLookup
	scheduler   jobScheduler
	limiter     rateLimiter
	uploader    storage.Uploader
	cfg         Config
	logger      zerolog.Logger
}

func New(jobs domain.JobStore, credentials domain.CredentialLookup, sched *scheduler.Scheduler, limiter *ratelimit.TokenBucket, uploader storage.Uploader, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:        jobs,
		credentials: credentials,
		scheduler:   sched,
		limiter:     limiter,
		uploader:    uploader,
		cfg:         cfg,
		logger:      logger,
	}
}

// wakeSignal tells Resume's driving loop what to do after one step.
type wakeSignal int

const (
	// wakeContinue means more synchronous work is ready; call step again
	// immediately without waiting for a Scheduler firing.
	wakeContinue wakeSignal = iota
	// wakeArmed means a Scheduler timer was armed; return and wait.
	wakeArmed
	// wakeDone means the job reached a terminal phase.
	wakeDone
)

// Start is invoked once after Plan approval to begin generation.
func (o *Orchestrator) Start(ctx context.Context, ownerID, jobID string) error {
	return o.Resume(ctx, ownerID, jobID)
}

// Resume is invoked by the Scheduler on a timer firing and on process start
// for every job not in a terminal phase. It drives the job forward through
// as many synchronous steps as are ready, then either arms the next timer or
// observes the job has finished.
func (o *Orchestrator) Resume(ctx context.Context, ownerID, jobID string) error {
	for {
		sig, err := o.step(ctx, ownerID, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrLeaseHeld) {
				return nil
			}
			return err
		}
		if sig != wakeContinue {
			return nil
		}
	}
}

// step performs exactly one unit of work under the job's write lease: one
// external call plus the commit that follows it, or a pure phase-transition
// bookkeeping update with no external call at all.
func (o *Orchestrator) step(ctx context.Context, ownerID, jobID string) (wakeSignal, error) {
	var sig wakeSignal
	err := o.jobs.WithLease(ctx, ownerID, jobID, func(job *domain.Job) (*domain.Job, error) {
		updated, next, ferr := o.transition(ctx, job)
		sig = next
		return updated, ferr
	})
	return sig, err
}

func (o *Orchestrator) transition(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	if job.Phase.IsTerminal() {
		return nil, wakeDone, nil
	}
	if job.CancelRequested {
		o.logTransition(job, domain.PhaseFailed)
		job.Phase = domain.PhaseFailed
		job.ErrorMessage = (&domain.CancelledError{}).Error()
		job.RecomputeProgress()
		_ = o.scheduler.Disarm(ctx, armKey(job.OwnerID, job.ID))
		return job, wakeDone, nil
	}

	switch job.Phase {
	case domain.PhasePending:
		o.logTransition(job, domain.PhaseGeneratingImages)
		job.Phase = domain.PhaseGeneratingImages
		return job, wakeContinue, nil

	case domain.PhaseGeneratingImages:
		return o.stepImages(ctx, job)

	case domain.PhaseImagesComplete:
		o.logTransition(job, domain.PhaseGeneratingVideos)
		job.Phase = domain.PhaseGeneratingVideos
		job.PollAttempts = 0
		return job, wakeContinue, nil

	case domain.PhaseGeneratingVideos:
		return o.stepVideos(ctx, job)

	case domain.PhaseVideosComplete:
		return o.enterCompileOrComplete(ctx, job)

	case domain.PhaseCompiling:
		return o.stepCompile(ctx, job)

	default:
		return nil, wakeDone, fmt.Errorf("orchestrator: job %s in unknown phase %q", job.ID, job.Phase)
	}
}

func (o *Orchestrator) enterCompileOrComplete(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	if job.CompileProvider == "" || job.CompileProvider == "none" {
		o.logTransition(job, domain.PhaseComplete)
		job.Phase = domain.PhaseComplete
		job.RecomputeProgress()
		return job, wakeDone, nil
	}
	o.logTransition(job, domain.PhaseCompiling)
	job.Phase = domain.PhaseCompiling
	job.PollAttempts = 0
	job.CompileRetryCount = 0
	return job, wakeContinue, nil
}

func (o *Orchestrator) logTransition(job *domain.Job, next domain.JobPhase) {
	o.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", job.OwnerID).
		Str("from_phase", string(job.Phase)).
		Str("to_phase", string(next)).
		Msg("orchestrator: phase transition")
}

func (o *Orchestrator) logProviderFailure(job *domain.Job, capability string, err error) {
	ev := o.logger.Warn().Str("job_id", job.ID).Str("capability", capability)
	if pe, ok := domain.AsProviderError(err); ok {
		ev = ev.Bool("retryable", pe.Retryable).Int("http_status", pe.HTTPStatus)
	}
	ev.Err(err).Msg("orchestrator: provider call failed")
}

// armKey encodes the composite id the Scheduler tracks, since a Scheduler
// timer only knows a string member and Job Store lookups are always
// namespaced by owner. ClaimDue callers split it back apart with splitArmKey.
func armKey(ownerID, jobID string) string {
	return ownerID + "|" + jobID
}

func splitArmKey(key string) (ownerID, jobID string, ok bool) {
	idx := strings.IndexByte(key, '|')
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// ResumeArmKey resumes the job encoded by a Scheduler arm key, as returned
// by Scheduler.ClaimDue. This is the entry point a process-level poll loop
// uses so it never needs to know the arm key's internal encoding.
func (o *Orchestrator) ResumeArmKey(ctx context.Context, key string) error {
	ownerID, jobID, ok := splitArmKey(key)
	if !ok {
		return fmt.Errorf("orchestrator: malformed arm key %q", key)
	}
	return o.Resume(ctx, ownerID, jobID)
}

// backoffWithJitter computes a retry delay: exponential growth from base,
// capped at max, jittered by ±jitterPercent so many jobs retrying the same
// failing provider don't all wake up in lockstep.
func backoffWithJitter(base, max time.Duration, attempt int, jitterPercent float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	wait := base << (attempt - 1)
	if wait <= 0 || wait > max {
		wait = max
	}
	if jitterPercent <= 0 {
		return wait
	}
	spread := int64(float64(wait) * jitterPercent)
	if spread <= 0 {
		return wait
	}
	delta := rand.Int63n(2*spread) - spread
	return wait + time.Duration(delta)
}

// classify reports whether err should be retried within the current phase,
// per the TransientProviderError/PermanentProviderError split in spec.md §7.
func classify(err error) bool {
	if pe, ok := domain.AsProviderError(err); ok {
		return pe.Retryable
	}
	return false
}

// checkRateLimit gates an outbound call behind the owner's per-capability
// token bucket, surfacing exhaustion as the same retryable shape a 429
// response would produce.
func (o *Orchestrator) checkRateLimit(ctx context.Context, ownerID string, capability domain.Capability) error {
	if o.limiter == nil {
		return nil
	}
	allowed, _, err := o.limiter.Allow(ctx, ownerID, capability)
	if err != nil {
		return err
	}
	if !allowed {
		return &domain.ProviderError{Retryable: true, Message: "rate limit exceeded", Capability: string(capability)}
	}
	return nil
}

// failJob marks the job Failed with err's message and disarms any pending
// wake-up, used for whole-job failures (missing credentials, adapter
// construction errors, timeouts, cancellation) as opposed to a per-shot
// failure that still lets sibling shots proceed.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, err error) (*domain.Job, wakeSignal, error) {
	o.logTransition(job, domain.PhaseFailed)
	job.Phase = domain.PhaseFailed
	job.ErrorMessage = err.Error()
	_ = o.scheduler.Disarm(ctx, armKey(job.OwnerID, job.ID))
	return job, wakeDone, nil
}

// retryShot applies the transient/permanent split of spec.md §7 to a
// single shot's failed call: retryable errors within the retry budget arm a
// backoff timer and stop the synchronous loop; everything else marks the
// shot Failed and returns wakeContinue so the next step moves straight on
// to the next shot, since a per-shot failure never aborts sibling shots on
// its own.
func (o *Orchestrator) retryShot(ctx context.Context, job *domain.Job, shot *domain.ShotRuntime, capability domain.Capability, err error) (*domain.Job, wakeSignal, error) {
	o.logProviderFailure(job, string(capability), err)
	if classify(err) && shot.RetryCount < o.cfg.RetryBudget {
		shot.RetryCount++
		wait := backoffWithJitter(o.cfg.BackoffInitial, o.cfg.BackoffMax, shot.RetryCount, o.cfg.BackoffJitterPercent)
		if err := o.scheduler.ArmAt(ctx, armKey(job.OwnerID, job.ID), time.Now().Add(wait)); err != nil {
			return nil, wakeDone, fmt.Errorf("orchestrator: arm retry timer: %w", err)
		}
		return job, wakeArmed, nil
	}
	shot.Phase = domain.ShotFailed
	shot.ErrorMessage = err.Error()
	shot.RetryCount = 0
	job.RecomputeProgress()
	return job, wakeContinue, nil
}

// persistAsset returns a durable URL for a provider result: adapters that
// already produced one (the synthetic fallback, or a vendor that hands back
// a hosted URL directly) are passed through; adapters that only returned raw
// bytes are written through the Uploader to get one.
func (o *Orchestrator) persistAsset(ctx context.Context, kind, url, seed string, data []byte) (string, error) {
	if url != "" {
		return url, nil
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%s result carries neither url nor data", kind)
	}
	key := fmt.Sprintf("%s/%s.png", kind, seed)
	return o.uploader.Write(ctx, key, data)
}

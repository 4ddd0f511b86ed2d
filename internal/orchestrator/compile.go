package orchestrator

import (
	"context"
	"fmt"
	"time"

	"clipforge/internal/domain"
	"clipforge/internal/providers"
	"clipforge/internal/providers/compile"
)

// stepCompile submits the stitch request once, then polls it. A provider
// tagged "none" never reaches PhaseCompiling — enterCompileOrComplete skips
// straight to Complete — but if an admin retags a credential to "none"
// mid-job, a nil Compiler here still degrades safely to a job failure
// rather than a nil dereference.
func (o *Orchestrator) stepCompile(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	if job.CompileRequestID == "" {
		return o.submitCompile(ctx, job)
	}
	return o.pollCompile(ctx, job)
}

func (o *Orchestrator) submitCompile(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	cred, err := o.credentials.Lookup(job.OwnerID, domain.CapabilityCompile)
	if err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: lookup compile credentials: %w", err)
	}
	if cred == nil {
		return o.failJob(ctx, job, &domain.NoCredentialsError{Capability: string(domain.CapabilityCompile)})
	}
	compiler, err := providers.Compilation(*cred, o.cfg.FFmpeg, o.logger)
	if err != nil {
		return o.failJob(ctx, job, err)
	}
	if compiler == nil {
		return o.failJob(ctx, job, fmt.Errorf("compile credential retagged to \"none\" mid-job"))
	}

	clipURLs := orderedClipURLs(job)
	if len(clipURLs) == 0 {
		return o.failJob(ctx, job, fmt.Errorf("no completed shots available to compile"))
	}

	callCtx, cancel := context.WithTimeout(ctx, providers.HTTPClientTimeout)
	handle, err := compiler.Submit(callCtx, clipURLs, compile.Options{AspectRatio: job.AspectRatio})
	cancel()
	if err != nil {
		return o.retryCompile(ctx, job, err)
	}

	job.CompileRequestID = handle
	job.CompileRetryCount = 0
	return job, wakeContinue, nil
}

func (o *Orchestrator) pollCompile(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	cred, err := o.credentials.Lookup(job.OwnerID, domain.CapabilityCompile)
	if err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: lookup compile credentials: %w", err)
	}
	if cred == nil {
		return o.failJob(ctx, job, &domain.NoCredentialsError{Capability: string(domain.CapabilityCompile)})
	}
	compiler, err := providers.Compilation(*cred, o.cfg.FFmpeg, o.logger)
	if err != nil {
		return o.failJob(ctx, job, err)
	}
	if compiler == nil {
		return o.failJob(ctx, job, fmt.Errorf("compile credential retagged to \"none\" mid-job"))
	}

	callCtx, cancel := context.WithTimeout(ctx, providers.HTTPClientTimeout)
	result, err := compiler.Poll(callCtx, job.CompileRequestID)
	cancel()
	if err != nil {
		o.logProviderFailure(job, string(domain.CapabilityCompile), err)
		if err := o.scheduler.ArmAt(ctx, armKey(job.OwnerID, job.ID), time.Now().Add(o.cfg.PollInterval)); err != nil {
			return nil, wakeDone, fmt.Errorf("orchestrator: arm poll timer: %w", err)
		}
		return job, wakeArmed, nil
	}

	job.PollAttempts++

	switch result.Status {
	case compile.StatusDone:
		job.FinalArtifactURL = result.URL
		o.logTransition(job, domain.PhaseComplete)
		job.Phase = domain.PhaseComplete
		job.RecomputeProgress()
		_ = o.scheduler.Disarm(ctx, armKey(job.OwnerID, job.ID))
		return job, wakeDone, nil
	case compile.StatusFailed:
		return o.failJob(ctx, job, fmt.Errorf("compile failed: %s", result.Error))
	}

	if job.PollAttempts > o.cfg.CompilePollCeiling {
		return o.failJob(ctx, job, &domain.TimeoutError{Phase: domain.PhaseCompiling})
	}
	if err := o.scheduler.ArmAt(ctx, armKey(job.OwnerID, job.ID), time.Now().Add(o.cfg.PollInterval)); err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: arm poll timer: %w", err)
	}
	return job, wakeArmed, nil
}

func (o *Orchestrator) retryCompile(ctx context.Context, job *domain.Job, err error) (*domain.Job, wakeSignal, error) {
	o.logProviderFailure(job, string(domain.CapabilityCompile), err)
	if classify(err) && job.CompileRetryCount < o.cfg.RetryBudget {
		job.CompileRetryCount++
		wait := backoffWithJitter(o.cfg.BackoffInitial, o.cfg.BackoffMax, job.CompileRetryCount, o.cfg.BackoffJitterPercent)
		if err := o.scheduler.ArmAt(ctx, armKey(job.OwnerID, job.ID), time.Now().Add(wait)); err != nil {
			return nil, wakeDone, fmt.Errorf("orchestrator: arm retry timer: %w", err)
		}
		return job, wakeArmed, nil
	}
	return o.failJob(ctx, job, err)
}

// orderedClipURLs gathers completed shot videos in scene-then-shot order,
// the same declared order shots were submitted in.
func orderedClipURLs(job *domain.Job) []string {
	var urls []string
	for i := range job.Shots {
		if job.Shots[i].Phase == domain.ShotComplete && job.Shots[i].VideoURL != "" {
			urls = append(urls, job.Shots[i].VideoURL)
		}
	}
	return urls
}

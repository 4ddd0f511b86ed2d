package orchestrator

import (
	"context"
	"fmt"
	"time"

	"clipforge/internal/domain"
	"clipforge/internal/providers"
	"clipforge/internal/providers/video"
)

// stepVideos submits the next eligible shot's motion request, or, once
// every eligible shot has a handle, runs one poll tick over every shot
// still polling. Submission is one external call per step like the image
// phase; a poll tick, since its calls are read-only and carry no dedup
// concern, polls every outstanding shot within the same step so the job
// doesn't need N separate wake-ups to clear N concurrent polls.
func (o *Orchestrator) stepVideos(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	if shot := nextVideoSubmission(job); shot != nil {
		return o.submitVideo(ctx, job, shot)
	}
	if anyShotPolling(job) {
		return o.pollVideos(ctx, job)
	}
	return o.finishVideoPhase(ctx, job)
}

func (o *Orchestrator) submitVideo(ctx context.Context, job *domain.Job, shot *domain.ShotRuntime) (*domain.Job, wakeSignal, error) {
	cred, err := o.credentials.Lookup(job.OwnerID, domain.CapabilityVideo)
	if err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: lookup video credentials: %w", err)
	}
	if cred == nil {
		return o.failJob(ctx, job, &domain.NoCredentialsError{Capability: string(domain.CapabilityVideo)})
	}
	if err := o.checkRateLimit(ctx, job.OwnerID, domain.CapabilityVideo); err != nil {
		return o.retryShot(ctx, job, shot, domain.CapabilityVideo, err)
	}

	synth, err := providers.VideoSynthesis(*cred, o.logger)
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	shot.Phase = domain.ShotSubmittingVideo
	endURL := shot.EndImageURL
	if !synth.SupportsEndFrame() {
		endURL = ""
	}

	callCtx, cancel := context.WithTimeout(ctx, providers.HTTPClientTimeout)
	handle, err := synth.Submit(callCtx, shot.MotionPrompt, shot.StartImageURL, endURL, shot.Duration, job.AspectRatio)
	cancel()
	if err != nil {
		return o.retryShot(ctx, job, shot, domain.CapabilityVideo, err)
	}

	shot.VideoRequestHandle = handle
	shot.Phase = domain.ShotPollingVideo
	shot.RetryCount = 0
	return job, wakeContinue, nil
}

// pollVideos polls every shot waiting on a handle. Transient poll errors
// are swallowed per spec.md §4.5 — they neither advance nor fail the shot,
// the next tick just tries again — since polling carries no retry budget
// of its own.
func (o *Orchestrator) pollVideos(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	cred, err := o.credentials.Lookup(job.OwnerID, domain.CapabilityVideo)
	if err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: lookup video credentials: %w", err)
	}
	if cred == nil {
		return o.failJob(ctx, job, &domain.NoCredentialsError{Capability: string(domain.CapabilityVideo)})
	}
	synth, err := providers.VideoSynthesis(*cred, o.logger)
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	for i := range job.Shots {
		shot := &job.Shots[i]
		if shot.Phase != domain.ShotPollingVideo {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, providers.HTTPClientTimeout)
		result, perr := synth.Poll(callCtx, shot.VideoRequestHandle)
		cancel()
		if perr != nil {
			o.logProviderFailure(job, string(domain.CapabilityVideo), perr)
			continue
		}
		switch result.Status {
		case video.StatusDone:
			shot.VideoURL = result.URL
			shot.Phase = domain.ShotComplete
		case video.StatusFailed:
			shot.Phase = domain.ShotFailed
			shot.ErrorMessage = result.Error
		}
	}

	job.PollAttempts++
	job.RecomputeProgress()

	if allShotsTerminal(job) {
		return o.finishVideoPhase(ctx, job)
	}
	if job.PollAttempts > o.cfg.VideoPollCeiling {
		return o.failJob(ctx, job, &domain.TimeoutError{Phase: domain.PhaseGeneratingVideos})
	}
	if err := o.scheduler.ArmAt(ctx, armKey(job.OwnerID, job.ID), time.Now().Add(o.cfg.PollInterval)); err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: arm poll timer: %w", err)
	}
	return job, wakeArmed, nil
}

// finishVideoPhase applies the same partial-success policy as image
// generation: the job only fails outright if every shot failed.
func (o *Orchestrator) finishVideoPhase(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	complete := 0
	for i := range job.Shots {
		if job.Shots[i].Phase == domain.ShotComplete {
			complete++
		}
	}
	_ = o.scheduler.Disarm(ctx, armKey(job.OwnerID, job.ID))
	if complete == 0 {
		return o.failJob(ctx, job, fmt.Errorf("all shots failed during video generation"))
	}
	o.logTransition(job, domain.PhaseVideosComplete)
	job.Phase = domain.PhaseVideosComplete
	job.RecomputeProgress()
	return job, wakeContinue, nil
}

// nextVideoSubmission returns the first shot with both frames ready but no
// submitted handle yet — checking the handle first is what makes resuming
// mid-phase avoid resubmitting an in-flight request.
func nextVideoSubmission(job *domain.Job) *domain.ShotRuntime {
	for i := range job.Shots {
		s := &job.Shots[i]
		if s.Phase == domain.ShotFailed || s.Phase == domain.ShotComplete || s.Phase == domain.ShotPollingVideo {
			continue
		}
		if s.StartImageURL != "" && s.EndImageURL != "" && s.VideoRequestHandle == "" {
			return s
		}
	}
	return nil
}

func anyShotPolling(job *domain.Job) bool {
	for i := range job.Shots {
		if job.Shots[i].Phase == domain.ShotPollingVideo {
			return true
		}
	}
	return false
}

func allShotsTerminal(job *domain.Job) bool {
	for i := range job.Shots {
		if !job.Shots[i].Phase.IsTerminal() {
			return false
		}
	}
	return true
}

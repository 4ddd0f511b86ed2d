package orchestrator

import (
	"context"
	"fmt"

	"clipforge/internal/domain"
	"clipforge/internal/providers"
	"clipforge/internal/providers/image"
)

// stepImages advances exactly one shot's start or end frame, or — once every
// shot has both — closes out the phase. Credentials are looked up fresh on
// every call; a missing credential fails the whole job, since every shot in
// the phase draws on the same owner+capability lookup.
func (o *Orchestrator) stepImages(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	shot := nextImageShot(job)
	if shot == nil {
		return o.finishImagePhase(ctx, job)
	}

	cred, err := o.credentials.Lookup(job.OwnerID, domain.CapabilityImage)
	if err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: lookup image credentials: %w", err)
	}
	if cred == nil {
		return o.failJob(ctx, job, &domain.NoCredentialsError{Capability: string(domain.CapabilityImage)})
	}
	if err := o.checkRateLimit(ctx, job.OwnerID, domain.CapabilityImage); err != nil {
		return o.retryShot(ctx, job, shot, domain.CapabilityImage, err)
	}

	synth, err := providers.ImageSynthesis(*cred, o.logger)
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	generatingEnd := shot.StartImageURL != ""
	prompt := shot.StartPrompt
	shot.Phase = domain.ShotGeneratingStart
	if generatingEnd {
		prompt = shot.EndPrompt
		shot.Phase = domain.ShotGeneratingEnd
	}

	width, height := image.DimensionsForAspectRatio(job.AspectRatio)
	callCtx, cancel := context.WithTimeout(ctx, providers.HTTPClientTimeout)
	result, err := synth.Synthesize(callCtx, prompt, width, height)
	cancel()
	if err != nil {
		return o.retryShot(ctx, job, shot, domain.CapabilityImage, err)
	}

	url, err := o.persistAsset(ctx, "images", result.URL, result.Seed, result.Data)
	if err != nil {
		return nil, wakeDone, fmt.Errorf("orchestrator: persist image asset: %w", err)
	}

	shot.RetryCount = 0
	if generatingEnd {
		shot.EndImageURL = url
		shot.Phase = domain.ShotPending // awaiting video
	} else {
		shot.StartImageURL = url
	}
	job.RecomputeProgress()
	return job, wakeContinue, nil
}

// nextImageShot returns the first shot, in scene-then-shot order, still
// missing a start or end frame. Shots already marked Failed are skipped:
// a permanent per-shot error does not block its siblings.
func nextImageShot(job *domain.Job) *domain.ShotRuntime {
	for i := range job.Shots {
		s := &job.Shots[i]
		if s.Phase == domain.ShotFailed {
			continue
		}
		if s.StartImageURL == "" || s.EndImageURL == "" {
			return s
		}
	}
	return nil
}

// finishImagePhase applies the partial-success policy: the job only fails
// outright if every shot failed; otherwise it proceeds to video generation
// with whichever shots succeeded.
func (o *Orchestrator) finishImagePhase(ctx context.Context, job *domain.Job) (*domain.Job, wakeSignal, error) {
	succeeded := 0
	for i := range job.Shots {
		if job.Shots[i].StartImageURL != "" && job.Shots[i].EndImageURL != "" {
			succeeded++
		}
	}
	if succeeded == 0 {
		return o.failJob(ctx, job, fmt.Errorf("all shots failed during image generation"))
	}
	o.logTransition(job, domain.PhaseImagesComplete)
	job.Phase = domain.PhaseImagesComplete
	job.RecomputeProgress()
	return job, wakeContinue, nil
}

package domain

import "time"

// JobPhase enumerates the coarse state of a Job.
type JobPhase string

const (
	PhasePending          JobPhase = "Pending"
	PhaseGeneratingImages JobPhase = "GeneratingImages"
	PhaseImagesComplete   JobPhase = "ImagesComplete"
	PhaseGeneratingVideos JobPhase = "GeneratingVideos"
	PhaseVideosComplete   JobPhase = "VideosComplete"
	PhaseCompiling        JobPhase = "Compiling"
	PhaseComplete         JobPhase = "Complete"
	PhaseFailed           JobPhase = "Failed"
)

// phaseOrder gives every phase except Failed a rank so callers can assert
// monotonicity without hardcoding the state machine shape.
var phaseOrder = map[JobPhase]int{
	PhasePending:          0,
	PhaseGeneratingImages: 1,
	PhaseImagesComplete:   2,
	PhaseGeneratingVideos: 3,
	PhaseVideosComplete:   4,
	PhaseCompiling:        5,
	PhaseComplete:         6,
}

// IsTerminal reports whether the phase is Complete or Failed.
func (p JobPhase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Before reports whether p strictly precedes other in the canonical phase
// ordering. Failed is never "before" anything; it is terminal from any phase.
func (p JobPhase) Before(other JobPhase) bool {
	pr, pok := phaseOrder[p]
	or, ok := phaseOrder[other]
	if !pok || !ok {
		return false
	}
	return pr < or
}

// ShotPhase enumerates per-shot sub-state.
type ShotPhase string

const (
	ShotPending          ShotPhase = "Pending"
	ShotGeneratingStart  ShotPhase = "GeneratingStart"
	ShotGeneratingEnd    ShotPhase = "GeneratingEnd"
	ShotSubmittingVideo  ShotPhase = "SubmittingVideo"
	ShotPollingVideo     ShotPhase = "PollingVideo"
	ShotComplete         ShotPhase = "Complete"
	ShotFailed           ShotPhase = "Failed"
)

// IsTerminal reports whether the shot sub-state is Complete or Failed.
func (s ShotPhase) IsTerminal() bool {
	return s == ShotComplete || s == ShotFailed
}

// ShotRuntime is the durable per-shot state tracked inside a Job.
type ShotRuntime struct {
	SceneID      int       `json:"sceneId"`
	ShotID       int       `json:"shotId"`
	Phase        ShotPhase `json:"phase"`
	Duration     float64   `json:"duration"`
	StartPrompt  string    `json:"startPrompt"`
	EndPrompt    string    `json:"endPrompt"`
	MotionPrompt string    `json:"motionPrompt"`

	StartImageURL      string `json:"startImageUrl,omitempty"`
	EndImageURL        string `json:"endImageUrl,omitempty"`
	VideoRequestHandle string `json:"videoRequestHandle,omitempty"`
	VideoURL           string `json:"videoUrl,omitempty"`
	ErrorMessage       string `json:"errorMessage,omitempty"`

	// RetryCount tracks consecutive transient failures of whichever external
	// call this shot is currently waiting on (start/end image, video submit).
	// It resets to 0 whenever that call succeeds or the shot advances phase.
	RetryCount int `json:"retryCount,omitempty"`
}

// NewShotRuntimeList freezes an ordered per-shot runtime list from a Plan so
// a Job can resume independent of later Plan edits.
func NewShotRuntimeList(plan *Plan) []ShotRuntime {
	var out []ShotRuntime
	plan.EachShot(func(scene *Scene, shot *Shot) {
		out = append(out, ShotRuntime{
			SceneID:      scene.ID,
			ShotID:       shot.ID,
			Phase:        ShotPending,
			Duration:     shot.Duration,
			StartPrompt:  shot.StartPrompt,
			EndPrompt:    shot.EndPrompt,
			MotionPrompt: shot.MotionPrompt,
		})
	})
	return out
}

// Job is a durable instance of running a Plan through the generation
// pipeline. It is mutated only by the Orchestrator that owns it, via the Job
// Store's atomic phase-transition commit.
type Job struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	OwnerID     string    `json:"ownerId"`
	AspectRatio string    `json:"aspectRatio"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Phase    JobPhase `json:"phase"`
	Progress int      `json:"progress"`

	Shots []ShotRuntime `json:"shots"`

	FinalArtifactURL string `json:"finalArtifactUrl,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`

	PollAttempts     int    `json:"pollAttempts"`
	CompileRequestID string `json:"compileRequestId,omitempty"`

	// CancelRequested is observed at the next wake-up and transitions the job
	// to Failed with Cancelled. It is not part of the atomically-committed
	// core tuple described in spec.md §4.3, but is persisted alongside it.
	CancelRequested bool `json:"cancelRequested,omitempty"`

	// CompileProvider names the tagged compile variant ("none" skips the
	// phase entirely); persisted so resume never needs a fresh Project read.
	CompileProvider string `json:"compileProvider,omitempty"`

	// CompileRetryCount tracks consecutive transient failures of the
	// Compilation.submit call, separately from the per-shot RetryCount.
	CompileRetryCount int `json:"compileRetryCount,omitempty"`
}

// TotalUnits returns the progress-weighted denominator: 2 per shot (two
// images) + 1 per shot (video) + 1 if compiling.
func (j *Job) TotalUnits() int {
	n := len(j.Shots)
	total := 2*n + n
	if j.CompileProvider != "" && j.CompileProvider != "none" {
		total++
	}
	return total
}

// CompletedUnits counts completed image/video/compile units for progress computation.
func (j *Job) CompletedUnits() int {
	units := 0
	for _, s := range j.Shots {
		if s.StartImageURL != "" {
			units++
		}
		if s.EndImageURL != "" {
			units++
		}
		if s.Phase == ShotComplete {
			units++
		}
	}
	if j.FinalArtifactURL != "" {
		units++
	}
	return units
}

// RecomputeProgress applies the weighted-fraction formula from spec.md §4.5.
func (j *Job) RecomputeProgress() {
	if j.Phase == PhaseComplete {
		j.Progress = 100
		return
	}
	total := j.TotalUnits()
	if total <= 0 {
		j.Progress = 0
		return
	}
	completed := j.CompletedUnits()
	progress := int((100*completed + total/2) / total) // round to nearest
	if progress > 99 {
		progress = 99 // only Complete may report 100, per spec.md §8
	}
	if progress < 0 {
		progress = 0
	}
	j.Progress = progress
}

// ShotByID finds the runtime record for a given scene+shot id pair.
func (j *Job) ShotByID(sceneID, shotID int) *ShotRuntime {
	for i := range j.Shots {
		if j.Shots[i].SceneID == sceneID && j.Shots[i].ShotID == shotID {
			return &j.Shots[i]
		}
	}
	return nil
}

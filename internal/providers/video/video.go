// Package video implements the VideoSynthesis provider contract: an
// asynchronous submit/poll pair, since clip generation routinely runs
// longer than a single HTTP round trip.
package video

import "context"

// Status enumerates the lifecycle of a submitted video request.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// PollResult is what Poll returns for a given handle.
type PollResult struct {
	Status Status
	URL    string
	Error  string
}

// Synthesizer is the VideoSynthesis capability (spec.md §4.1). Adapters
// advertise SupportsEndFrame; the Orchestrator must not pass an end frame
// URL to Submit when it returns false.
type Synthesizer interface {
	Submit(ctx context.Context, motionPrompt, startImageURL, endImageURL string, duration float64, aspectRatio string) (handle string, err error)
	Poll(ctx context.Context, handle string) (*PollResult, error)
	SupportsEndFrame() bool

	// EstimateCost returns a USD estimate for one clip of the given
	// duration at the configured model, used by Director.EstimateCost
	// before any clip is submitted.
	EstimateCost(duration float64) float64
}

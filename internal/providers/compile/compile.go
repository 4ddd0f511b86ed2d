// Package compile implements the Compilation provider contract: stitching
// ordered clip URLs into one final artifact.
package compile

import "context"

// Status enumerates the lifecycle of a submitted compile request.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Options carries compile-time knobs a provider may use; local ffmpeg
// compilation ignores fields it doesn't support.
type Options struct {
	AspectRatio string
}

// PollResult is what Poll returns for a given handle.
type PollResult struct {
	Status Status
	URL    string
	Error  string
}

// Compiler is the Compilation capability (spec.md §4.1). A nil Compiler
// (credential provider "none") means the Orchestrator skips the compile
// phase entirely, which is distinct from a Compiler that runs and fails.
type Compiler interface {
	Submit(ctx context.Context, orderedClipURLs []string, opts Options) (handle string, err error)
	Poll(ctx context.Context, handle string) (*PollResult, error)

	// EstimateCost returns a flat USD estimate for one compile job, used by
	// Director.EstimateCost before any job is submitted.
	EstimateCost() float64
}

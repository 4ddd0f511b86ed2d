package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a keyed lookup has no match.
var ErrNotFound = errors.New("not found")

// ErrOwnerMismatch is returned when a request's ownerId does not match the
// resource being acted on.
var ErrOwnerMismatch = errors.New("owner mismatch")

// ErrLeaseHeld is returned by JobStore.WithLease when another worker already
// holds the write lease for the job; the caller should quietly exit.
var ErrLeaseHeld = errors.New("job write lease held by another worker")

// ValidationKind enumerates the specific ways a Plan can fail validation.
type ValidationKind string

const (
	ValidationMalformed       ValidationKind = "malformed"
	ValidationShape           ValidationKind = "shape"
	ValidationSceneCount      ValidationKind = "scene_count"
	ValidationShotCount       ValidationKind = "shot_count"
	ValidationSceneID         ValidationKind = "scene_id"
	ValidationShotID          ValidationKind = "shot_id"
	ValidationDuration        ValidationKind = "duration"
	ValidationPromptLength    ValidationKind = "prompt_length"
	ValidationCameraMove      ValidationKind = "camera_move"
	ValidationTransition      ValidationKind = "transition_out"
	ValidationTotalDuration   ValidationKind = "total_duration"
	ValidationAlreadyApproved ValidationKind = "already_approved"
)

// ValidationError reports a Plan parse/validate failure, located by scene and
// shot index when applicable. It is never retried by the Director; the
// caller decides whether to re-invoke.
type ValidationError struct {
	Kind    ValidationKind
	SceneID int // 0 when not applicable
	ShotID  int // 0 when not applicable
	Message string
}

func (e *ValidationError) Error() string {
	if e.SceneID > 0 && e.ShotID > 0 {
		return fmt.Sprintf("validation(%s) scene %d shot %d: %s", e.Kind, e.SceneID, e.ShotID, e.Message)
	}
	if e.SceneID > 0 {
		return fmt.Sprintf("validation(%s) scene %d: %s", e.Kind, e.SceneID, e.Message)
	}
	return fmt.Sprintf("validation(%s): %s", e.Kind, e.Message)
}

// ProviderError is returned by provider adapters. Retryable errors are
// network failures, 5xx responses, 429s, and deadlines hit without a
// response. Non-retryable errors are malformed credentials or a 4xx that
// signals a semantic, non-transient failure.
type ProviderError struct {
	Retryable  bool
	HTTPStatus int // 0 when not applicable (e.g. a transport error)
	Message    string
	Capability string // "text", "image", "video", "compile"
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("provider(%s) status %d: %s", e.Capability, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("provider(%s): %s", e.Capability, e.Message)
}

// TimeoutError reports a phase polling ceiling exceeded.
type TimeoutError struct {
	Phase JobPhase
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timeout in %s", e.Phase)
}

// CancelledError reports a job cancelled at the user's request.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "Cancelled" }

// NoCredentialsError reports a missing credential lookup for a capability.
type NoCredentialsError struct {
	Capability string
}

func (e *NoCredentialsError) Error() string {
	return fmt.Sprintf("no credentials configured for capability %q", e.Capability)
}

// AsValidationError unwraps err into a *ValidationError if possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsProviderError unwraps err into a *ProviderError if possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

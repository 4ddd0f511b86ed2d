// Package director implements shot-plan synthesis, validation, and
// normalization: the AI Director from spec.md §4.2.
package director

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"clipforge/internal/domain"
	"clipforge/internal/providers/compile"
	"clipforge/internal/providers/image"
	"clipforge/internal/providers/text"
	"clipforge/internal/providers/video"
)

// Director builds prompts, invokes TextCompletion, and validates/normalizes
// the result into a Plan.
type Director struct {
	validate *validator.Validate
}

// New constructs a Director.
func New() *Director {
	return &Director{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Direct decomposes a concept into a validated Plan by invoking the given
// TextCompletion adapter. It implements spec.md §4.2's direct algorithm.
func (d *Director) Direct(ctx context.Context, completion text.Completion, concept string, targetDuration float64, aspectRatio, style string, constraints domain.Constraints) (*domain.Plan, error) {
	system := buildSystemPrompt(constraints)
	user := buildUserPrompt(concept, targetDuration, aspectRatio, style, constraints)

	result, err := completion.Chat(ctx, system, user, text.ChatOptions{JSONMode: true})
	if err != nil {
		return nil, err // ProviderError bubbles unchanged per spec.md §4.2
	}

	plan, err := d.parseAndValidate(result.Content, targetDuration, constraints, 0.10)
	if err != nil {
		return nil, err
	}
	return normalize(plan), nil
}

// EstimateCost projects a full CostBreakdown: text token usage for a
// would-be Direct/Refine call, plus per-unit image/video/compile costs from
// the adapter bundle. Implements spec.md §4.1's estimateCost algorithm:
// "enumerates shots: 2 images per shot, 1 video per shot, optional compile
// job; sums per-unit estimates from the adapter bundle." plan is nil before
// a Plan exists, in which case only the text projection is returned.
// imageAdapter, videoAdapter, and compileAdapter are nil when the caller has
// no credential configured for that capability (or, for compile, the
// provider tag is "none"); a nil adapter contributes zero to the total.
func (d *Director) EstimateCost(
	completion text.Completion,
	concept string,
	targetDuration float64,
	aspectRatio, style string,
	constraints domain.Constraints,
	plan *domain.Plan,
	imageAdapter image.Synthesizer,
	videoAdapter video.Synthesizer,
	compileAdapter compile.Compiler,
) domain.CostBreakdown {
	system := buildSystemPrompt(constraints)
	user := buildUserPrompt(concept, targetDuration, aspectRatio, style, constraints)
	in, out := completion.EstimateCost(system, user)

	cost := domain.CostBreakdown{TextInTokens: in, TextOutTokens: out}
	if plan == nil {
		return cost
	}

	cost.ImageUnits = 2 * plan.TotalShots()
	cost.VideoUnits = plan.TotalShots()

	if imageAdapter != nil {
		cost.TotalEstimate += float64(cost.ImageUnits) * imageAdapter.EstimateCost()
	}
	if videoAdapter != nil {
		plan.EachShot(func(_ *domain.Scene, shot *domain.Shot) {
			cost.TotalEstimate += videoAdapter.EstimateCost(shot.Duration)
		})
	}
	if compileAdapter != nil {
		cost.CompileUnits = 1
		cost.TotalEstimate += compileAdapter.EstimateCost()
	}
	return cost
}

// Refine resubmits a prior Plan plus feedback, validating against the prior
// plan's totalDuration as target (looser tolerance, per spec.md §4.2).
func (d *Director) Refine(ctx context.Context, completion text.Completion, existing *domain.Plan, feedback string) (*domain.Plan, error) {
	if existing == nil {
		return nil, &domain.ValidationError{Kind: domain.ValidationShape, Message: "no existing plan to refine"}
	}
	system := buildSystemPrompt(domain.Constraints{})
	user := buildRefinePrompt(existing, feedback)

	result, err := completion.Chat(ctx, system, user, text.ChatOptions{JSONMode: true})
	if err != nil {
		return nil, err
	}

	plan, err := d.parseAndValidate(result.Content, existing.TotalDuration, domain.Constraints{}, 0.10)
	if err != nil {
		return nil, err
	}
	return normalize(plan), nil
}

func (d *Director) parseAndValidate(raw string, targetDuration float64, constraints domain.Constraints, tolerance float64) (*domain.Plan, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, &domain.ValidationError{Kind: domain.ValidationMalformed, Message: "empty response after JSON extraction"}
	}

	var plan domain.Plan
	if err := json.Unmarshal([]byte(fragment), &plan); err != nil {
		return nil, &domain.ValidationError{Kind: domain.ValidationMalformed, Message: err.Error()}
	}

	if err := d.validateStructure(&plan); err != nil {
		return nil, err
	}
	if err := validateSemantics(&plan, targetDuration, constraints, tolerance); err != nil {
		return nil, err
	}
	return &plan, nil
}

// validateStructure runs the go-playground/validator tag-based pass:
// required fields present, positive ids, non-empty strings. Semantic
// cross-field checks (contiguity, enum membership, duration tolerance) are
// not expressible purely as tags and run separately in validateSemantics.
func (d *Director) validateStructure(plan *domain.Plan) error {
	if err := d.validate.Struct(plan); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ValidationError{
				Kind:    domain.ValidationShape,
				Message: fmt.Sprintf("field %s failed %s", fe.Namespace(), fe.Tag()),
			}
		}
		return &domain.ValidationError{Kind: domain.ValidationShape, Message: err.Error()}
	}
	return nil
}

func validateSemantics(plan *domain.Plan, targetDuration float64, constraints domain.Constraints, tolerance float64) error {
	if constraints.MaxScenes > 0 && len(plan.Scenes) > constraints.MaxScenes {
		return &domain.ValidationError{Kind: domain.ValidationSceneCount, Message: fmt.Sprintf("scene count %d exceeds max %d", len(plan.Scenes), constraints.MaxScenes)}
	}

	var sum float64
	for sceneIdx, scene := range plan.Scenes {
		expectedSceneID := sceneIdx + 1
		if scene.ID != expectedSceneID {
			return &domain.ValidationError{Kind: domain.ValidationSceneID, SceneID: scene.ID, Message: fmt.Sprintf("expected scene id %d", expectedSceneID)}
		}
		if constraints.MaxShotsPerScene > 0 && len(scene.Shots) > constraints.MaxShotsPerScene {
			return &domain.ValidationError{Kind: domain.ValidationShotCount, SceneID: scene.ID, Message: fmt.Sprintf("shot count %d exceeds max %d", len(scene.Shots), constraints.MaxShotsPerScene)}
		}
		for shotIdx, shot := range scene.Shots {
			expectedShotID := shotIdx + 1
			if shot.ID != expectedShotID {
				return &domain.ValidationError{Kind: domain.ValidationShotID, SceneID: scene.ID, ShotID: shot.ID, Message: fmt.Sprintf("expected shot id %d", expectedShotID)}
			}
			if shot.Duration < domain.MinShotDuration || shot.Duration > domain.MaxShotDuration {
				return &domain.ValidationError{Kind: domain.ValidationDuration, SceneID: scene.ID, ShotID: shot.ID, Message: fmt.Sprintf("duration %.1f outside [%.1f, %.1f]", shot.Duration, domain.MinShotDuration, domain.MaxShotDuration)}
			}
			for _, field := range []struct{ name, value string }{
				{"startPrompt", shot.StartPrompt}, {"endPrompt", shot.EndPrompt}, {"motionPrompt", shot.MotionPrompt},
			} {
				if tokenCount(field.value) < domain.MinPromptTokens {
					return &domain.ValidationError{Kind: domain.ValidationPromptLength, SceneID: scene.ID, ShotID: shot.ID, Message: fmt.Sprintf("%s has fewer than %d tokens", field.name, domain.MinPromptTokens)}
				}
			}
			if !shot.CameraMove.IsValid() {
				return &domain.ValidationError{Kind: domain.ValidationCameraMove, SceneID: scene.ID, ShotID: shot.ID, Message: fmt.Sprintf("unknown camera move %q", shot.CameraMove)}
			}
			if shot.TransitionOut != "" && !shot.TransitionOut.IsValid() {
				return &domain.ValidationError{Kind: domain.ValidationTransition, SceneID: scene.ID, ShotID: shot.ID, Message: fmt.Sprintf("unknown transition %q", shot.TransitionOut)}
			}
			sum += shot.Duration
		}
	}

	sum = roundTo(sum, 0.1)
	low, high := targetDuration*(1-tolerance), targetDuration*(1+tolerance)
	if sum < low || sum > high {
		return &domain.ValidationError{Kind: domain.ValidationTotalDuration, Message: fmt.Sprintf("total duration %.1f outside [%.1f, %.1f]", sum, low, high)}
	}
	return nil
}

// normalize trims strings, rounds durations, renumbers ids, defaults
// transitionOut, and recomputes totalDuration. It is idempotent:
// normalize(normalize(x)) == normalize(x), since every operation is itself
// idempotent (trimming already-trimmed text, rounding already-rounded
// numbers, renumbering an already-contiguous sequence to itself).
func normalize(plan *domain.Plan) *domain.Plan {
	out := *plan
	out.Title = strings.TrimSpace(plan.Title)
	out.Narrative = strings.TrimSpace(plan.Narrative)
	out.Scenes = make([]domain.Scene, len(plan.Scenes))

	var total float64
	for i, scene := range plan.Scenes {
		ns := scene
		ns.ID = i + 1
		ns.Name = strings.TrimSpace(scene.Name)
		ns.Description = strings.TrimSpace(scene.Description)
		ns.Mood = strings.TrimSpace(scene.Mood)
		ns.Shots = make([]domain.Shot, len(scene.Shots))
		for j, shot := range scene.Shots {
			nsh := shot
			nsh.ID = j + 1
			nsh.Duration = roundTo(shot.Duration, 0.1)
			nsh.StartPrompt = strings.TrimSpace(shot.StartPrompt)
			nsh.EndPrompt = strings.TrimSpace(shot.EndPrompt)
			nsh.MotionPrompt = strings.TrimSpace(shot.MotionPrompt)
			nsh.Lighting = strings.TrimSpace(shot.Lighting)
			nsh.ColorPalette = strings.TrimSpace(shot.ColorPalette)
			if nsh.TransitionOut == "" {
				nsh.TransitionOut = domain.TransitionCut
			}
			total += nsh.Duration
			ns.Shots[j] = nsh
		}
		out.Scenes[i] = ns
	}
	out.TotalDuration = roundTo(total, 0.1)
	return &out
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}

func tokenCount(s string) int {
	return len(strings.Fields(s))
}

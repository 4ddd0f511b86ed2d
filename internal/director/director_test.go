package director

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/domain"
	"clipforge/internal/providers/text"
)

func validPlan() *domain.Plan {
	return &domain.Plan{
		Title:         "Morning Coffee",
		Narrative:     "A short ad for a café.",
		TotalDuration: 10,
		Scenes: []domain.Scene{
			{
				ID:          1,
				Name:        "Opening",
				Description: "Steam rising from a cup on a wooden table.",
				Mood:        "warm",
				Shots: []domain.Shot{
					{
						ID:            1,
						Duration:      5,
						StartPrompt:   "A steaming cup of coffee sits on a rustic wooden table near a window, with soft morning light falling across the grain of the wood",
						EndPrompt:     "Steam curls upward catching the early morning light through the window as the cup rests still on the rustic wooden table",
						MotionPrompt:  "Slow push in toward the cup as steam drifts upward in soft light, the table edge sliding gently out of the lower frame",
						CameraMove:    domain.CameraPushIn,
						Lighting:      "soft morning light",
						TransitionOut: domain.TransitionCut,
					},
					{
						ID:           2,
						Duration:     5,
						StartPrompt:  "A barista carefully pours milk into the cup creating a gentle pattern on the surface while the cafe hums quietly in the background",
						EndPrompt:    "The finished latte art sits ready as the barista steps back smiling and the warm cafe light settles over the counter",
						MotionPrompt: "Camera pans right slowly following the pour across the counter, keeping the cup and the barista's hands centered in the frame",
						CameraMove:   domain.CameraPanRight,
						Lighting:     "warm cafe lighting",
					},
				},
			},
		},
	}
}

func planJSON(t *testing.T, plan *domain.Plan) string {
	t.Helper()
	b, err := json.Marshal(plan)
	require.NoError(t, err, "marshal plan")
	return string(b)
}

// TestNormalizeIdempotent checks normalize(normalize(x)) == normalize(x) on
// a plan whose fields already need trimming, renumbering, and rounding, so
// the first pass does real work and the second pass is a genuine no-op.
func TestNormalizeIdempotent(t *testing.T) {
	plan := &domain.Plan{
		Title:     "  Loud Title  ",
		Narrative: "  a narrative  ",
		Scenes: []domain.Scene{
			{
				ID:          7, // wrong id, normalize renumbers from 1
				Name:        "  Scene One  ",
				Description: "  desc  ",
				Mood:        "  calm  ",
				Shots: []domain.Shot{
					{
						ID:           9, // wrong id
						Duration:     5.04,
						StartPrompt:  "  start  ",
						EndPrompt:    "  end  ",
						MotionPrompt: "  motion  ",
						CameraMove:   domain.CameraStatic,
						// TransitionOut left empty: normalize defaults it.
					},
				},
			},
		},
	}

	once := normalize(plan)
	twice := normalize(once)

	onceJSON, err := json.Marshal(once)
	require.NoError(t, err, "marshal once")
	twiceJSON, err := json.Marshal(twice)
	require.NoError(t, err, "marshal twice")
	assert.JSONEq(t, string(onceJSON), string(twiceJSON), "normalize is not idempotent")

	assert.Equal(t, 1, once.Scenes[0].ID, "normalize did not renumber scene id")
	assert.Equal(t, 1, once.Scenes[0].Shots[0].ID, "normalize did not renumber shot id")
	assert.Equal(t, domain.TransitionCut, once.Scenes[0].Shots[0].TransitionOut, "normalize did not default transitionOut")
	assert.Equal(t, "Loud Title", once.Title, "normalize did not trim title")
}

// fakeCompletion returns a fixed Chat response regardless of prompt, so
// parseAndValidate tests can drive specific malformed/invalid shapes
// through Director.Direct without a real provider.
type fakeCompletion struct {
	content string
}

func (f *fakeCompletion) Chat(ctx context.Context, systemPrompt, userPrompt string, opts text.ChatOptions) (*text.ChatResult, error) {
	return &text.ChatResult{Content: f.content, InputTokens: 10, OutputTokens: 20}, nil
}

func (f *fakeCompletion) EstimateCost(systemPrompt, userPrompt string) (int, int) {
	return len(systemPrompt) / 4, len(userPrompt) / 4
}

func TestParseAndValidateRejectsEachKind(t *testing.T) {
	d := New()

	base := validPlan()

	withShots := func(mutate func(p *domain.Plan)) string {
		p := validPlan()
		mutate(p)
		return planJSON(t, p)
	}

	tests := []struct {
		name string
		raw  string
		kind domain.ValidationKind
	}{
		{
			name: "malformed json",
			raw:  "{not json",
			kind: domain.ValidationMalformed,
		},
		{
			name: "empty response",
			raw:  "   ",
			kind: domain.ValidationMalformed,
		},
		{
			name: "missing required field fails shape",
			raw:  `{"title":"","narrative":"x","totalDuration":10,"scenes":[{"id":1,"name":"n","description":"d","mood":"m","shots":[{"id":1,"duration":5,"startPrompt":"a b c d e f g h i j k l m n o p q r s t","endPrompt":"a b c d e f g h i j k l m n o p q r s t","motionPrompt":"a b c d e f g h i j k l m n o p q r s t","cameraMove":"static","lighting":"soft"}]}]}`,
			kind: domain.ValidationShape,
		},
		{
			name: "scene count exceeds max",
			raw: func() string {
				p := validPlan()
				p.Scenes = append(p.Scenes, p.Scenes[0])
				p.Scenes[1].ID = 2
				return planJSON(t, p)
			}(),
			kind: domain.ValidationSceneCount,
		},
		{
			name: "bad scene id",
			raw: withShots(func(p *domain.Plan) {
				p.Scenes[0].ID = 5
			}),
			kind: domain.ValidationSceneID,
		},
		{
			name: "bad shot id",
			raw: withShots(func(p *domain.Plan) {
				p.Scenes[0].Shots[0].ID = 5
			}),
			kind: domain.ValidationShotID,
		},
		{
			name: "duration out of bounds",
			raw: withShots(func(p *domain.Plan) {
				p.Scenes[0].Shots[0].Duration = 50
				p.TotalDuration = 55
			}),
			kind: domain.ValidationDuration,
		},
		{
			name: "prompt too short",
			raw: withShots(func(p *domain.Plan) {
				p.Scenes[0].Shots[0].StartPrompt = "too short"
			}),
			kind: domain.ValidationPromptLength,
		},
		{
			name: "invalid camera move",
			raw: withShots(func(p *domain.Plan) {
				p.Scenes[0].Shots[0].CameraMove = "zoom_blast"
			}),
			kind: domain.ValidationCameraMove,
		},
		{
			name: "invalid transition",
			raw: withShots(func(p *domain.Plan) {
				p.Scenes[0].Shots[0].TransitionOut = "swirl"
			}),
			kind: domain.ValidationTransition,
		},
		{
			name: "total duration out of tolerance",
			raw:  planJSON(t, base),
			kind: domain.ValidationTotalDuration,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			targetDuration := base.TotalDuration
			if tc.name == "total duration out of tolerance" {
				targetDuration = 100 // base plan sums to 10s, far outside tolerance of 100
			}
			_, err := d.parseAndValidate(tc.raw, targetDuration, domain.Constraints{MaxScenes: 1}, 0.10)
			require.Error(t, err, "expected validation error")

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr, "expected a *domain.ValidationError")
			assert.Equal(t, tc.kind, verr.Kind)
		})
	}
}

func TestParseAndValidateAcceptsValidPlan(t *testing.T) {
	d := New()
	plan := validPlan()
	raw := planJSON(t, plan)

	got, err := d.parseAndValidate(raw, plan.TotalDuration, domain.Constraints{}, 0.10)
	require.NoError(t, err, "expected valid plan to pass")
	assert.Equal(t, 2, got.TotalShots())
}

func TestEstimateCostWithNoPlanReturnsTextOnly(t *testing.T) {
	d := New()
	completion := &fakeCompletion{}
	cost := d.EstimateCost(completion, "concept", 10, "16:9", "cinematic", domain.Constraints{}, nil, nil, nil, nil)
	assert.Zero(t, cost.ImageUnits, "expected zero image units with no plan")
	assert.Zero(t, cost.VideoUnits, "expected zero video units with no plan")
	assert.Zero(t, cost.CompileUnits, "expected zero compile units with no plan")
	assert.Zero(t, cost.TotalEstimate, "expected zero total estimate with no plan")
	assert.True(t, cost.TextInTokens != 0 || cost.TextOutTokens != 0, "expected nonzero text token projection, got %+v", cost)
}

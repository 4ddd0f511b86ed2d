package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipforge/internal/domain"
	"clipforge/internal/middleware"
	"clipforge/internal/providers"
	"clipforge/internal/providers/compile"
	"clipforge/internal/providers/image"
	"clipforge/internal/providers/video"
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// normalizeProjectName fixes ALL-CAPS or all-lowercase project names into
// title case, mirroring the casing normalization the Director applies to
// prompt text. Mixed-case names pass through untouched.
func normalizeProjectName(name string) string {
	if name == strings.ToUpper(name) || name == strings.ToLower(name) {
		return titleCaser.String(strings.ToLower(name))
	}
	return name
}

var structValidate = validator.New(validator.WithRequiredStructEnabled())

type createProjectRequest struct {
	Name           string             `json:"name" validate:"required"`
	Concept        string             `json:"concept" validate:"required"`
	Style          string             `json:"style,omitempty"`
	TargetDuration float64            `json:"targetDuration" validate:"required,gt=0"`
	AspectRatio    string             `json:"aspectRatio" validate:"required,oneof=16:9 9:16 1:1"`
	Config         domain.Constraints `json:"config"`
}

// CreateProject handles POST /api/projects.
func (a *App) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := structValidate.Struct(req); err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Style == "" {
		req.Style = defaultStyleForLocale(middleware.LocaleFromContext(r.Context()))
	}

	now := time.Now()
	project := &domain.Project{
		ID:             uuid.NewString(),
		OwnerID:        ownerID(r),
		Name:           normalizeProjectName(req.Name),
		Concept:        req.Concept,
		Style:          req.Style,
		TargetDuration: req.TargetDuration,
		AspectRatio:    req.AspectRatio,
		Config:         req.Config,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.Projects.Create(r.Context(), project); err != nil {
		a.writeError(w, err)
		return
	}
	a.ok(w, http.StatusCreated, project)
}

// GetProject handles GET /api/projects/{id}.
func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := a.Projects.GetByID(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.ok(w, http.StatusOK, project)
}

type directResponse struct {
	Plan         *domain.Plan         `json:"plan"`
	CostEstimate domain.CostBreakdown `json:"costEstimate"`
}

// Direct handles POST /api/projects/{id}/direct: decompose the project's
// concept into an initial Plan.
func (a *App) Direct(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	project, err := a.Projects.GetByID(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	cred, err := a.Credentials.Lookup(owner, domain.CapabilityText)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if cred == nil {
		a.writeError(w, &domain.NoCredentialsError{Capability: string(domain.CapabilityText)})
		return
	}
	completion, err := providers.TextCompletion(*cred, a.Logger)
	if err != nil {
		a.writeError(w, err)
		return
	}

	plan, err := a.Director.Direct(r.Context(), completion, project.Concept, project.TargetDuration, project.AspectRatio, project.Style, project.Config)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.Projects.UpdatePlan(r.Context(), owner, project.ID, plan); err != nil {
		a.writeError(w, err)
		return
	}

	imgAdapter, vidAdapter, compileAdapter, err := a.costAdapters(owner)
	if err != nil {
		a.writeError(w, err)
		return
	}
	cost := a.Director.EstimateCost(completion, project.Concept, project.TargetDuration, project.AspectRatio, project.Style, project.Config, plan, imgAdapter, vidAdapter, compileAdapter)
	a.ok(w, http.StatusOK, directResponse{Plan: plan, CostEstimate: cost})
}

type refineRequest struct {
	Feedback string `json:"feedback" validate:"required"`
}

// Refine handles POST /api/projects/{id}/refine.
func (a *App) Refine(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	project, err := a.Projects.GetByID(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if project.Plan == nil {
		a.writeError(w, &domain.ValidationError{Kind: domain.ValidationShape, Message: "project has no plan to refine"})
		return
	}

	var req refineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := structValidate.Struct(req); err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	cred, err := a.Credentials.Lookup(owner, domain.CapabilityText)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if cred == nil {
		a.writeError(w, &domain.NoCredentialsError{Capability: string(domain.CapabilityText)})
		return
	}
	completion, err := providers.TextCompletion(*cred, a.Logger)
	if err != nil {
		a.writeError(w, err)
		return
	}

	plan, err := a.Director.Refine(r.Context(), completion, project.Plan, req.Feedback)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.Projects.UpdatePlan(r.Context(), owner, project.ID, plan); err != nil {
		a.writeError(w, err)
		return
	}

	imgAdapter, vidAdapter, compileAdapter, err := a.costAdapters(owner)
	if err != nil {
		a.writeError(w, err)
		return
	}
	cost := a.Director.EstimateCost(completion, project.Concept, project.TargetDuration, project.AspectRatio, project.Style, project.Config, plan, imgAdapter, vidAdapter, compileAdapter)
	a.ok(w, http.StatusOK, directResponse{Plan: plan, CostEstimate: cost})
}

// Approve handles POST /api/projects/{id}/approve: freezes the current Plan.
func (a *App) Approve(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	projectID := chi.URLParam(r, "id")
	project, err := a.Projects.GetByID(r.Context(), owner, projectID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if project.PlanApproved {
		a.writeError(w, &domain.ValidationError{Kind: domain.ValidationAlreadyApproved, Message: "plan already approved"})
		return
	}
	if err := a.Projects.Approve(r.Context(), owner, projectID); err != nil {
		a.writeError(w, err)
		return
	}
	a.ok(w, http.StatusOK, map[string]bool{"approved": true})
}

// Generate handles POST /api/projects/{id}/generate: creates a Job for the
// project's approved Plan and hands the trigger to the dispatch queue.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	projectID := chi.URLParam(r, "id")
	project, err := a.Projects.GetByID(r.Context(), owner, projectID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if project.Plan == nil || !project.PlanApproved {
		a.writeError(w, &domain.ValidationError{Kind: domain.ValidationShape, Message: "project has no approved plan"})
		return
	}

	compileProvider := "none"
	if cred, err := a.Credentials.Lookup(owner, domain.CapabilityCompile); err != nil {
		a.writeError(w, err)
		return
	} else if cred != nil && cred.Provider != "" {
		compileProvider = cred.Provider
	}

	job := &domain.Job{
		ID:              uuid.NewString(),
		ProjectID:       project.ID,
		OwnerID:         owner,
		AspectRatio:     project.AspectRatio,
		Phase:           domain.PhasePending,
		Shots:           domain.NewShotRuntimeList(project.Plan),
		CompileProvider: compileProvider,
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.Projects.SetActiveJob(r.Context(), owner, projectID, job.ID); err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.Publisher.PublishGenerate(r.Context(), owner, job.ID); err != nil {
		a.writeError(w, err)
		return
	}
	a.ok(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

// defaultStyleForLocale supplies the style hint a project omits, per
// spec.md §10's locale-sensitive-default note — a best-effort starting point
// the Director's prompt still lets the user override via refine feedback.
func defaultStyleForLocale(locale string) string {
	if locale == "id" {
		return "sinematik, pencahayaan hangat"
	}
	return "cinematic, warm lighting"
}

// costAdapters builds the image/video/compile adapter bundle Director.EstimateCost
// sums per-unit costs from. A capability with no credential configured
// yields a nil adapter rather than an error: cost estimation must work
// before an owner has wired up every capability, unlike Direct/Generate
// which require the capability they actually invoke.
func (a *App) costAdapters(owner string) (image.Synthesizer, video.Synthesizer, compile.Compiler, error) {
	var imgAdapter image.Synthesizer
	cred, err := a.Credentials.Lookup(owner, domain.CapabilityImage)
	if err != nil {
		return nil, nil, nil, err
	}
	if cred != nil {
		if imgAdapter, err = providers.ImageSynthesis(*cred, a.Logger); err != nil {
			return nil, nil, nil, err
		}
	}

	var vidAdapter video.Synthesizer
	cred, err = a.Credentials.Lookup(owner, domain.CapabilityVideo)
	if err != nil {
		return nil, nil, nil, err
	}
	if cred != nil {
		if vidAdapter, err = providers.VideoSynthesis(*cred, a.Logger); err != nil {
			return nil, nil, nil, err
		}
	}

	var compileAdapter compile.Compiler
	cred, err = a.Credentials.Lookup(owner, domain.CapabilityCompile)
	if err != nil {
		return nil, nil, nil, err
	}
	if cred != nil {
		if compileAdapter, err = providers.Compilation(*cred, providers.FFmpegOptions{}, a.Logger); err != nil {
			return nil, nil, nil, err
		}
	}

	return imgAdapter, vidAdapter, compileAdapter, nil
}

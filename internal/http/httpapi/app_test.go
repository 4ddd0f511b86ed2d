package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"clipforge/internal/director"
	"clipforge/internal/domain"
	"clipforge/internal/middleware"
)

type fakeProjects struct {
	byID map[string]*domain.Project
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{byID: map[string]*domain.Project{}}
}

func (f *fakeProjects) Create(ctx context.Context, p *domain.Project) error {
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProjects) GetByID(ctx context.Context, ownerID, projectID string) (*domain.Project, error) {
	p, ok := f.byID[projectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.OwnerID != ownerID {
		return nil, domain.ErrOwnerMismatch
	}
	return p, nil
}

func (f *fakeProjects) UpdatePlan(ctx context.Context, ownerID, projectID string, plan *domain.Plan) error {
	p, err := f.GetByID(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	p.Plan = plan
	return nil
}

func (f *fakeProjects) Approve(ctx context.Context, ownerID, projectID string) error {
	p, err := f.GetByID(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	p.PlanApproved = true
	return nil
}

func (f *fakeProjects) SetActiveJob(ctx context.Context, ownerID, projectID, jobID string) error {
	p, err := f.GetByID(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	p.ActiveJobID = jobID
	return nil
}

type fakeJobs struct {
	byID map[string]*domain.Job
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{byID: map[string]*domain.Job{}}
}

func (f *fakeJobs) Create(ctx context.Context, job *domain.Job) error {
	f.byID[job.ID] = job
	return nil
}

func (f *fakeJobs) Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	j, ok := f.byID[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.OwnerID != ownerID {
		return nil, domain.ErrOwnerMismatch
	}
	return j, nil
}

func (f *fakeJobs) WithLease(ctx context.Context, ownerID, jobID string, fn func(job *domain.Job) (*domain.Job, error)) error {
	return nil
}

func (f *fakeJobs) ListResumable(ctx context.Context) ([]domain.Job, error) {
	return nil, nil
}

type fakeCredentials struct {
	creds map[domain.Capability]*domain.Credential
}

func (f *fakeCredentials) Lookup(ownerID string, capability domain.Capability) (*domain.Credential, error) {
	return f.creds[capability], nil
}

func newTestApp() (*App, *fakeProjects, *fakeJobs) {
	projects := newFakeProjects()
	jobs := newFakeJobs()
	app := &App{
		Projects: projects,
		Jobs:     jobs,
		Credentials: &fakeCredentials{creds: map[domain.Capability]*domain.Credential{
			domain.CapabilityText: {Provider: "static"},
		}},
		Director: director.New(),
		Logger:   zerolog.Nop(),
	}
	return app, projects, jobs
}

func withOwner(r *http.Request, owner string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), owner))
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeEnvelope(t *testing.T, body *bytes.Buffer) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestCreateProject(t *testing.T) {
	app, projects, _ := newTestApp()

	body := `{"name":"MY SHORT FILM","concept":"a lighthouse at dusk","targetDuration":30,"aspectRatio":"16:9"}`
	r := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewBufferString(body))
	r = withOwner(r, "owner-1")
	w := httptest.NewRecorder()

	app.CreateProject(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	env := decodeEnvelope(t, w.Body)
	if !env.Success {
		t.Fatalf("expected success, got error %q", env.Error)
	}
	if len(projects.byID) != 1 {
		t.Fatalf("expected 1 stored project, got %d", len(projects.byID))
	}
	for _, p := range projects.byID {
		if p.OwnerID != "owner-1" {
			t.Errorf("ownerID = %q, want owner-1", p.OwnerID)
		}
		if p.Name != "My Short Film" {
			t.Errorf("name = %q, want title-cased %q", p.Name, "My Short Film")
		}
		if p.Style == "" {
			t.Errorf("expected locale default style to be applied")
		}
	}
}

func TestCreateProject_ValidationError(t *testing.T) {
	app, _, _ := newTestApp()

	body := `{"concept":"missing a name"}`
	r := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewBufferString(body))
	r = withOwner(r, "owner-1")
	w := httptest.NewRecorder()

	app.CreateProject(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, w.Body)
	if env.Success {
		t.Fatalf("expected failure envelope")
	}
}

func TestGetProject_NotFound(t *testing.T) {
	app, _, _ := newTestApp()

	r := httptest.NewRequest(http.MethodGet, "/api/projects/missing", nil)
	r = withOwner(r, "owner-1")
	r = withChiParam(r, "id", "missing")
	w := httptest.NewRecorder()

	app.GetProject(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func seedProject(t *testing.T, projects *fakeProjects, owner string) *domain.Project {
	t.Helper()
	p := &domain.Project{
		ID:             "proj-1",
		OwnerID:        owner,
		Name:           "Test Project",
		Concept:        "a quiet harbor at sunrise",
		TargetDuration: 30,
		AspectRatio:    "16:9",
	}
	projects.byID[p.ID] = p
	return p
}

func TestDirect_NoCredentials(t *testing.T) {
	app, projects, _ := newTestApp()
	seedProject(t, projects, "owner-1")
	app.Credentials = &fakeCredentials{}

	r := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/direct", nil)
	r = withOwner(r, "owner-1")
	r = withChiParam(r, "id", "proj-1")
	w := httptest.NewRecorder()

	app.Direct(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestDirect_Success(t *testing.T) {
	app, projects, _ := newTestApp()
	seedProject(t, projects, "owner-1")

	r := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/direct", nil)
	r = withOwner(r, "owner-1")
	r = withChiParam(r, "id", "proj-1")
	w := httptest.NewRecorder()

	app.Direct(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	env := decodeEnvelope(t, w.Body)
	if !env.Success {
		t.Fatalf("expected success, got error %q", env.Error)
	}
	if projects.byID["proj-1"].Plan == nil {
		t.Fatalf("expected project plan to be persisted")
	}
}

func TestApprove_AlreadyApproved(t *testing.T) {
	app, projects, _ := newTestApp()
	p := seedProject(t, projects, "owner-1")
	p.PlanApproved = true

	r := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/approve", nil)
	r = withOwner(r, "owner-1")
	r = withChiParam(r, "id", "proj-1")
	w := httptest.NewRecorder()

	app.Approve(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestApprove_Success(t *testing.T) {
	app, projects, _ := newTestApp()
	p := seedProject(t, projects, "owner-1")
	p.Plan = &domain.Plan{Title: "t", Narrative: "n", TotalDuration: 30}

	r := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/approve", nil)
	r = withOwner(r, "owner-1")
	r = withChiParam(r, "id", "proj-1")
	w := httptest.NewRecorder()

	app.Approve(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if !projects.byID["proj-1"].PlanApproved {
		t.Fatalf("expected project to be marked approved")
	}
}

func TestGetJob(t *testing.T) {
	app, _, jobs := newTestApp()
	jobs.byID["job-1"] = &domain.Job{
		ID:        "job-1",
		ProjectID: "proj-1",
		OwnerID:   "owner-1",
		Phase:     domain.PhaseGeneratingImages,
		Progress:  40,
		Shots: []domain.ShotRuntime{
			{SceneID: 1, ShotID: 1, Phase: domain.ShotComplete, VideoURL: "https://example.test/v1.mp4"},
		},
	}

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	r = withOwner(r, "owner-1")
	r = withChiParam(r, "id", "job-1")
	w := httptest.NewRecorder()

	app.GetJob(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Shots []shotSummary `json:"shots"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success || len(env.Data.Shots) != 1 || env.Data.Shots[0].URL == "" {
		t.Fatalf("unexpected job snapshot: %+v", env)
	}
}

func TestHealthz_NoDependenciesConfigured(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	app.Healthz(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

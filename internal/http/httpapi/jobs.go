package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/domain"
)

type shotSummary struct {
	SceneID int               `json:"sceneId"`
	ShotID  int               `json:"shotId"`
	Status  domain.ShotPhase  `json:"status"`
	URL     string            `json:"url,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type jobSnapshot struct {
	ID               string        `json:"id"`
	ProjectID        string        `json:"projectId"`
	Phase            domain.JobPhase `json:"phase"`
	Progress         int           `json:"progress"`
	Shots            []shotSummary `json:"shots"`
	FinalArtifactURL string        `json:"finalArtifactUrl,omitempty"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
}

// GetJob handles GET /api/jobs/{id}: the snapshot named in spec.md §6 —
// phase, progress, per-shot summary, finalArtifactUrl.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	shots := make([]shotSummary, len(job.Shots))
	for i, s := range job.Shots {
		shots[i] = shotSummary{
			SceneID: s.SceneID,
			ShotID:  s.ShotID,
			Status:  s.Phase,
			URL:     s.VideoURL,
			Error:   s.ErrorMessage,
		}
	}

	a.ok(w, http.StatusOK, jobSnapshot{
		ID:               job.ID,
		ProjectID:        job.ProjectID,
		Phase:            job.Phase,
		Progress:         job.Progress,
		Shots:            shots,
		FinalArtifactURL: job.FinalArtifactURL,
		ErrorMessage:     job.ErrorMessage,
	})
}

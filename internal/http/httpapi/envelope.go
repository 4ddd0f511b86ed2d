package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"clipforge/internal/domain"
	"clipforge/internal/middleware"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) ok(w http.ResponseWriter, status int, data any) {
	a.writeJSON(w, status, envelope{Success: true, Data: data})
}

func (a *App) fail(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, envelope{Success: false, Error: message})
}

// writeError maps a domain error to the HTTP code table in spec.md §6: 400
// for a malformed plan or request, 401 for a missing credential, 404 for an
// unknown project or job, 500 for anything else. 429 is produced by the
// request-rate-limiting middleware before a handler ever runs, not from a
// domain error, since quota enforcement itself is out of scope.
func (a *App) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrOwnerMismatch) {
		a.fail(w, http.StatusNotFound, "not found")
		return
	}
	if ve, ok := domain.AsValidationError(err); ok {
		a.fail(w, http.StatusBadRequest, ve.Error())
		return
	}
	var nce *domain.NoCredentialsError
	if errors.As(err, &nce) {
		a.fail(w, http.StatusUnauthorized, nce.Error())
		return
	}
	a.Logger.Error().Err(err).Msg("httpapi: internal error")
	a.fail(w, http.StatusInternalServerError, "internal error")
}

// ownerID pulls the authenticated caller's id out of request context. The
// AuthJWT middleware guarantees this is non-empty for every route it guards.
func ownerID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

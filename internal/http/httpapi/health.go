package httpapi

import "net/http"

// Healthz handles GET /healthz: a liveness probe that returns 200 with no
// body once the Job Store connection and Scheduler's Redis client both
// respond to a ping, per spec.md §6.
func (a *App) Healthz(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		if err := a.DB.Ping(r.Context()); err != nil {
			a.Logger.Error().Err(err).Msg("httpapi: healthz db ping failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(r.Context()).Err(); err != nil {
			a.Logger.Error().Err(err).Msg("httpapi: healthz redis ping failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

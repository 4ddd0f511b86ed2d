// Package httpapi implements the request surface from spec.md §6: project
// and job routes speaking a common {success, data?, error?} envelope, with
// ownerId extracted from the bearer token rather than trusted from the body.
package httpapi

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clipforge/internal/director"
	"clipforge/internal/domain"
	"clipforge/internal/queue"
)

// App holds every collaborator a handler needs. It keeps no request state;
// every call re-reads what it needs from the stores it wraps.
type App struct {
	Projects    domain.ProjectRepository
	Jobs        domain.JobStore
	Credentials domain.CredentialLookup
	Director    *director.Director
	Publisher   *queue.Publisher
	Logger      zerolog.Logger

	// DB and Redis back /healthz only; no other handler reads them directly.
	DB    *pgxpool.Pool
	Redis *redis.Client
}

func NewApp(
	projects domain.ProjectRepository,
	jobs domain.JobStore,
	credentials domain.CredentialLookup,
	dir *director.Director,
	publisher *queue.Publisher,
	db *pgxpool.Pool,
	redisClient *redis.Client,
	logger zerolog.Logger,
) *App {
	return &App{
		Projects:    projects,
		Jobs:        jobs,
		Credentials: credentials,
		Director:    dir,
		Publisher:   publisher,
		DB:          db,
		Redis:       redisClient,
		Logger:      logger,
	}
}

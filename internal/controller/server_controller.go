package controller

import (
	"context"
	"time"

	"matchstats/internal/aws"
	"matchstats/internal/cache"
	"matchstats/internal/database"
	"matchstats/internal/rabbitmq"
)

// Component states reported by Readiness
const (
	StateUp       = "up"
	StateDown     = "down"
	StateDisabled = "disabled"
)

// Pinger is anything with a context-aware liveness check
type Pinger interface {
	Health(ctx context.Context) error
}

type ServerController interface {
	Online() string
	// Readiness reports every component's state. The service is ready when
	// the database is up and no enabled cache is down.
	Readiness(ctx context.Context) (map[string]string, bool)
}

type serverController struct {
	db      database.Database
	cache   cache.Cache
	rabbit  rabbitmq.Client
	archive Pinger
	files   aws.FileService
}

// NewServer returns a controller; every component but db may be nil when it
// is disabled in the config.
func NewServer(db database.Database, cache cache.Cache, rabbit rabbitmq.Client, archive Pinger, files aws.FileService) ServerController {
	return &serverController{
		db:      db,
		cache:   cache,
		rabbit:  rabbit,
		archive: archive,
		files:   files,
	}
}

func (sc *serverController) Online() string {
	return "Online"
}

func (sc *serverController) Readiness(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res := map[string]string{
		"database":     state(sc.db != nil, func() error { return sc.db.Health(ctx) }),
		"cache":        state(sc.cache != nil, func() error { return sc.cache.Ping(ctx) }),
		"rabbit":       state(sc.rabbit != nil, func() error { return sc.rabbit.Health() }),
		"archive":      state(sc.archive != nil, func() error { return sc.archive.Health(ctx) }),
		"file_service": state(sc.files != nil, func() error { return sc.files.TestConnection(ctx) }),
	}

	ready := res["database"] == StateUp && res["cache"] != StateDown
	return res, ready
}

func state(enabled bool, check func() error) string {
	if !enabled {
		return StateDisabled
	}
	if err := check(); err != nil {
		return StateDown
	}
	return StateUp
}

package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/decidr-app/decidr-server/internal/httputil"
)

// HealthHandler reports process liveness and dependency reachability.
type HealthHandler struct {
	db  *pgxpool.Pool
	rdb *redis.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

type healthStatus struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// Check handles GET /health. The endpoint stays 200 while the process can
// serve at all; dependency state is reported in the body so probes can choose
// their own strictness.
func (h *HealthHandler) Check(c fiber.Ctx) error {
	status := healthStatus{Status: "ok", Postgres: "ok", Redis: "ok"}

	if err := h.db.Ping(c); err != nil {
		status.Status = "degraded"
		status.Postgres = err.Error()
	}
	if err := h.rdb.Ping(c).Err(); err != nil {
		status.Status = "degraded"
		status.Redis = err.Error()
	}

	return httputil.Success(c, status)
}

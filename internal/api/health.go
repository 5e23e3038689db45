package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	redisclient "github.com/hackgods/telecare/internal/redis"
	"github.com/hackgods/telecare/internal/signaling"
)

type HealthHandler struct {
	pgPool   *pgxpool.Pool
	redis    *redis.Client
	hub      *signaling.Hub
	presence redisclient.Presence
	env      string
	version  string
}

func NewHealthHandler(cfg RouterConfig) *HealthHandler {
	return &HealthHandler{
		pgPool:   cfg.PgPool,
		redis:    cfg.Redis,
		hub:      cfg.Hub,
		presence: cfg.Presence,
		env:      cfg.Env,
		version:  cfg.Version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
	LiveRooms    int64             `json:"liveRooms"`
	LocalPeers   int               `json:"localPeers"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	if h.pgPool != nil {
		pgCtx, pgCancel := context.WithTimeout(ctx, time.Second)
		err := h.pgPool.Ping(pgCtx)
		pgCancel()
		if err != nil {
			deps["postgres"] = "down"
			status = "error"
		} else {
			deps["postgres"] = "ok"
		}
	}

	if h.redis != nil {
		redisCtx, redisCancel := context.WithTimeout(ctx, time.Second)
		err := h.redis.Ping(redisCtx).Err()
		redisCancel()
		if err != nil {
			deps["redis"] = "down"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			deps["redis"] = "ok"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	// Presence counts rooms across instances; fall back to this hub.
	if h.hub != nil {
		resp.LiveRooms = int64(h.hub.RoomCount())
		resp.LocalPeers = h.hub.PeerCount()
	}
	if h.presence != nil && deps["redis"] != "down" {
		if n, err := h.presence.LiveRooms(ctx); err == nil {
			resp.LiveRooms = n
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}

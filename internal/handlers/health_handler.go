package handlers

import (
	"context"
	"net/http"
	"time"
	"ticketsales/internal/store"
	"ticketsales/utils"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	store *store.Store
	redis *redis.Client
}

func NewHealthHandler(s *store.Store, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{store: s, redis: redisClient}
}

// Health - database and cache reachability
func (h *HealthHandler) Health(e *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(e.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := utils.RedisHealthCheck(ctx, h.redis); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		return e.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "checks": checks})
	}
	return e.JSON(http.StatusOK, map[string]any{"status": "healthy", "checks": checks})
}

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loopdesk/wabridge/internal/dedup"
	"github.com/loopdesk/wabridge/internal/retry"
)

type cacheSizer interface {
	CacheSize() int
}

// HealthHandler serves liveness and read-only observability endpoints.
type HealthHandler struct {
	dedup    *dedup.Store
	retry    *retry.Executor
	channels cacheSizer
	contacts cacheSizer
}

// NewHealthHandler creates the health/metrics handler.
func NewHealthHandler(store *dedup.Store, exec *retry.Executor, channels, contacts cacheSizer) *HealthHandler {
	return &HealthHandler{
		dedup:    store,
		retry:    exec,
		channels: channels,
		contacts: contacts,
	}
}

// Register registers the health and metrics routes.
func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/metrics", h.Metrics)
}

// Health reports liveness.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics exposes cache sizes, dedup hit rate, and retry success rate.
// Read-only, no side effects.
func (h *HealthHandler) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"caches": map[string]int{
			"channels": h.channels.CacheSize(),
			"contacts": h.contacts.CacheSize(),
		},
		"dedup": h.dedup.Stats(),
		"retry": h.retry.Stats(),
	})
}

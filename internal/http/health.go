package http

import (
	"net/http"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

// HealthHandler handles GET /health.
type HealthHandler struct {
	cache   *state.Cache
	started time.Time
}

func NewHealthHandler(cache *state.Cache) *HealthHandler {
	return &HealthHandler{cache: cache, started: time.Now()}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := h.cache.Status()
	code := http.StatusOK
	if status == state.StatusError {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, protocol.NewOKResponse(protocol.HealthPayload{
		Status:  string(status),
		Devices: len(h.cache.Devices()),
		Groups:  len(h.cache.Groups()),
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	}))
}

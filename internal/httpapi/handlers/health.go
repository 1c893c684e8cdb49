package handlers

import (
	"context"
	"net/http"
	"os/exec"
	"time"

	"reelrender/internal/httpkit"
)

// Health reports liveness; ?deep=true also checks the renderer binary,
// the settings store and the storage provider.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "reelrender-api",
		"version": h.version,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := map[string]map[string]any{
			"ffmpeg":   h.checkFFmpeg(),
			"settings": h.check(ctx, h.settings.Ping, "backend", h.settings.Backend()),
			"storage":  h.check(ctx, h.sp.Ping, "provider", h.sp.Provider()),
		}
		health["checks"] = checks

		for _, c := range checks {
			if c["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) checkFFmpeg() map[string]any {
	path, err := exec.LookPath(h.ffmpegPath)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok", "path": path}
}

func (h *Handler) check(ctx context.Context, ping func(context.Context) error, key, name string) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok", key: name}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

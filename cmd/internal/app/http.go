package app

import (
	"encoding/json"
	"net/http"
)

// Handler builds the full HTTP surface: operational endpoints plus the
// session gateway, wrapped in the middleware chain. WithRequestID runs
// outermost so every later stage sees the ID.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("GET /metrics", MetricsHandler())

	a.Gateway.Register(mux)

	var h http.Handler = mux
	h = WithMetrics(h)
	h = WithRequestLogging(h, a.Log)
	h = WithCORS(h, a.Config, a.Log)
	h = WithSecurityHeaders(h)
	h = WithRequestID(h)
	return h
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports whether the gateway can do useful work. The
// database check only runs when an audit pool is configured, and the
// backend probe is opt-in since the gateway degrades gracefully without
// it.
func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		if err := PingDB(r.Context(), a.DB); err != nil {
			a.Log.Warn("readyz.db.fail", "error", err)
			writeProbe(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "reason": "database"})
			return
		}
	}

	if a.Config.ReadinessProbeUpstream {
		if err := a.Upstream.Ping(r.Context()); err != nil {
			a.Log.Warn("readyz.upstream.fail", "error", err)
			writeProbe(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "reason": "upstream"})
			return
		}
	}

	writeProbe(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeProbe(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

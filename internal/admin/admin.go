// Package admin exposes the proxy's debug HTTP surface: a liveness probe,
// a runtime-state dump, and a log-level toggle, grounded on the teacher's
// dump-handler-as-http.Handler pattern.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/patsnapops/piam-sub000/internal/state"
)

// HealthHandler answers liveness/readiness probes with the same bare "OK"
// body the original health endpoint returns, plus the last successful
// state-refresh time as a diagnostic header.
type HealthHandler struct {
	State *state.Manager
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.State.CurrentHealth()
	if health.LastSuccessfulUpdateSeen {
		w.Header().Set("X-Piam-Last-State-Update", health.LastSuccessfulUpdateAt.Format(time.RFC3339))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// DebugDumpResponse summarizes the live ProxyState for operators.
type DebugDumpResponse struct {
	Timestamp            time.Time  `json:"timestamp"`
	ProxyHosts           []string   `json:"proxy_hosts"`
	UniKeyEnabled        bool       `json:"uni_key_enabled"`
	UpdateFailedTimes    int32      `json:"update_failed_times"`
	LastSuccessfulUpdate *time.Time `json:"last_successful_update,omitempty"`
}

// DumpHandler serves GET /debug/config with a JSON snapshot of the running
// proxy's extended config and update health.
type DumpHandler struct {
	State *state.Manager
}

func (h *DumpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := h.State.Current()
	health := h.State.CurrentHealth()

	dump := DebugDumpResponse{
		Timestamp:         time.Now(),
		ProxyHosts:        st.ExtendedConfig.ProxyHosts,
		UniKeyEnabled:     st.UniKeyInfo != nil,
		UpdateFailedTimes: health.UpdateFailedTimes,
	}
	if health.LastSuccessfulUpdateSeen {
		t := health.LastSuccessfulUpdateAt
		dump.LastSuccessfulUpdate = &t
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(dump)
}

// DebugToggleHandler serves PUT /_piam_manage_api?debug=on|off, flipping
// the process-wide log level at runtime.
type DebugToggleHandler struct {
	Level *slog.LevelVar
}

func (h *DebugToggleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	debug := r.URL.Query().Get("debug")
	switch debug {
	case "on":
		h.Level.Set(slog.LevelDebug)
		_, _ = w.Write([]byte("debug mode on"))
	case "off":
		h.Level.Set(slog.LevelInfo)
		_, _ = w.Write([]byte("debug mode off"))
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid request"))
	}
}

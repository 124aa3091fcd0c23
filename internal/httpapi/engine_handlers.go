package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lukasbauer/voicegate/internal/engine"
	"go.uber.org/zap"
)

const engineUnavailableMsg = "VOICEVOX Engine is not available"

func (r *Router) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"message":    "VOICEVOX TTS Server is running",
		"engine_url": r.cfg.EngineURL,
	})
}

// handleHealth reports healthy only when the engine answers GET /version with 200.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp, err := r.engine.Version(req.Context())
	if err != nil {
		r.requestLogger(req).Warn("health check failed", zap.Error(err))

		var se *engine.StatusError
		if errors.As(err, &se) {
			writeDetail(w, http.StatusServiceUnavailable, "VOICEVOX Engine is not responding correctly")
			return
		}
		writeDetail(w, http.StatusServiceUnavailable, engineUnavailableMsg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"engine": asJSON(resp.Body),
	})
}

// handleSpeakers passes the engine's speaker catalog through unmodified.
func (r *Router) handleSpeakers(w http.ResponseWriter, req *http.Request) {
	resp, err := r.engine.Speakers(req.Context())
	if err != nil {
		var se *engine.StatusError
		switch {
		case errors.As(err, &se):
			r.requestLogger(req).Warn("engine rejected speakers request", zap.Int("engine_status", se.StatusCode))
			writeDetail(w, se.StatusCode, "Failed to fetch speakers")
		case engine.IsUnavailable(err):
			r.requestLogger(req).Warn("failed to fetch speakers", zap.Error(err))
			writeDetail(w, http.StatusServiceUnavailable, engineUnavailableMsg)
		default:
			r.requestLogger(req).Error("failed to fetch speakers", zap.Error(err))
			captureError(req, err, "fetch speakers")
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

// asJSON embeds b verbatim when it is valid JSON, otherwise as a string.
func asJSON(b []byte) any {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"
	"github.com/lukasbauer/voicegate/internal/engine"
	"github.com/lukasbauer/voicegate/internal/synthesis"
	"github.com/lukasbauer/voicegate/internal/telemetry"
	"go.uber.org/zap"
)

type RouterConfig struct {
	EngineURL string

	// CORS allowed origins; "*" allows any.
	CORSOrigins []string

	// Served at GET /metrics when non-nil.
	MetricsHandler http.Handler
}

// EngineClient is the passthrough part of the engine client.
type EngineClient interface {
	Version(ctx context.Context) (*engine.Response, error)
	Speakers(ctx context.Context) (*engine.Response, error)
}

// Synthesizer runs a validated request through the engine pipeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (*synthesis.Result, error)
}

type Router struct {
	cfg      RouterConfig
	logger   *zap.Logger
	engine   EngineClient
	synth    Synthesizer
	metrics  *telemetry.Metrics
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *zap.Logger, eng EngineClient, synth Synthesizer, metrics *telemetry.Metrics) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		cfg:     cfg,
		logger:  logger,
		engine:  eng,
		synth:   synth,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}
	r.upgrader = websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return origin == "" || allowedOrigin(cfg.CORSOrigins, origin) != ""
		},
	}

	r.routes()
	return withRequestID(r.withAccessLog(r.withSentryRecovery(withCORS(cfg.CORSOrigins, r.mux))))
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /{$}", r.handleRoot)
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /speakers", r.handleSpeakers)

	r.mux.HandleFunc("POST /synthesis", r.handleSynthesisPost)
	r.mux.HandleFunc("GET /synthesis", r.handleSynthesisGet)
	r.mux.HandleFunc("GET /synthesis/ws", r.handleSynthesisWS)

	if r.cfg.MetricsHandler != nil {
		r.mux.Handle("GET /metrics", r.cfg.MetricsHandler)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the {"detail": msg} error shape callers of the gateway expect.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (r *Router) withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				r.requestLogger(req).Error("panic while serving request", zap.Any("panic", err), zap.Stack("stack"))
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				writeDetail(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		if id := requestIDFrom(req.Context()); id != "" {
			scope.SetTag("request_id", id)
		}
		sentry.CaptureException(err)
	})
}

package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/lukasbauer/voicegate/internal/engine"
	"github.com/lukasbauer/voicegate/internal/httpapi"
	"github.com/lukasbauer/voicegate/internal/synthesis"
	"github.com/lukasbauer/voicegate/internal/telemetry"
	"go.uber.org/zap"
)

const serviceName = "voicegate"

type App struct {
	cfg       Config
	logger    *zap.Logger
	engine    *engine.Client
	synth     *synthesis.Orchestrator
	telemetry *telemetry.Provider
	metrics   *telemetry.Metrics
}

func New(cfg Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	if cfg.MetricsEnabled {
		p, err := telemetry.Setup(context.Background(), serviceName, cfg.Environment)
		if err != nil {
			return nil, err
		}
		m, err := telemetry.NewMetrics(p.Meter())
		if err != nil {
			_ = p.Shutdown(context.Background())
			return nil, err
		}
		a.telemetry = p
		a.metrics = m
	}

	// Shared HTTP client for engine calls. Per-call deadlines are applied by the
	// engine client, so the client itself has no overall timeout.
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10, // the engine is a single host
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	var onCall engine.CallObserver
	if a.metrics != nil {
		onCall = a.metrics.RecordEngineCall
	}
	eng, err := engine.NewClient(engine.Config{
		BaseURL:          cfg.EngineURL,
		HTTPClient:       httpClient,
		QueryTimeout:     cfg.QueryTimeout,
		SynthesisTimeout: cfg.SynthesisTimeout,
		VersionTimeout:   cfg.HealthTimeout,
		SpeakersTimeout:  cfg.SpeakersTimeout,
		MaxResponseBytes: cfg.MaxAudioBytes,
		OnCall:           onCall,
	})
	if err != nil {
		if a.telemetry != nil {
			_ = a.telemetry.Shutdown(context.Background())
		}
		return nil, err
	}
	a.engine = eng
	a.synth = synthesis.New(eng, logger.Named("synthesis"))

	return a, nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		EngineURL:   a.engine.BaseURL(),
		CORSOrigins: a.cfg.CORSOrigins,
	}
	if a.telemetry != nil {
		routerCfg.MetricsHandler = a.telemetry.Handler()
	}
	return httpapi.NewRouter(routerCfg, a.logger.Named("http"), a.engine, a.synth, a.metrics)
}

func (a *App) Close(ctx context.Context) error {
	if a.telemetry != nil {
		return a.telemetry.Shutdown(ctx)
	}
	return nil
}

package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const meterName = "github.com/lukasbauer/voicegate"

// Provider owns the meter provider and the Prometheus scrape handler.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	handler       http.Handler
}

// Setup builds a meter provider exporting through a dedicated Prometheus registry.
func Setup(ctx context.Context, serviceName, environment string) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("deployment.environment", environment),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return &Provider{
		meterProvider: mp,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Meter returns the gateway's meter.
func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(meterName)
}

// Handler serves the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}

// Metrics holds the gateway's instruments.
type Metrics struct {
	requests       metric.Int64Counter
	duration       metric.Float64Histogram
	engineDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("gateway.synthesis.requests",
		metric.WithDescription("Synthesis requests by outcome."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("gateway.synthesis.duration",
		metric.WithDescription("End-to-end synthesis latency."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	engineDuration, err := meter.Float64Histogram("gateway.engine.call.duration",
		metric.WithDescription("Latency of outbound engine calls."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		requests:       requests,
		duration:       duration,
		engineDuration: engineDuration,
	}, nil
}

// RecordSynthesis counts one finished synthesis request.
func (m *Metrics) RecordSynthesis(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordEngineCall matches engine.CallObserver.
func (m *Metrics) RecordEngineCall(op string, status int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case status == 0 && err != nil:
		outcome = "unavailable"
	case status != http.StatusOK:
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	m.engineDuration.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ncecere/imagegen_gateway/internal/config"
)

const (
	serviceName      = "imagegen-gateway"
	metricsNamespace = "imagegen"
)

type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promExporter   *prometheus.Exporter
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	attemptCounter     *promreg.CounterVec
	attemptLatency     *promreg.HistogramVec
	generationCounter  *promreg.CounterVec
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		endpoint, opts := otlpEndpoint(cfg.OTLPEndpoint)
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))

		client := otlptracegrpc.NewClient(opts...)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promExporter = promExporter
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		if err := provider.registerCollectors(registry); err != nil {
			return nil, err
		}
	}

	return provider, nil
}

// otlpEndpoint strips the scheme from endpoint; plain http and bare host:port
// targets use an insecure connection.
func otlpEndpoint(raw string) (string, []otlptracegrpc.Option) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	var opts []otlptracegrpc.Option
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
		opts = append(opts, otlptracegrpc.WithInsecure())
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	default:
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return endpoint, opts
}

func (p *Provider) registerCollectors(registry *promreg.Registry) error {
	httpRequests := promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpLatency := promreg.NewHistogramVec(
		promreg.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "route", "status"},
	)
	attempts := promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by outcome.",
		},
		[]string{"provider", "outcome"},
	)
	attemptLatency := promreg.NewHistogramVec(
		promreg.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Duration of single provider attempts.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		},
		[]string{"provider", "outcome"},
	)
	generations := promreg.NewCounterVec(
		promreg.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "generations_total",
			Help:      "Completed generations by result source.",
		},
		[]string{"source"},
	)

	for _, c := range []promreg.Collector{httpRequests, httpLatency, attempts, attemptLatency, generations} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}

	p.httpRequestCounter = httpRequests
	p.httpRequestLatency = httpLatency
	p.attemptCounter = attempts
	p.attemptLatency = attemptLatency
	p.generationCounter = generations
	return nil
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil {
		return
	}

	statusLabel := strconv.Itoa(status)

	if p.httpRequestCounter != nil {
		p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	}

	if p.httpRequestLatency != nil {
		p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
	}
}

// RecordProviderAttempt counts one provider attempt and its latency.
func (p *Provider) RecordProviderAttempt(provider, outcome string, duration time.Duration) {
	if p == nil {
		return
	}
	if p.attemptCounter != nil {
		p.attemptCounter.WithLabelValues(provider, outcome).Inc()
	}
	if p.attemptLatency != nil {
		p.attemptLatency.WithLabelValues(provider, outcome).Observe(duration.Seconds())
	}
}

func (p *Provider) RecordGeneration(source string) {
	if p == nil || p.generationCounter == nil {
		return
	}
	p.generationCounter.WithLabelValues(source).Inc()
}

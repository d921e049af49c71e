// Package observability sets up OpenTelemetry metrics and tracing for workhub and
// instruments its HTTP surface.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Version is reported as service.version.
var Version = "dev"

// shutdownTimeout is the maximum time to wait for shutdown.
const shutdownTimeout = 5 * time.Second

type shutdowner interface {
	Shutdown(context.Context) error
}

// Telemetry holds OTel providers and configuration.
type Telemetry struct {
	config         Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metrics        *Metrics
	closers        []shutdowner
	grpcConn       *grpc.ClientConn
	shutdownOnce   sync.Once
	shutdownErr    error
}

// Option customises Init.
type Option func(*options)

type options struct {
	stdout io.Writer
}

// WithStdoutWriter sets where the stdout exporter writes. Defaults to os.Stderr.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// Init initializes OpenTelemetry with the given configuration. A disabled
// configuration yields no-op providers.
func Init(ctx context.Context, cfg Config, opts ...Option) (*Telemetry, error) {
	o := options{stdout: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	tel := &Telemetry{config: cfg}
	if !cfg.ShouldEnable() {
		m, err := InitMetrics(tel.MeterProvider())
		if err != nil {
			return nil, err
		}
		tel.metrics = m
		return tel, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.Exporter == "otlp" {
		conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP client: %w", err)
		}
		tel.grpcConn = conn
	}

	if cfg.TracesEnabled {
		tp, err := initTracerProvider(ctx, cfg, res, tel.grpcConn, o.stdout)
		if err != nil {
			tel.abort(ctx)
			return nil, err
		}
		tel.tracerProvider = tp
		tel.closers = append(tel.closers, tp)
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, err := initMeterProvider(ctx, cfg, res, tel.grpcConn, o.stdout)
		if err != nil {
			tel.abort(ctx)
			return nil, err
		}
		tel.meterProvider = mp
		tel.closers = append(tel.closers, mp)
		otel.SetMeterProvider(mp)
	}

	m, err := InitMetrics(tel.MeterProvider())
	if err != nil {
		tel.abort(ctx)
		return nil, err
	}
	tel.metrics = m
	return tel, nil
}

func (t *Telemetry) abort(ctx context.Context) {
	_ = t.Shutdown(ctx)
}

// TracerProvider returns the tracer provider (or noop if disabled).
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.tracerProvider != nil {
		return t.tracerProvider
	}
	return tracenoop.NewTracerProvider()
}

// MeterProvider returns the meter provider (or noop if disabled).
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t.meterProvider != nil {
		return t.meterProvider
	}
	return metricnoop.NewMeterProvider()
}

// Metrics returns the HTTP metric instruments.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Config returns the telemetry configuration.
func (t *Telemetry) Config() Config {
	return t.config
}

// Shutdown flushes and closes all providers. Later calls return the first result.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.shutdownOnce.Do(func() {
		var errs []error
		for _, c := range t.closers {
			if err := c.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if t.grpcConn != nil {
			if err := t.grpcConn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		t.shutdownErr = errors.Join(errs...)
	})
	return t.shutdownErr
}

// Cleanup is a convenience function for defer cleanup.
func (t *Telemetry) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = t.Shutdown(ctx)
}

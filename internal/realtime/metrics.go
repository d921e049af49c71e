// internal/realtime/metrics.go
package realtime

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry carries the providers realtime instruments are created from. Nil
// providers fall back to no-ops.
type Telemetry struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// metrics holds realtime instruments.
type metrics struct {
	connections      metric.Int64UpDownCounter
	memberships      metric.Int64Counter
	persisted        metric.Int64Counter
	persistFailures  metric.Int64Counter
	deliveries       metric.Int64Counter
	deliveryFailures metric.Int64Counter
	fanoutDuration   metric.Float64Histogram
}

var (
	outcomeJoined = metric.WithAttributes(attribute.String("change", "joined"))
	outcomeLeft   = metric.WithAttributes(attribute.String("change", "left"))
)

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("workhub/realtime")

	m := &metrics{}
	var err error

	m.connections, err = meter.Int64UpDownCounter(
		"realtime.connections",
		metric.WithDescription("Open realtime connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections counter: %w", err)
	}

	m.memberships, err = meter.Int64Counter(
		"realtime.membership_changes",
		metric.WithDescription("Channel joins and leaves"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership counter: %w", err)
	}

	m.persisted, err = meter.Int64Counter(
		"realtime.messages_persisted",
		metric.WithDescription("Messages durably stored"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create persisted counter: %w", err)
	}

	m.persistFailures, err = meter.Int64Counter(
		"realtime.persist_failures",
		metric.WithDescription("Sends rejected because the message could not be stored"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create persist failure counter: %w", err)
	}

	m.deliveries, err = meter.Int64Counter(
		"realtime.deliveries",
		metric.WithDescription("Events pushed to recipient connections"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deliveries counter: %w", err)
	}

	m.deliveryFailures, err = meter.Int64Counter(
		"realtime.delivery_failures",
		metric.WithDescription("Events dropped for a recipient"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery failure counter: %w", err)
	}

	m.fanoutDuration, err = meter.Float64Histogram(
		"realtime.fanout_duration",
		metric.WithDescription("Time to push one event to every recipient"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fanout histogram: %w", err)
	}

	return m, nil
}

// noopMetrics returns instruments that record nothing, for components built without
// a hub.
func noopMetrics() *metrics {
	return &metrics{
		connections:      noop.Int64UpDownCounter{},
		memberships:      noop.Int64Counter{},
		persisted:        noop.Int64Counter{},
		persistFailures:  noop.Int64Counter{},
		deliveries:       noop.Int64Counter{},
		deliveryFailures: noop.Int64Counter{},
		fanoutDuration:   noop.Float64Histogram{},
	}
}

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	return tp.Tracer("workhub/realtime")
}

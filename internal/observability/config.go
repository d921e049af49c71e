package observability

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds OpenTelemetry configuration.
type Config struct {
	// Exporter type: "none", "stdout", or "otlp"
	Exporter string `env:"WORKHUB_OTEL_EXPORTER" validate:"oneof=none stdout otlp"`

	// OTLP gRPC endpoint (for otlp exporter)
	Endpoint string `env:"WORKHUB_OTEL_ENDPOINT" validate:"required_if=Exporter otlp"`

	ServiceName string `env:"WORKHUB_OTEL_SERVICE" validate:"required"`

	// Trace sampling rate (0.0 to 1.0)
	SampleRate float64 `env:"WORKHUB_OTEL_SAMPLE_RATE" validate:"gte=0,lte=1"`

	MetricsEnabled bool `env:"WORKHUB_OTEL_METRICS"`
	TracesEnabled  bool `env:"WORKHUB_OTEL_TRACES"`
}

// NewConfig returns default configuration.
func NewConfig() Config {
	return Config{
		Exporter:       "none",
		Endpoint:       "localhost:4317",
		ServiceName:    "workhub",
		SampleRate:     0.1,
		MetricsEnabled: true,
		TracesEnabled:  true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}

// ShouldEnable returns true if OTel should be initialized.
func (c Config) ShouldEnable() bool {
	return c.Exporter != "none" && (c.MetricsEnabled || c.TracesEnabled)
}

// internal/realtime/config.go
package realtime

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds realtime configuration. Fields carry env tags so the serve command can
// overlay WORKHUB_* variables onto DefaultConfig.
type Config struct {
	// Outbound frames queued per connection before pushes start waiting.
	SendBufferSize int `env:"WORKHUB_SEND_BUFFER" validate:"min=1"`

	// Bound on persisting one message, retries included.
	PersistTimeout time.Duration `env:"WORKHUB_PERSIST_TIMEOUT" validate:"gt=0"`
	PersistRetries int           `env:"WORKHUB_PERSIST_RETRIES" validate:"min=1,max=10"`

	// Bound on pushing one event to one recipient.
	DeliveryTimeout   time.Duration `env:"WORKHUB_DELIVERY_TIMEOUT" validate:"gt=0"`
	FanoutConcurrency int           `env:"WORKHUB_FANOUT_CONCURRENCY" validate:"min=1"`

	MaxBodyBytes int `env:"WORKHUB_MAX_BODY_BYTES" validate:"min=1"`
	Shards       int `env:"WORKHUB_SHARDS" validate:"min=1,max=4096"`

	// Inbound frames allowed per RateInterval per connection. 0 disables limiting.
	RateLimit    int           `env:"WORKHUB_RATE_LIMIT" validate:"min=0"`
	RateInterval time.Duration `env:"WORKHUB_RATE_INTERVAL" validate:"gt=0"`

	// Largest page served by the history endpoint.
	HistoryLimit int `env:"WORKHUB_HISTORY_LIMIT" validate:"min=1,max=1000"`

	// Comma separated browser origins allowed to open websockets. Empty allows all.
	AllowedOrigins string `env:"WORKHUB_ALLOWED_ORIGINS"`
}

// DefaultConfig returns the default realtime configuration.
func DefaultConfig() Config {
	return Config{
		SendBufferSize:    256,
		PersistTimeout:    3 * time.Second,
		PersistRetries:    3,
		DeliveryTimeout:   250 * time.Millisecond,
		FanoutConcurrency: 32,
		MaxBodyBytes:      16 * 1024,
		Shards:            DefaultShards,
		RateLimit:         20,
		RateInterval:      time.Second,
		HistoryLimit:      200,
	}
}

var validate = validator.New()

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid realtime config: %w", err)
	}
	return nil
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.PersistRetries <= 0 {
		c.PersistRetries = d.PersistRetries
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = d.DeliveryTimeout
	}
	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = d.FanoutConcurrency
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.Shards <= 0 {
		c.Shards = d.Shards
	}
	if c.RateInterval <= 0 {
		c.RateInterval = d.RateInterval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	return c
}

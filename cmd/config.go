// cmd/config.go
package cmd

import (
	"errors"
	"fmt"
	"os"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/markb/workhub/internal/log"
	"github.com/markb/workhub/internal/observability"
	"github.com/markb/workhub/internal/realtime"
	"github.com/markb/workhub/internal/server"
	"github.com/markb/workhub/internal/store"
	"github.com/spf13/cobra"
)

var validate = validator.New()

const defaultJWTSecret = "super-secret-jwt-key-please-change-in-production"

// appConfig gathers every component's configuration.
// Priority: CLI flags > environment variables (.env included) > defaults
type appConfig struct {
	JWTSecret string `env:"WORKHUB_JWT_SECRET"`

	Log       log.Config
	Store     store.Config
	Server    server.Config
	HTTPS     server.HTTPSConfig
	Realtime  realtime.Config
	Telemetry observability.Config
}

func defaultAppConfig() *appConfig {
	return &appConfig{
		Log:       log.DefaultConfig(),
		Store:     store.DefaultConfig(),
		Server:    server.DefaultConfig(),
		HTTPS:     server.DefaultHTTPSConfig(),
		Realtime:  realtime.DefaultConfig(),
		Telemetry: observability.NewConfig(),
	}
}

// loadConfig reads .env if present, overlays the environment onto the defaults and
// then applies the flags the command defines.
func loadConfig(cmd *cobra.Command) (*appConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaultAppConfig()
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Store.SQLitePath, _ = flags.GetString("db")
	}
	if flags.Changed("store") {
		cfg.Store.Backend, _ = flags.GetString("store")
	}
	if flags.Changed("badger-dir") {
		cfg.Store.BadgerDir, _ = flags.GetString("badger-dir")
	}
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("https") {
		cfg.HTTPS.Domain, _ = flags.GetString("https")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaultJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every component's configuration before anything is opened.
func (c *appConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.HTTPS.Enabled() {
		if err := server.ValidateDomain(c.HTTPS.Domain); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "sqlite", "Message store backend: sqlite or badger")
	cmd.Flags().String("db", "data.db", "Path to database file")
	cmd.Flags().String("badger-dir", "data.badger", "Badger data directory")
}

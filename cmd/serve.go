// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markb/workhub/internal/auth"
	"github.com/markb/workhub/internal/log"
	"github.com/markb/workhub/internal/observability"
	"github.com/markb/workhub/internal/realtime"
	"github.com/markb/workhub/internal/server"
	"github.com/markb/workhub/internal/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Workhub server",
	Long:  `Starts the HTTP server with the realtime websocket endpoint and the history API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if err := log.Init(cfg.Log); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		defer log.Close()

		if cfg.JWTSecret == defaultJWTSecret {
			log.Warn("using default JWT secret, set WORKHUB_JWT_SECRET in production")
		}

		st, err := store.Open(cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open message store: %w", err)
		}
		defer st.Close()

		ctx := context.Background()
		tel, err := observability.Init(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer tel.Cleanup()

		authSvc := auth.NewService(cfg.JWTSecret)
		rt, err := realtime.NewService(st, server.Authenticator(authSvc), cfg.Realtime, realtime.Telemetry{
			MeterProvider:  tel.MeterProvider(),
			TracerProvider: tel.TracerProvider(),
		})
		if err != nil {
			return err
		}

		srv := server.New(cfg.Server, authSvc, rt, tel)

		errCh := make(chan error, 1)
		go func() {
			if cfg.HTTPS.Enabled() {
				errCh <- srv.ListenAndServeTLS(cfg.HTTPS)
				return
			}
			errCh <- srv.ListenAndServe()
		}()

		log.Info("workhub started",
			"addr", cfg.Server.Addr,
			"https", cfg.HTTPS.Domain,
			"store", cfg.Store.Backend,
			"websocket", "/realtime/v1/websocket",
			"history", "/api/v1/channels/{channel}/messages",
		)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case s := <-sig:
			log.Info("shutting down", "signal", s.String())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addStoreFlags(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().String("https", "", "Domain to serve over HTTPS with Let's Encrypt")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().String("log-format", "", "Log format: text or json")
}

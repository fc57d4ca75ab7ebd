package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sagarc03/stashbox/config"
	stashboxhttp "github.com/sagarc03/stashbox/http"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the stashbox HTTP server.

Both token.secret (STASHBOX_TOKEN_SECRET) and auth.jwt_secret
(STASHBOX_AUTH_JWT_SECRET) must be set, each at least 32 bytes long.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5708, "HTTP server port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.Token.Secret == "" {
		return errors.New("token.secret is required (env: STASHBOX_TOKEN_SECRET)")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (env: STASHBOX_AUTH_JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, cfg.Database.AutoMigrate, true)
	if err != nil {
		return err
	}
	defer b.Close()

	service, err := b.service(cfg)
	if err != nil {
		return err
	}

	auth, err := stashboxhttp.NewOwnerAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("create owner auth: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := stashboxhttp.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	handler := stashboxhttp.NewHandler(&stashboxhttp.HandlerConfig{
		Auth:          auth,
		CORS:          cfg.CORS,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		PublicURL:     cfg.Server.PublicURL,
		Metrics:       metrics,
		Gatherer:      reg,
		Health:        b.db.Ping,
	}, service)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "database", cfg.Database.Type, "storage", cfg.Storage.Path)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

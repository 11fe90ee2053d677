package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewpillar/sponsorpay"
	"github.com/andrewpillar/sponsorpay/internal/config"
	"github.com/andrewpillar/sponsorpay/internal/server"
	"github.com/andrewpillar/sponsorpay/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the payments API",
		RunE:  runServe,
	}

	cmd.Flags().String("addr", "", "address to listen on, overrides http.addr")

	return cmd
}

// newService builds the payment service over the given database, along with
// the dispatcher delivering its notifications. The dispatcher must be closed
// once the service is no longer used.
func newService(cfg *config.Config, db *sql.DB, log *slog.Logger) (*sponsorpay.Service, *sponsorpay.Dispatcher) {
	hc := &http.Client{
		Timeout:   cfg.ProviderTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	store := sponsorpay.PSQL{DB: db}

	resolver := sponsorpay.StoreResolver{
		Organizers:   store,
		Sponsorships: store,
		WebhookURL:   cfg.Notify.WebhookURL,
	}

	dispatcher := sponsorpay.NewDispatcher(sponsorpay.NewWebhookSender(hc), resolver, cfg.Notify.Workers, cfg.Notify.QueueSize, log)

	svc := sponsorpay.New(cfg.Payments(), store, store, dispatcher,
		sponsorpay.WithHTTPClient(hc),
		sponsorpay.WithLogger(log),
	)
	return svc, dispatcher
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)

	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.Default()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Otel.Endpoint)

	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	db, err := openDB(cfg.Database)

	if err != nil {
		return err
	}
	defer db.Close()

	svc, dispatcher := newService(cfg, db, log)

	gin.SetMode(gin.ReleaseMode)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.New(svc, cfg.FrontendURL, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)

	go func() {
		log.InfoContext(ctx, "serving payments api",
			slog.String("addr", cfg.HTTP.Addr),
			slog.String("environment", cfg.Environment),
		)
		errs <- srv.ListenAndServe()
	}()

	var serveErr error

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		log.InfoContext(ctx, "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(
		serveErr,
		srv.Shutdown(shutdownCtx),
		dispatcher.Close(shutdownCtx),
		shutdownTracing(shutdownCtx),
	)
}

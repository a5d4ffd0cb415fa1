package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/cli"
	httpAdapter "github.com/aretw0/callflow/pkg/adapters/http"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the versioned document store API (used by the remote backend),
the lead index, server-side flow sessions with an SSE event stream and
Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics := observability.NewMetrics()
		app, err := loadApp(cmd.Context(), cmd, cli.WithMetrics(metrics), cli.WithWriteAuth())
		if err != nil {
			return err
		}
		defer app.Close()

		addr := app.Config.Listen
		if v, _ := cmd.Flags().GetString("listen"); v != "" {
			addr = v
		}

		streams := httpAdapter.NewStreamManager()
		client := app.Client(callflow.WithObserver(observability.Aggregate(
			streams.Observe,
			metrics.Observe,
			func(e domain.Event) {
				app.Logger.Debug("event", "type", e.Type, "identity", e.Identity)
			},
		)))
		manager := client.NewManager(managerOptions(app)...)

		srv := &http.Server{
			Addr: addr,
			Handler: httpAdapter.NewHandler(
				httpAdapter.WithStore(app.Backend.Store),
				httpAdapter.WithSessions(manager),
				httpAdapter.WithCollection(app.Config.Collection),
				httpAdapter.WithMetrics(metrics.Handler()),
				httpAdapter.WithStreams(streams),
				httpAdapter.WithLogger(app.Logger),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Starting callflow server on %s (collection %q, %s store)\n",
				srv.Addr, app.Config.Collection, app.Config.Store.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			fmt.Println("callflow server stopped gracefully")
			return nil
		}
	},
}

func managerOptions(app *cli.App) []session.Option {
	return []session.Option{
		session.WithLocker(app.Backend.Locker),
		session.WithLockTTL(lockTTL(app.Config.Store.LockTTL)),
		session.WithIdleTimeout(idleTimeout(app.Config.SessionIdleTimeout)),
		session.WithLogger(app.Logger),
	}
}

func lockTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return session.DefaultLockTTL
	}
	return ttl
}

func idleTimeout(d time.Duration) time.Duration {
	switch {
	case d < 0:
		return 0
	case d == 0:
		return session.DefaultIdleTimeout
	default:
		return d
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (default from config, :8080)")
}

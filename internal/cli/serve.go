package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Davincible/polypasshash/internal/server"
	"github.com/Davincible/polypasshash/pkg/metrics"
	"github.com/Davincible/polypasshash/pkg/passwords"
	"github.com/Davincible/polypasshash/pkg/ratelimit"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	var (
		listen    string
		unlockers []string
		threshold int
		noMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the password file over HTTP",
		Long: `Serve logins for the password file over HTTP.

The file starts locked unless --unlock names accounts whose passwords are
entered at startup. While locked, logins are partially verified and the
store can be unlocked with POST /v1/unlock. POST /v1/accounts needs the
passwords of accounts holding at least threshold shares in its
"authorization" list, and new accounts are written back to the file.

Endpoints:
  GET  /health
  GET  /metrics
  GET  /v1/status
  POST /v1/login
  POST /v1/unlock
  GET  /v1/accounts
  POST /v1/accounts`,
		Example: `  # Serve locked on the configured address
  pph serve

  # Unlock at startup and listen on all interfaces
  pph serve --listen :8420 --unlock admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			cfg := e.cfg.GetConfig()

			if !cmd.Flags().Changed("listen") {
				listen = cfg.Server.Listen
			}

			var m *metrics.Metrics
			var opts []passwords.Option
			if cfg.Server.Metrics && !noMetrics {
				m = metrics.New()
				opts = append(opts, passwords.WithObserver(m))
			}

			store, err := e.loadStore(threshold, opts...)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(unlockers) > 0 {
				if err := e.unlock(store, unlockers); err != nil {
					return err
				}
			}

			limiter := ratelimit.New(&ratelimit.Config{
				RequestsPerMinute: cfg.Server.LoginsPerMinute,
				Burst:             cfg.Server.LoginBurst,
			})
			defer limiter.Stop()

			srv, err := server.New(&server.Config{
				Addr:              listen,
				Store:             store,
				File:              e.file,
				Metrics:           m,
				Logger:            e.logger,
				Limiter:           limiter,
				MinPasswordLength: cfg.Security.MinPasswordLength,
				ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
				WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
				ShutdownTimeout:   time.Duration(cfg.Server.ShutdownSec) * time.Second,
			})
			if err != nil {
				return err
			}

			state := "locked"
			if store.IsUnlocked() {
				state = "unlocked"
			}
			color.New(color.FgGreen, color.Bold).Fprintf(e.out, "✓ Serving %s on %s (%s)\n",
				e.file.Path(), srv.Addr(), state)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from config)")
	cmd.Flags().StringArrayVar(&unlockers, "unlock", nil, "Account whose password unlocks the file at startup, repeatable")
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "Expected threshold (default from the file)")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Disable the /metrics endpoint")

	return cmd
}

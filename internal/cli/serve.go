package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/flowbook/internal/config"
	"github.com/soyeahso/flowbook/internal/gateway"
	"github.com/soyeahso/flowbook/internal/hooks"
	"github.com/soyeahso/flowbook/internal/logging"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the flow endpoint server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log = logging.NewWithStyle(nil, resolveLogLevel(cfg.Logging.Level), cfg.Logging.ConsoleStyle)

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if a.cache != nil {
				if err := a.cache.Ping(ctx); err != nil {
					log.Warn().Err(err).Msg("settings cache unreachable, reading through to the database")
				} else {
					log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("settings cache connected")
				}
			}
			if !a.platform.Configured() {
				log.Warn().Msg("platform credentials not set, public keys will not be registered")
			}
			if cfg.Platform.AppSecret == "" {
				log.Warn().Msg("platform.appSecret not set, request signatures are not verified")
			}

			a.hooks.On(hooks.EventBookingConfirmed, "booking-ledger", a.recordBooking)

			// The calendar client outlives any single request, so it gets a
			// context that is not cancelled by the signal.
			cal := a.calendarClient(context.Background())

			srv := gateway.New(cfg.Server, a.machine(cal), a.keys, log,
				gateway.WithHooks(a.hooks),
				gateway.WithMetrics(a.metrics),
				gateway.WithAppSecret(cfg.Platform.AppSecret),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

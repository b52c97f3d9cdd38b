package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/gateway"
	"github.com/soyeahso/rcmesh/internal/hooks"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/metrics"
	"github.com/spf13/cobra"
)

func newPostOfficeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "postoffice",
		Aliases: []string{"po"},
		Short:   "Manage the rcmesh post office hub",
	}

	cmd.AddCommand(newPostOfficeRunCmd())
	return cmd
}

func newPostOfficeRunCmd() *cobra.Command {
	var (
		port           int
		bind           string
		replyTimeoutMs int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the post office hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				cfg.PostOffice.Port = port
			}
			if bind != "" {
				cfg.PostOffice.Bind = bind
			}
			if cmd.Flags().Changed("reply-timeout") {
				cfg.PostOffice.ReplyTimeoutMs = replyTimeoutMs
			}

			if err := validate(config.Validate(&cfg)); err != nil {
				return err
			}

			hookMgr := hooks.NewManager(log)
			hookMgr.On(hooks.EventPostOfficeStart, "log", logHook(log))
			hookMgr.On(hooks.EventPostOfficeStop, "log", logHook(log))

			opts := []gateway.ServerOption{gateway.WithHooks(hookMgr)}
			if cfg.Metrics.Enabled {
				opts = append(opts, gateway.WithMetrics(metrics.New()))
			}

			srv := gateway.New(cfg, log, opts...)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override post office port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().IntVar(&replyTimeoutMs, "reply-timeout", 0, "override personal reply timeout in milliseconds (0 waits forever)")

	return cmd
}

// logHook records hook events at debug level.
func logHook(l *logging.Logger) hooks.Handler {
	return func(ctx context.Context, p hooks.Payload) error {
		l.Debug().Str("event", p.Event).Interface("data", p.Data).Msg("hook")
		return nil
	}
}

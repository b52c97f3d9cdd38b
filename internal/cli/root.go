package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	logFlags []string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rcmesh",
		Short: "rcmesh: remote command channels between game clients",
		Long: "rcmesh connects cooperating client processes through a post office hub " +
			"and relays commands over global, server, group, raid, zone, class and custom channels.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.rcmesh/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")
	cmd.PersistentFlags().StringSliceVar(&logFlags, "log-flags", nil, "message categories to log (error, send, receive, connections, all)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newPostOfficeCmd())
	cmd.AddCommand(newClientCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newChannelsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig reads the config file and rebuilds the logger from its logging
// section. Command-line flags win over the file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}

	level := logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	names := logFlags
	if len(names) == 0 {
		names = cfg.Logging.Flags
	}
	flags, unknown := logging.ParseFlags(names)
	log = logging.New(nil, level).WithFlags(flags)
	if len(unknown) > 0 {
		log.Warn().Str("flags", strings.Join(unknown, ",")).Msg("ignoring unknown log flags")
	}
	return cfg, nil
}

// validate logs every issue and fails if there are any.
func validate(issues []config.ValidationIssue) error {
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

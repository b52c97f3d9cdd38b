package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/soyeahso/rcmesh/internal/remote"
	"github.com/soyeahso/rcmesh/internal/store"
	"github.com/spf13/cobra"
)

func newChannelsCmd() *cobra.Command {
	var (
		all     bool
		storeOf string
	)

	cmd := &cobra.Command{
		Use:   "channels [scope]",
		Short: "List persisted autojoin flags",
		Long: "Lists the custom channels remembered for a scope (server.character). " +
			"Without a scope the configured client identity is used; --all lists every scope.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if storeOf != "" {
				cfg.Subscriptions.Store = storeOf
			}

			subs, err := store.Open(cfg.Subscriptions, paths.SubscriptionsPath(cfg.Subscriptions), log)
			if err != nil {
				return err
			}
			defer subs.Close()

			ctx := cmd.Context()
			var scopes []string
			switch {
			case all:
				if scopes, err = subs.Scopes(ctx); err != nil {
					return err
				}
			case len(args) == 1:
				scopes = []string{args[0]}
			default:
				id := cfg.Client.Identity
				if id.Server == "" || id.Character == "" {
					return fmt.Errorf("no scope given and client identity is not configured")
				}
				scopes = []string{remote.ConfigScope(id.Server, id.Character)}
			}
			return printSubscriptions(ctx, cmd.OutOrStdout(), subs, scopes)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list every scope")
	cmd.Flags().StringVar(&storeOf, "store", "", "override subscription store (sqlite, bolt, memory)")

	return cmd
}

func printSubscriptions(ctx context.Context, w io.Writer, subs store.Subscriptions, scopes []string) error {
	if len(scopes) == 0 {
		fmt.Fprintln(w, "No persisted channels.")
		return nil
	}
	for _, scope := range scopes {
		list, err := subs.List(ctx, scope)
		if err != nil {
			return fmt.Errorf("listing %s: %w", scope, err)
		}
		fmt.Fprintf(w, "%s:\n", scope)
		if len(list) == 0 {
			fmt.Fprintln(w, "  (none)")
			continue
		}
		for _, s := range list {
			mode := "noauto"
			if s.AutoJoin {
				mode = "auto"
			}
			fmt.Fprintf(w, "  %-20s %s\n", s.Channel, mode)
		}
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/domain"
	"github.com/soyeahso/rcmesh/internal/postoffice"
	"github.com/soyeahso/rcmesh/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show rcmesh status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s\n\n", version.Product(""))

			// Show paths
			fmt.Printf("Config:      %s\n", paths.Config)
			fmt.Printf("Data:        %s\n", paths.Data)
			fmt.Println()

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Println("Config:      not found (using defaults)")
			}
			cfg, err := loadConfig()
			if err != nil {
				fmt.Printf("Config:      error loading: %v\n", err)
				return nil
			}

			po := cfg.PostOffice
			auth := "none"
			if po.Auth.Token != "" || os.Getenv("RCMESH_POSTOFFICE_TOKEN") != "" {
				auth = "token"
			}
			fmt.Printf("Post office: port=%d bind=%s auth=%s tls=%v replyTimeout=%dms\n",
				po.Port, po.Bind, auth, po.TLS.Enabled, po.ReplyTimeoutMs)

			id := cfg.Client.Identity
			fmt.Printf("Client:      url=%s transport=%s identity=%s/%s class=%s\n",
				cfg.Client.URL, cfg.Client.Transport, id.Server, id.Character, id.Class)
			fmt.Printf("Store:       %s (%s)\n", cfg.Subscriptions.Store, paths.SubscriptionsPath(cfg.Subscriptions))

			if cfg.Notify.IRC != nil {
				irc := cfg.Notify.IRC
				fmt.Printf("IRC:         server=%s nick=%s channel=%s tls=%v\n",
					irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			} else {
				fmt.Println("IRC:         (not configured)")
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			if probe {
				fmt.Println()
				probePostOffice(cmd.Context(), cfg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", true, "query the post office health over the websocket")

	return cmd
}

// probePostOffice connects with the client settings and prints the hub's
// health report.
func probePostOffice(ctx context.Context, cfg config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := domain.Identity{Server: cfg.Client.Identity.Server, Character: cfg.Client.Identity.Character}
	if id.Server == "" || id.Character == "" {
		id = domain.Identity{Server: "status", Character: "rcmesh-status"}
	}
	c, err := postoffice.Dial(ctx, postoffice.ClientOptions{
		URL:      cfg.Client.URL,
		Token:    cfg.Client.Token,
		Identity: id,
		Version:  version.Version,
	}, log)
	if err != nil {
		fmt.Printf("Hub:         unreachable (%v)\n", err)
		return
	}
	defer c.Close()

	health, err := c.Health(ctx)
	if err != nil {
		fmt.Printf("Hub:         health failed (%v)\n", err)
		return
	}
	fmt.Printf("Hub:         status=%v version=%v clients=%v mailboxes=%v uptime=%vms\n",
		health["status"], health["version"], health["clients"], health["mailboxes"], health["uptimeMs"])
	if servers, ok := health["servers"].(map[string]any); ok && len(servers) > 0 {
		names := make([]string, 0, len(servers))
		for name := range servers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("             %s: %v process(es)\n", name, servers[name])
		}
	}
}

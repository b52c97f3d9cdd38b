package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/postoffice"
	"github.com/soyeahso/rcmesh/internal/protocol"
	"github.com/soyeahso/rcmesh/internal/session"
	"github.com/soyeahso/rcmesh/internal/version"
	"github.com/spf13/cobra"
)

type sendResult struct {
	status int
	reply  *postoffice.Message
}

func newSendCmd() *cobra.Command {
	var (
		to          string
		includeSelf bool
		server      string
		character   string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <channel> <message...>",
		Short: "Send one command on a channel and exit",
		Long: "Registers the channel's mailbox on the post office, posts one broadcast " +
			"(or a personal message with --to) and reports how it was delivered.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Client.Identity.Server = server
			}
			if character != "" {
				cfg.Client.Identity.Character = character
			}
			if err := validate(config.ValidateClient(&cfg)); err != nil {
				return err
			}

			channel := strings.ToLower(args[0])
			command := strings.Join(args[1:], " ")
			id := session.NewState(cfg.Client.Identity).Identity()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := postoffice.Dial(ctx, postoffice.ClientOptions{
				URL:      cfg.Client.URL,
				Token:    cfg.Client.Token,
				Identity: id,
				Version:  version.Version,
			}, log)
			if err != nil {
				return fmt.Errorf("connecting to post office: %w", err)
			}
			defer c.Close()

			box, err := c.Register(channel, func(*postoffice.Message) {})
			if err != nil {
				return err
			}
			defer box.Remove()

			addr := postoffice.Address{Server: id.Server, Mailbox: channel, Character: to}
			msg := protocol.Broadcast(command, includeSelf)
			if to != "" {
				msg = protocol.Personal(command)
			}

			done := make(chan sendResult, 1)
			err = box.PostCallback(addr, msg.Marshal(), func(status int, reply *postoffice.Message) {
				done <- sendResult{status: status, reply: reply}
			})
			if err != nil {
				return fmt.Errorf("posting to %s: %w", channel, err)
			}

			var res sendResult
			select {
			case res = <-done:
			case <-ctx.Done():
				return fmt.Errorf("waiting for %s: %w", channel, ctx.Err())
			}

			out := cmd.OutOrStdout()
			if res.status < 0 {
				return fmt.Errorf("failed sending command to %s on %s: %s",
					addr.Character, channel, postoffice.StatusReason(res.status))
			}
			if to == "" {
				fmt.Fprintf(out, "Sent to %d recipient(s) on %s\n", res.status, channel)
				return nil
			}
			if res.reply != nil {
				if ack, err := protocol.Unmarshal(res.reply.Payload); err == nil && ack.Kind == protocol.KindAck {
					fmt.Fprintf(out, "Delivered to %s on %s\n", to, channel)
					return nil
				}
			}
			fmt.Fprintf(out, "Sent to %s on %s (no acknowledgement)\n", to, channel)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "send a personal message to this character")
	cmd.Flags().BoolVar(&includeSelf, "self", false, "also execute on clients of this identity")
	cmd.Flags().StringVar(&server, "server", "", "game server to send on")
	cmd.Flags().StringVar(&character, "character", "", "character name to send as")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for delivery")

	return cmd
}

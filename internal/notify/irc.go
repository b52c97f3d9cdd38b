package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/rcmesh/internal/config"
	"github.com/soyeahso/rcmesh/internal/logging"
	"github.com/soyeahso/rcmesh/internal/version"
)

// maxLineLen keeps PRIVMSG payloads under the 512 byte IRC line limit.
const maxLineLen = 400

// IRCStatus is the runtime state of an IRC mirror.
type IRCStatus struct {
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// IRC mirrors user-facing lines into one IRC channel.
type IRC struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	running bool
	lastErr string
}

// NewIRC creates an IRC sink from configuration. Call Start to connect.
func NewIRC(cfg config.IRCConfig, log *logging.Logger) *IRC {
	return &IRC{cfg: cfg, log: log.Sub("irc")}
}

// Status returns the current runtime status.
func (c *IRC) Status() IRCStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return IRCStatus{
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *IRC) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

// Start connects and blocks until the connection ends or ctx is cancelled.
func (c *IRC) Start(ctx context.Context) error {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "rcmesh relay",
		SSL:     c.cfg.UseTLS,
		Version: version.Product("irc"),
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Str("channel", c.cfg.Channel).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	// Connect blocks
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop disconnects from the IRC server.
func (c *IRC) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("rcmesh shutting down")
	}
	c.running = false
}

// Notify relays line to the configured channel. Lines are dropped while
// disconnected.
func (c *IRC) Notify(line string) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		c.log.Debug().Msg("irc not connected, dropping line")
		return
	}
	for _, chunk := range splitMessage(line, maxLineLen) {
		client.Cmd.Message(c.cfg.Channel, chunk)
	}
}

func (c *IRC) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Str("channel", c.cfg.Channel).Msg("connected to IRC")
	client.Cmd.Join(c.cfg.Channel)
}

func (c *IRC) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// splitMessage breaks text into PRIVMSG-sized chunks. Each input line is a
// separate chunk; empty lines are dropped and long lines are cut at maxLen
// bytes.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}

package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Post office validation
	if cfg.PostOffice.Port < 0 || cfg.PostOffice.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "postoffice.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.PostOffice.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.PostOffice.Bind != "" && !slices.Contains(validBinds, cfg.PostOffice.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "postoffice.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.PostOffice.Bind),
		})
	}
	if cfg.PostOffice.Bind == "custom" && cfg.PostOffice.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "postoffice.customBindHost",
			Message: "required when bind: custom",
		})
	}

	if cfg.PostOffice.ReplyTimeoutMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "postoffice.replyTimeoutMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.PostOffice.ReplyTimeoutMs),
		})
	}

	if cfg.PostOffice.TLS.Enabled && (cfg.PostOffice.TLS.CertPath == "" || cfg.PostOffice.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "postoffice.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	// Client validation
	validTransports := []string{"websocket", "local"}
	if cfg.Client.Transport != "" && !slices.Contains(validTransports, cfg.Client.Transport) {
		issues = append(issues, ValidationIssue{
			Path:    "client.transport",
			Message: fmt.Sprintf("must be one of %v, got %q", validTransports, cfg.Client.Transport),
		})
	}
	if cfg.Client.Transport == "websocket" && cfg.Client.URL != "" &&
		!strings.HasPrefix(cfg.Client.URL, "ws://") && !strings.HasPrefix(cfg.Client.URL, "wss://") {
		issues = append(issues, ValidationIssue{
			Path:    "client.url",
			Message: fmt.Sprintf("must start with ws:// or wss://, got %q", cfg.Client.URL),
		})
	}
	if cfg.Client.PulseIntervalMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "client.pulseIntervalMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Client.PulseIntervalMs),
		})
	}
	if c := cfg.Client.Identity.Class; c != "" && len(c) != 3 {
		issues = append(issues, ValidationIssue{
			Path:    "client.identity.class",
			Message: fmt.Sprintf("class code must be 3 characters, got %q", c),
		})
	}

	// Subscription store validation
	validStores := []string{"sqlite", "bolt", "memory"}
	if cfg.Subscriptions.Store != "" && !slices.Contains(validStores, cfg.Subscriptions.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "subscriptions.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Subscriptions.Store),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	validFlags := []string{"error", "send", "receive", "connections", "all"}
	for _, f := range cfg.Logging.Flags {
		if !slices.Contains(validFlags, strings.ToLower(f)) {
			issues = append(issues, ValidationIssue{
				Path:    "logging.flags",
				Message: fmt.Sprintf("must be one of %v, got %q", validFlags, f),
			})
		}
	}

	// IRC validation (only if configured)
	if cfg.Notify.IRC != nil {
		irc := cfg.Notify.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.nick",
				Message: "nick is required",
			})
		}
		if irc.Channel == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.channel",
				Message: "channel is required",
			})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
	}

	// Metrics validation
	if cfg.Metrics.Enabled && cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		issues = append(issues, ValidationIssue{
			Path:    "metrics.path",
			Message: fmt.Sprintf("must start with /, got %q", cfg.Metrics.Path),
		})
	}

	return issues
}

// ValidateClient adds the checks that only matter when running a client
// process: the identity must name a server and a character.
func ValidateClient(cfg *Config) []ValidationIssue {
	issues := Validate(cfg)
	if cfg.Client.Identity.Server == "" {
		issues = append(issues, ValidationIssue{
			Path:    "client.identity.server",
			Message: "server is required",
		})
	}
	if cfg.Client.Identity.Character == "" {
		issues = append(issues, ValidationIssue{
			Path:    "client.identity.character",
			Message: "character is required",
		})
	}
	if addr := cfg.Client.MetricsAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    "client.metricsAddr",
				Message: fmt.Sprintf("must be host:port, got %q", addr),
			})
		}
	}
	return issues
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hasIssue(issues []ValidationIssue, path string) bool {
	for _, i := range issues {
		if i.Path == path {
			return true
		}
	}
	return false
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	assert.Empty(t, issues)
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()

	cfg.PostOffice.Port = -1
	issues := Validate(&cfg)
	assert.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Path, "postoffice.port")

	cfg.PostOffice.Port = 70000
	issues = Validate(&cfg)
	assert.NotEmpty(t, issues)
}

func TestValidate_ValidPort(t *testing.T) {
	cfg := Defaults()
	for _, port := range []int{0, 8080, 65535} {
		cfg.PostOffice.Port = port
		assert.Empty(t, Validate(&cfg), "port %d should be valid", port)
	}
}

func TestValidate_Bind(t *testing.T) {
	cfg := Defaults()
	cfg.PostOffice.Bind = "invalid"
	assert.True(t, hasIssue(Validate(&cfg), "postoffice.bind"))

	cfg.PostOffice.Bind = "custom"
	assert.True(t, hasIssue(Validate(&cfg), "postoffice.customBindHost"))

	cfg.PostOffice.CustomBindHost = "10.0.0.5"
	assert.Empty(t, Validate(&cfg))

	for _, bind := range []string{"auto", "lan", "loopback", ""} {
		cfg := Defaults()
		cfg.PostOffice.Bind = bind
		assert.Empty(t, Validate(&cfg), "bind %q should be valid", bind)
	}
}

func TestValidate_TLSRequiresFiles(t *testing.T) {
	cfg := Defaults()
	cfg.PostOffice.TLS.Enabled = true
	assert.True(t, hasIssue(Validate(&cfg), "postoffice.tls"))

	cfg.PostOffice.TLS.CertPath = "/etc/rcmesh/cert.pem"
	cfg.PostOffice.TLS.KeyPath = "/etc/rcmesh/key.pem"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_NegativeTimeouts(t *testing.T) {
	cfg := Defaults()
	cfg.PostOffice.ReplyTimeoutMs = -5
	cfg.Client.PulseIntervalMs = -1
	issues := Validate(&cfg)
	assert.True(t, hasIssue(issues, "postoffice.replyTimeoutMs"))
	assert.True(t, hasIssue(issues, "client.pulseIntervalMs"))
}

func TestValidate_Transport(t *testing.T) {
	cfg := Defaults()
	cfg.Client.Transport = "carrier-pigeon"
	assert.True(t, hasIssue(Validate(&cfg), "client.transport"))

	cfg = Defaults()
	cfg.Client.URL = "http://127.0.0.1:18790/ws"
	assert.True(t, hasIssue(Validate(&cfg), "client.url"))

	cfg = Defaults()
	cfg.Client.Transport = "local"
	cfg.Client.URL = "anything"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_ClassCode(t *testing.T) {
	cfg := Defaults()
	cfg.Client.Identity.Class = "WARR"
	assert.True(t, hasIssue(Validate(&cfg), "client.identity.class"))

	cfg.Client.Identity.Class = "WAR"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Store(t *testing.T) {
	for _, store := range []string{"sqlite", "bolt", "memory", ""} {
		cfg := Defaults()
		cfg.Subscriptions.Store = store
		assert.Empty(t, Validate(&cfg), "store %q should be valid", store)
	}

	cfg := Defaults()
	cfg.Subscriptions.Store = "ini"
	assert.True(t, hasIssue(Validate(&cfg), "subscriptions.store"))
}

func TestValidate_Logging(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace", ""} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q should be valid", level)
	}

	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	assert.True(t, hasIssue(Validate(&cfg), "logging.level"))

	cfg = Defaults()
	cfg.Logging.Flags = []string{"SEND", "connections", "bogus"}
	issues := Validate(&cfg)
	assert.Len(t, issues, 1)
	assert.Equal(t, "logging.flags", issues[0].Path)
	assert.Contains(t, issues[0].Message, "bogus")
}

func TestValidate_IRC(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.IRC = &IRCConfig{Port: 70000}
	issues := Validate(&cfg)
	assert.True(t, hasIssue(issues, "notify.irc.server"))
	assert.True(t, hasIssue(issues, "notify.irc.nick"))
	assert.True(t, hasIssue(issues, "notify.irc.channel"))
	assert.True(t, hasIssue(issues, "notify.irc.port"))

	cfg.Notify.IRC = &IRCConfig{Server: "irc.libera.chat", Port: 6697, Nick: "rcbot", Channel: "#raid"}
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_MetricsPath(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Path = "metrics"
	assert.True(t, hasIssue(Validate(&cfg), "metrics.path"))

	cfg.Metrics.Enabled = false
	assert.Empty(t, Validate(&cfg))
}

func TestValidateClient_RequiresIdentity(t *testing.T) {
	cfg := Defaults()
	issues := ValidateClient(&cfg)
	assert.True(t, hasIssue(issues, "client.identity.server"))
	assert.True(t, hasIssue(issues, "client.identity.character"))

	cfg.Client.Identity.Server = "Tarew"
	cfg.Client.Identity.Character = "Bob"
	assert.Empty(t, ValidateClient(&cfg))
}

func TestValidateClient_MetricsAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Client.Identity.Server = "Tarew"
	cfg.Client.Identity.Character = "Bob"

	cfg.Client.MetricsAddr = "127.0.0.1:9464"
	assert.Empty(t, ValidateClient(&cfg))

	cfg.Client.MetricsAddr = "9464"
	assert.True(t, hasIssue(ValidateClient(&cfg), "client.metricsAddr"))
}

func TestValidationIssueString(t *testing.T) {
	v := ValidationIssue{Path: "postoffice.port", Message: "bad"}
	assert.Equal(t, "postoffice.port: bad", v.String())
}

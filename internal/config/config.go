package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		PostOffice: PostOfficeConfig{
			Port:           18790,
			Bind:           "loopback",
			ReplyTimeoutMs: 10000,
		},
		Client: ClientConfig{
			URL:             "ws://127.0.0.1:18790/ws",
			Transport:       "websocket",
			PulseIntervalMs: 1000,
		},
		Subscriptions: SubscriptionsConfig{
			Store: "sqlite",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

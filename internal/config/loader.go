package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.PostOffice.Auth.Token = expandEnvVars(cfg.PostOffice.Auth.Token)
	cfg.Client.Token = expandEnvVars(cfg.Client.Token)
	if cfg.Notify.IRC != nil {
		cfg.Notify.IRC.Password = expandEnvVars(cfg.Notify.IRC.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// FromRaw decodes a generic map, as edited by `config set`, into a Config
// with defaults applied. Environment overrides are not applied, so the
// result reflects only what would be written to disk.
func FromRaw(raw map[string]any) (Config, error) {
	cfg := Defaults()
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "invalid config: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.PostOffice.Port == 0 {
		cfg.PostOffice.Port = d.PostOffice.Port
	}
	if cfg.PostOffice.Bind == "" {
		cfg.PostOffice.Bind = d.PostOffice.Bind
	}
	if cfg.PostOffice.ReplyTimeoutMs == 0 {
		cfg.PostOffice.ReplyTimeoutMs = d.PostOffice.ReplyTimeoutMs
	}
	if cfg.Client.URL == "" {
		cfg.Client.URL = d.Client.URL
	}
	if cfg.Client.Transport == "" {
		cfg.Client.Transport = d.Client.Transport
	}
	if cfg.Client.PulseIntervalMs == 0 {
		cfg.Client.PulseIntervalMs = d.Client.PulseIntervalMs
	}
	if cfg.Subscriptions.Store == "" {
		cfg.Subscriptions.Store = d.Subscriptions.Store
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = d.Metrics.Path
	}
}

// applyEnvOverrides reads RCMESH_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RCMESH_POSTOFFICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.PostOffice.Port = port
		}
	}
	if v := os.Getenv("RCMESH_POSTOFFICE_BIND"); v != "" {
		cfg.PostOffice.Bind = v
	}
	if v := os.Getenv("RCMESH_POSTOFFICE_TOKEN"); v != "" {
		cfg.PostOffice.Auth.Token = v
	}
	if v := os.Getenv("RCMESH_CLIENT_URL"); v != "" {
		cfg.Client.URL = v
	}
	if v := os.Getenv("RCMESH_CLIENT_TOKEN"); v != "" {
		cfg.Client.Token = v
	}
	if v := os.Getenv("RCMESH_SERVER"); v != "" {
		cfg.Client.Identity.Server = v
	}
	if v := os.Getenv("RCMESH_CHARACTER"); v != "" {
		cfg.Client.Identity.Character = v
	}
	if v := os.Getenv("RCMESH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

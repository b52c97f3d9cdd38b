package config

// Config is the root configuration for rcmesh.
type Config struct {
	PostOffice    PostOfficeConfig    `yaml:"postoffice,omitempty"`
	Client        ClientConfig        `yaml:"client,omitempty"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions,omitempty"`
	Logging       LoggingConfig       `yaml:"logging,omitempty"`
	Notify        NotifyConfig        `yaml:"notify,omitempty"`
	Metrics       MetricsConfig       `yaml:"metrics,omitempty"`
}

// PostOfficeConfig controls the mailbox hub server.
type PostOfficeConfig struct {
	Port           int            `yaml:"port,omitempty"`
	Bind           string         `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string         `yaml:"customBindHost,omitempty"`
	Auth           PostOfficeAuth `yaml:"auth,omitempty"`
	TLS            PostOfficeTLS  `yaml:"tls,omitempty"`
	ReplyTimeoutMs int            `yaml:"replyTimeoutMs,omitempty"`
	AllowedOrigins []string       `yaml:"allowedOrigins,omitempty"`
}

// PostOfficeAuth configures connection authentication.
type PostOfficeAuth struct {
	Token string `yaml:"token,omitempty"`
}

// PostOfficeTLS configures TLS for the hub listener.
type PostOfficeTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// ClientConfig configures a client process.
type ClientConfig struct {
	URL             string         `yaml:"url,omitempty"`   // ws://host:port/ws
	Token           string         `yaml:"token,omitempty"` // must match postoffice.auth.token
	Transport       string         `yaml:"transport,omitempty"` // "websocket" | "local"
	PulseIntervalMs int            `yaml:"pulseIntervalMs,omitempty"`
	Identity        IdentityConfig `yaml:"identity,omitempty"`

	// MetricsAddr is where a client with metrics enabled serves its
	// registry, e.g. "127.0.0.1:9464". Empty keeps the registry private.
	MetricsAddr string `yaml:"metricsAddr,omitempty"`
}

// IdentityConfig seeds the simulated host session of a client.
type IdentityConfig struct {
	Server    string `yaml:"server"`
	Character string `yaml:"character"`
	Class     string `yaml:"class,omitempty"` // three-letter class code
	Zone      string `yaml:"zone,omitempty"`
	InGame    bool   `yaml:"inGame,omitempty"`
}

// SubscriptionsConfig selects where autojoin flags are persisted.
type SubscriptionsConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "bolt" | "memory"
	Path  string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string   `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Flags []string `yaml:"flags,omitempty"` // "error" | "send" | "receive" | "connections" | "all"
}

// NotifyConfig selects the sinks for user-facing lines.
type NotifyConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig mirrors user-facing lines into an IRC channel.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
}

// MetricsConfig toggles the Prometheus endpoint on the hub and, with
// client.metricsAddr, on a client.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

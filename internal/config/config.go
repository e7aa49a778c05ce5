package config

import "time"

// Config holds server and client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	RequireAuth bool          `mapstructure:"require_auth" yaml:"require_auth"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	OutboxSize         int           `mapstructure:"outbox_size" yaml:"outbox_size"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	ServerURL         string        `mapstructure:"server_url" yaml:"server_url"`
	APIURL            string        `mapstructure:"api_url" yaml:"api_url"`
	User              string        `mapstructure:"user" yaml:"user"`
	Token             string        `mapstructure:"token" yaml:"token"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff" yaml:"reconnect_backoff"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "dmchat.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "dmchat",
		JWTAudience:        "dmchat",
		JWTTTL:             24 * time.Hour,
		MaxMessageBytes:    1 << 16,
		WriteTimeout:       10 * time.Second,
		PingInterval:       30 * time.Second,
		OutboxSize:         64,
		RateLimitPerMinute: 120,
		Client: ClientConfig{
			ServerURL:         "ws://localhost:8080/ws",
			APIURL:            "http://localhost:8080",
			ReconnectAttempts: 5,
			ReconnectBackoff:  500 * time.Millisecond,
			DialTimeout:       5 * time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.RequireAuth {
		c.RequireAuth = true
	}
	if other.Client.User != "" {
		c.Client.User = other.Client.User
	}
	if other.Client.Token != "" {
		c.Client.Token = other.Client.Token
	}
	if other.Client.ServerURL != "" {
		c.Client.ServerURL = other.Client.ServerURL
	}
}

package config

import "time"

// Config holds relay server and session client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// Session client settings.
	ServerURL    string `mapstructure:"server_url" yaml:"server_url"`
	Topic        string `mapstructure:"topic" yaml:"topic"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// Message log bounds.
	MessageLogMax      int           `mapstructure:"message_log_max" yaml:"message_log_max"`
	MessageLogRetain   int           `mapstructure:"message_log_retain" yaml:"message_log_retain"`
	MessageLogInterval time.Duration `mapstructure:"message_log_interval" yaml:"message_log_interval"`

	// Optional NATS bridge for multi-node relay fan-out. Empty URL disables it.
	NATSURL           string `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix" yaml:"nats_subject_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",

		ServerURL:    "ws://localhost:8080/ws",
		Topic:        "game",
		DatabasePath: "wireplay.db",

		MessageLogMax:      100,
		MessageLogRetain:   50,
		MessageLogInterval: 30 * time.Second,

		NATSSubjectPrefix: "wireplay",
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
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.Topic != "" {
		c.Topic = other.Topic
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MessageLogMax != 0 {
		c.MessageLogMax = other.MessageLogMax
	}
	if other.MessageLogRetain != 0 {
		c.MessageLogRetain = other.MessageLogRetain
	}
	if other.MessageLogInterval != 0 {
		c.MessageLogInterval = other.MessageLogInterval
	}
	if other.NATSURL != "" {
		c.NATSURL = other.NATSURL
	}
	if other.NATSSubjectPrefix != "" {
		c.NATSSubjectPrefix = other.NATSSubjectPrefix
	}
}

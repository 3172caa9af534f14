package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// StoreTimeout bounds persistence calls made inside realtime handlers so
	// a hung database never leaves a client ack unresolved.
	StoreTimeout time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`

	// AuthRateLimit caps register/login requests per minute. Zero disables
	// the limiter.
	AuthRateLimit int `mapstructure:"auth_rate_limit" yaml:"auth_rate_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "chatrelay.db",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "chatrelay",
		JWTAudience:       "chatrelay-clients",
		LogLevel:          "info",
		StoreTimeout:      10 * time.Second,
		AuthRateLimit:     30,
	}
}

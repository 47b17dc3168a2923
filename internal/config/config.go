package config

import (
	"fmt"
	"time"
)

// Authentication backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds server configuration values.
type Config struct {
	TCPAddr           string        `mapstructure:"tcp_addr" yaml:"tcp_addr"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	AuthBackend  string `mapstructure:"auth_backend" yaml:"auth_backend"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		TCPAddr:           ":8189",
		HTTPAddr:          ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		AuthBackend:       BackendMemory,
		DatabasePath:      "streamchat.db",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "streamchat",
		JWTAudience:       "streamchat-clients",
		JWTTTL:            24 * time.Hour,
	}
}

// Validate checks fields whose bad values would only surface at runtime.
func (c Config) Validate() error {
	switch c.AuthBackend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown auth backend %q (want %s or %s)", c.AuthBackend, BackendMemory, BackendSQLite)
	}
	if c.AuthBackend == BackendSQLite && c.DatabasePath == "" {
		return fmt.Errorf("database_path is required for the %s backend", BackendSQLite)
	}
	return nil
}

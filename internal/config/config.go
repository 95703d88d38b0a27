// Package config loads halyard configuration from YAML with environment
// overrides.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/halyard-dev/halyard/internal/errors"
)

// Config is the root configuration.
type Config struct {
	Listen  string       `mapstructure:"listen"`   // HTTP listen address
	DataDir string       `mapstructure:"data_dir"` // database and state location
	Catalog string       `mapstructure:"catalog"`  // command template file, optional
	SSH     SSHConfig    `mapstructure:"ssh"`
	Oracle  OracleConfig `mapstructure:"oracle"`
	Log     LogConfig    `mapstructure:"log"`
}

// SSHConfig controls the transport layer.
type SSHConfig struct {
	KnownHosts     string        `mapstructure:"known_hosts"`     // empty means ~/.ssh/known_hosts
	StrictHostKey  bool          `mapstructure:"strict_host_key"` // verify host keys (default true)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	KeyFile        string        `mapstructure:"key_file"` // fallback private key path
}

// OracleConfig points at the external text-to-command service.
type OracleConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	TokenEnv string        `mapstructure:"token_env"` // env var holding the bearer token
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"` // trace, debug, info, warn, error
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:  "127.0.0.1:8787",
		DataDir: defaultDataDir(),
		SSH: SSHConfig{
			StrictHostKey:  true,
			ConnectTimeout: 10 * time.Second,
		},
		Oracle: OracleConfig{
			TokenEnv: "HALYARD_ORACLE_TOKEN",
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DatabasePath returns the SQLite file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "halyard.db")
}

// OracleToken reads the oracle bearer token from the configured env var.
func (c *Config) OracleToken() string {
	if c.Oracle.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Oracle.TokenEnv)
}

// Validate checks the config for problems a user can fix.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New(errors.ErrConfig,
			"listen address is empty",
			"Set listen to host:port, e.g. 127.0.0.1:8787")
	}
	if c.DataDir == "" {
		return errors.New(errors.ErrConfig,
			"data_dir is empty",
			"Point data_dir at a writable directory")
	}
	if c.SSH.ConnectTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			"ssh.connect_timeout must be positive",
			"Use a duration like 10s")
	}
	switch c.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return errors.New(errors.ErrConfig,
			"unknown log level: "+c.Log.Level,
			"Use one of: trace, debug, info, warn, error")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".halyard"
	}
	return filepath.Join(home, ".local", "share", "halyard")
}

// ExpandPath resolves a leading ~/ against the user's home directory.
func ExpandPath(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/halyard-dev/halyard/internal/errors"
)

// ConfigFileName is the per-project config file searched upward from cwd.
const ConfigFileName = ".halyard.yaml"

// Find locates the config file to use. Order: explicit path, then
// .halyard.yaml in the current directory and its parents (stopping at a git
// root or the home directory), then ~/.config/halyard/config.yaml. Returns
// an empty string when nothing is found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		path := ExpandPath(explicit)
		if _, err := os.Stat(path); err != nil {
			return "", errors.New(errors.ErrConfig,
				"config file not found: "+explicit,
				"Check the --config path")
		}
		return path, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"cannot determine working directory", "")
	}
	home, _ := os.UserHomeDir()

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		// Stop ascending past a repository root or the home directory.
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		if dir == home {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if home != "" {
		global := filepath.Join(home, ".config", "halyard", "config.yaml")
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}
	return "", nil
}

// Load reads the config file at path, applies defaults and HALYARD_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HALYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"failed to read config file "+path,
				"Check the YAML syntax and file permissions")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"failed to parse config file "+path,
			"Check the field names against 'halyard init' output")
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.Catalog = ExpandPath(cfg.Catalog)
	cfg.SSH.KnownHosts = ExpandPath(cfg.SSH.KnownHosts)
	cfg.SSH.KeyFile = ExpandPath(cfg.SSH.KeyFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault finds and loads a config file, falling back to defaults when
// none exists.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("listen", def.Listen)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("catalog", def.Catalog)
	v.SetDefault("ssh.known_hosts", def.SSH.KnownHosts)
	v.SetDefault("ssh.strict_host_key", def.SSH.StrictHostKey)
	v.SetDefault("ssh.connect_timeout", def.SSH.ConnectTimeout)
	v.SetDefault("ssh.key_file", def.SSH.KeyFile)
	v.SetDefault("oracle.endpoint", def.Oracle.Endpoint)
	v.SetDefault("oracle.token_env", def.Oracle.TokenEnv)
	v.SetDefault("oracle.timeout", def.Oracle.Timeout)
	v.SetDefault("log.level", def.Log.Level)
}

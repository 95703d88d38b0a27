package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/halyard-dev/halyard/internal/catalog"
	"github.com/halyard-dev/halyard/internal/config"
	"github.com/rs/zerolog"
)

// ConfigFileCheck verifies that a config file exists.
type ConfigFileCheck struct {
	ConfigPath string // explicit path, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return "CONFIG" }

func (c *ConfigFileCheck) Run() CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Error finding config: %v", err),
			Suggestion: "Check file permissions or run 'halyard init' to create a config",
		}
	}

	if path == "" {
		// Halyard runs fine on defaults; a missing file is only a note.
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No config file found, using defaults",
			Suggestion: "Run 'halyard init' to create a " + config.ConfigFileName,
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Config file: " + path,
	}
}

// ConfigValidCheck verifies the config file loads and validates.
type ConfigValidCheck struct {
	ConfigPath string
}

func (c *ConfigValidCheck) Name() string     { return "config_valid" }
func (c *ConfigValidCheck) Category() string { return "CONFIG" }

func (c *ConfigValidCheck) Run() CheckResult {
	cfg, err := config.LoadOrDefault(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Config invalid: %v", err),
			Suggestion: "Fix the reported field or delete the file and re-run 'halyard init'",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Config valid (listen %s)", cfg.Listen),
	}
}

// DataDirCheck verifies the data directory exists and is writable.
type DataDirCheck struct {
	DataDir string
}

func (c *DataDirCheck) Name() string     { return "data_dir" }
func (c *DataDirCheck) Category() string { return "CONFIG" }

func (c *DataDirCheck) Run() CheckResult {
	if c.DataDir == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "No data directory configured",
			Suggestion: "Set data_dir in the config",
		}
	}

	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Data directory not usable: %v", err),
			Suggestion: "Check permissions on " + filepath.Dir(c.DataDir),
		}
	}

	probe := filepath.Join(c.DataDir, ".doctor-write-probe")
	if err := os.WriteFile(probe, nil, 0600); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Data directory is not writable",
			Suggestion: "Check permissions on " + c.DataDir,
		}
	}
	os.Remove(probe) //nolint:errcheck // probe cleanup

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Data directory writable: " + c.DataDir,
	}
}

// CatalogCheck verifies the template catalog parses, when configured.
type CatalogCheck struct {
	Path string
}

func (c *CatalogCheck) Name() string     { return "catalog" }
func (c *CatalogCheck) Category() string { return "CONFIG" }

func (c *CatalogCheck) Run() CheckResult {
	if c.Path == "" {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No template catalog configured (optional)",
		}
	}

	cat, err := catalog.Load(c.Path, zerolog.Nop())
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Catalog unreadable: %v", err),
			Suggestion: "Check the YAML syntax in " + c.Path,
		}
	}

	n := len(cat.List())
	if n == 0 {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusWarn,
			Message: "Catalog configured but holds no templates",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Catalog: %d templates", n),
	}
}

package cli

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/halyard-dev/halyard/internal/config"
	"github.com/halyard-dev/halyard/internal/errors"
	"github.com/halyard-dev/halyard/internal/ui"
)

var initForceFlag bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .halyard.yaml configuration",
	Long: `Initialize a halyard configuration file in the current directory.

Walks through the listen address, data directory, and optional template
catalog with interactive prompts.

Examples:
  halyard init
  halyard init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand()
	},
}

// initFile mirrors the config file layout for marshalling. Only fields the
// form collects are written; everything else falls back to defaults at load
// time.
type initFile struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`
	Catalog string `yaml:"catalog,omitempty"`
	SSH     struct {
		StrictHostKey bool `yaml:"strict_host_key"`
	} `yaml:"ssh"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func initCommand() error {
	configPath := filepath.Join(".", config.ConfigFileName)

	if _, err := os.Stat(configPath); err == nil && !initForceFlag {
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	defaults := config.DefaultConfig()
	listen := defaults.Listen
	dataDir := defaults.DataDir
	catalogPath := ""
	strictHostKey := true
	logLevel := "info"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Description("Where the API server binds").
				Placeholder(defaults.Listen).
				Value(&listen).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("listen address is required")
					}
					if _, _, err := net.SplitHostPort(s); err != nil {
						return fmt.Errorf("use host:port, e.g. 127.0.0.1:8787")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Connections and history live here (SQLite)").
				Placeholder(defaults.DataDir).
				Value(&dataDir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("data directory is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Template catalog (optional)").
				Description("YAML file of reusable command templates").
				Placeholder("templates.yaml (leave empty to skip)").
				Value(&catalogPath),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Verify host keys against known_hosts?").
				Value(&strictHostKey),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("info", "info"),
					huh.NewOption("debug", "debug"),
					huh.NewOption("warn", "warn"),
				).
				Value(&logLevel),
		),
	)

	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility")
	}

	var out initFile
	out.Listen = listen
	out.DataDir = dataDir
	out.Catalog = catalogPath
	out.SSH.StrictHostKey = strictHostKey
	out.Log.Level = logLevel

	data, err := yaml.Marshal(out)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to generate config", "")
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write "+configPath,
			"Check directory permissions")
	}

	fmt.Printf("\n%s Wrote %s\n", ui.SymbolSuccess, configPath)
	fmt.Println("Next: add a connection with 'halyard connection add', then 'halyard serve'.")
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForceFlag, "force", false, "overwrite an existing config file")
}

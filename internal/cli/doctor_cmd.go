package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halyard-dev/halyard/internal/config"
	"github.com/halyard-dev/halyard/internal/doctor"
	"github.com/halyard-dev/halyard/internal/remote"
	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/ui"
)

// doctorCmd diagnoses the local environment and saved connections.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose config, credentials, and connection reachability",
	Long: `Run environment diagnostics: config file, data directory, SSH keys
and agent, host key material, the connection database, and whether each
saved host's SSH port accepts connections.

Reachability checks only test TCP connect; they never authenticate.

Examples:
  halyard doctor`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand()
	},
}

func doctorCommand() error {
	cfg, err := config.LoadOrDefault(configFlag)
	if err != nil {
		// A broken config is itself a finding, not a reason to stop.
		cfg = config.DefaultConfig()
	}

	env := remote.EnvCredentials()
	if cfg.SSH.KeyFile != "" {
		env.KeyFilePath = cfg.SSH.KeyFile
	}

	local := []doctor.Check{
		&doctor.ConfigFileCheck{ConfigPath: configFlag},
		&doctor.ConfigValidCheck{ConfigPath: configFlag},
		&doctor.DataDirCheck{DataDir: cfg.DataDir},
		&doctor.CatalogCheck{Path: cfg.Catalog},
		&doctor.SSHKeyCheck{},
		&doctor.SSHAgentCheck{},
		&doctor.CredentialCheck{Env: env},
		&doctor.KnownHostsCheck{Path: cfg.SSH.KnownHosts, Strict: cfg.SSH.StrictHostKey},
		&doctor.StoreCheck{Path: cfg.DatabasePath()},
		&doctor.OracleCheck{Endpoint: cfg.Oracle.Endpoint},
	}
	results := doctor.RunAll(local)

	// Network probes against every saved host run in parallel.
	if reach := reachabilityChecks(cfg); len(reach) > 0 {
		results = append(results, doctor.RunAllParallel(reach)...)
	}

	printDoctorResults(results)

	if doctor.HasFailures(results) {
		os.Exit(1)
	}
	return nil
}

func reachabilityChecks(cfg *config.Config) []doctor.Check {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil
	}
	defer s.Close() //nolint:errcheck // read-only probe

	conns, err := s.ListConnections(context.Background())
	if err != nil {
		return nil
	}

	checks := make([]doctor.Check, 0, len(conns))
	for _, conn := range conns {
		checks = append(checks, &doctor.ReachabilityCheck{Connection: conn})
	}
	return checks
}

func printDoctorResults(results []doctor.CheckResult) {
	for _, r := range results {
		var symbol string
		switch r.Status {
		case doctor.StatusPass:
			symbol = ui.RenderSuccess(ui.SymbolSuccess)
		case doctor.StatusWarn:
			symbol = ui.RenderWarning(ui.SymbolWarn)
		default:
			symbol = ui.RenderError(ui.SymbolFail)
		}

		fmt.Printf("%s %s\n", symbol, r.Message)
		if r.Suggestion != "" && r.Status != doctor.StatusPass {
			fmt.Printf("  %s\n", ui.RenderMuted("→ "+r.Suggestion))
		}
	}

	counts := doctor.CountByStatus(results)
	fmt.Printf("\n%d passed, %d warnings, %d failed\n",
		counts[doctor.StatusPass], counts[doctor.StatusWarn], counts[doctor.StatusFail])
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

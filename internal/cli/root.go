package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halyard-dev/halyard/internal/ui"
)

// Persistent flags
var (
	configFlag  string
	noColorFlag bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "halyard",
	Short: "Web-driven remote command execution over SSH",
	Long: `Halyard runs commands on remote hosts over persistent SSH sessions,
streams their output live, and guards against re-running work that is
already done.

Run 'halyard serve' to start the HTTP API for the web UI, or use
'halyard exec' for one-shot commands from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColorFlag || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
	},
}

// Execute runs the root command and renders any failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halyard-dev/halyard/internal/store"
	"github.com/halyard-dev/halyard/internal/ui"
	"github.com/halyard-dev/halyard/internal/util"
)

var (
	historyConnectionFlag string
	historyLimitFlag      int
)

// historyCmd lists recent executions from the local database.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent command executions",
	Long: `List recent executions recorded by serve and exec, newest first.

Examples:
  halyard history
  halyard history --connection web-1 --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyCommand()
	},
}

func historyCommand() error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	connID := ""
	if historyConnectionFlag != "" {
		conn, err := pickConnection(a, historyConnectionFlag)
		if err != nil {
			return err
		}
		connID = conn.ID
	}

	execs, err := a.store.ListExecutions(ctx, connID, historyLimitFlag)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Println("No executions recorded yet.")
		return nil
	}

	names := connectionNames(ctx, a)

	columns := []ui.TableColumn{
		{Title: "WHEN", Width: 16},
		{Title: "CONNECTION", Width: 14},
		{Title: "COMMAND", Width: 36},
		{Title: "RESULT", Width: 10},
		{Title: "TOOK", Width: 8},
	}
	rows := make([][]string, 0, len(execs))
	for _, e := range execs {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("Jan 02 15:04:05"),
			names[e.ConnectionID],
			util.Truncate(e.Command, 36),
			historyResult(e),
			fmt.Sprintf("%.1fs", float64(e.DurationMs)/1000),
		})
	}

	fmt.Print(ui.RenderSimpleTable(columns, rows))
	return nil
}

func historyResult(e store.Execution) string {
	switch {
	case e.Aborted:
		return ui.SymbolFail + " aborted"
	case !e.ExitKnown:
		return ui.SymbolWarn + " unknown"
	case e.ExitCode != 0:
		return fmt.Sprintf("%s exit %d", ui.SymbolFail, e.ExitCode)
	default:
		return ui.SymbolSuccess + " ok"
	}
}

func connectionNames(ctx context.Context, a *app) map[string]string {
	names := make(map[string]string)
	conns, err := a.store.ListConnections(ctx)
	if err != nil {
		return names
	}
	for _, c := range conns {
		names[c.ID] = c.Name
	}
	return names
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historyConnectionFlag, "connection", "c", "", "filter by connection name")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "maximum rows to show")
}

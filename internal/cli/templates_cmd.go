package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halyard-dev/halyard/internal/catalog"
	"github.com/halyard-dev/halyard/internal/config"
	"github.com/halyard-dev/halyard/internal/ui"
	"github.com/halyard-dev/halyard/internal/util"
)

// templatesCmd lists the command templates from the configured catalog.
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List command templates from the catalog",
	Long: `List the named command templates defined in the catalog file.

Templates run with 'halyard exec' through the API, or directly:
  halyard exec --template disk-usage --param path=/var

Examples:
  halyard templates`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return templatesCommand()
	},
}

func templatesCommand() error {
	cfg, err := config.LoadOrDefault(configFlag)
	if err != nil {
		return err
	}

	if cfg.Catalog == "" {
		fmt.Println("No catalog configured. Set 'catalog' in the config to a templates YAML file.")
		return nil
	}

	cat, err := catalog.Load(cfg.Catalog, newLogger(cfg.Log.Level, false))
	if err != nil {
		return err
	}

	list := cat.List()
	if len(list) == 0 {
		fmt.Printf("Catalog %s holds no templates.\n", cfg.Catalog)
		return nil
	}

	columns := []ui.TableColumn{
		{Title: "NAME", Width: 20},
		{Title: "PARAMS", Width: 20},
		{Title: "DESCRIPTION", Width: 40},
	}
	rows := make([][]string, 0, len(list))
	for _, t := range list {
		rows = append(rows, []string{
			t.Name,
			util.JoinOrDefault(t.Params, "-"),
			t.Description,
		})
	}

	fmt.Print(ui.RenderSimpleTable(columns, rows))
	return nil
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}
